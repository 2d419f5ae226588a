package targetdecoy

import (
	"math"
	"sync/atomic"
)

// Point holds the target and decoy counts found at one exact score,
// and the posterior error probability estimated for that score.
// The counters can be updated by many goroutines at once.
type Point struct {
	nTarget atomic.Int64
	nDecoy  atomic.Int64
	p       atomic.Uint64 // float64 bits
}

// NTarget returns the number of target hits at this score
func (pt *Point) NTarget() int {
	return int(pt.nTarget.Load())
}

// NDecoy returns the number of decoy hits at this score
func (pt *Point) NDecoy() int {
	return int(pt.nDecoy.Load())
}

// P returns the estimated posterior error probability.
// Before estimation it is 0.
func (pt *Point) P() float64 {
	return math.Float64frombits(pt.p.Load())
}

func (pt *Point) setP(p float64) {
	pt.p.Store(math.Float64bits(p))
}

func (pt *Point) add(decoy bool, n int64) {
	if decoy {
		pt.nDecoy.Add(n)
	} else {
		pt.nTarget.Add(n)
	}
}

// decrease lowers the target or decoy count by one. It returns false
// (and changes nothing) if the count is already zero.
func (pt *Point) decrease(decoy bool) bool {
	c := &pt.nTarget
	if decoy {
		c = &pt.nDecoy
	}
	for {
		old := c.Load()
		if old <= 0 {
			return false
		}
		if c.CompareAndSwap(old, old-1) {
			return true
		}
	}
}

func (pt *Point) empty() bool {
	return pt.nTarget.Load() == 0 && pt.nDecoy.Load() == 0
}

// Package psmimport feeds the scored peptide-spectrum matches of a dataset
// into an input map, using a pool of workers that share one cursor over
// the match keys.
package psmimport

import (
	"errors"
	"fmt"
	"slices"

	"github.com/524D/mzpep/internal/inputmap"
)

// Assumption is one peptide candidate a search engine proposed for a
// spectrum. Lower scores are better.
type Assumption struct {
	Advocate inputmap.AdvocateID `msgpack:"a"`
	Rank     int                 `msgpack:"r"`
	Sequence string              `msgpack:"s"`
	Score    float64             `msgpack:"x"`
	Decoy    bool                `msgpack:"d"`
	// Intermediate scores by score kind
	Secondary map[int]float64 `msgpack:"i,omitempty"`
}

// Match holds all assumptions of all search engines for one spectrum
type Match struct {
	Key         string       `msgpack:"k"`
	File        string       `msgpack:"f"`
	SpectrumID  string       `msgpack:"id"`
	Assumptions []Assumption `msgpack:"as"`
}

// ErrUnknownMatch is returned by a Source for keys it does not know
var ErrUnknownMatch = errors.New("psmimport: unknown match key")

// Source gives access to the matches of an import. Match is called
// concurrently from all workers.
type Source interface {
	Match(key string) (*Match, error)
}

// Matches is an in-memory Source
type Matches map[string]*Match

// NewMatches indexes matches by key. Later duplicates replace earlier ones.
func NewMatches(matches ...[]Match) Matches {
	ms := Matches{}
	for _, list := range matches {
		for i := range list {
			ms[list[i].Key] = &list[i]
		}
	}
	return ms
}

// Match implements Source
func (ms Matches) Match(key string) (*Match, error) {
	m, ok := ms[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMatch, key)
	}
	return m, nil
}

// Keys returns the keys in sorted order
func (ms Matches) Keys() []string {
	keys := make([]string, 0, len(ms))
	for k := range ms {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

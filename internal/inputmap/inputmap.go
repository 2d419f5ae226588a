// Package inputmap collects the scored hits of all search engines and all
// spectrum files of a dataset into target/decoy maps, and keeps count of
// the validated hits each engine contributed.
package inputmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/524D/mzpep/internal/targetdecoy"
)

var (
	ErrNoAxis        = errors.New("inputmap: no algorithm input found")
	ErrAmbiguousAxis = errors.New("inputmap: multiple search engine results found")
)

// Progress receives feedback during probability estimation
type Progress interface {
	SetMax(n int)
	Increment()
	SetIndeterminate(indeterminate bool)
}

type fileMaps = *lazyMap[string, *targetdecoy.Map]
type scoreMaps = *lazyMap[int, *targetdecoy.Map]
type advocateScoreMaps = *lazyMap[AdvocateID, scoreMaps]
type counters = *lazyMap[string, *atomic.Int64]

// Map holds the target/decoy maps of an import run.
//
// All Add and Set methods are safe for concurrent use. Maps and counters
// are created on first use and never replaced afterwards, until Reset.
// EstimateProbabilities must only be called once all writers are done.
type Map struct {
	// advocate > map over all files
	global lazyMap[AdvocateID, *targetdecoy.Map]
	// advocate > spectrum file > map
	perFile lazyMap[AdvocateID, fileMaps]
	// spectrum file > advocate > score kind > map
	intermediate lazyMap[string, advocateScoreMaps]

	// advocate > spectrum file > validated hits
	contribution       lazyMap[AdvocateID, counters]
	uniqueContribution lazyMap[AdvocateID, counters]
	// spectrum file > validated hits of the combined hit set
	referenceHits   lazyMap[string, *atomic.Int64]
	referenceUnique lazyMap[string, *atomic.Int64]

	ready atomic.Bool

	// Decoys needed to close a bin in the global and per-file maps,
	// read when a map is created. Values < 1 select
	// targetdecoy.DefaultMinDecoysInBin.
	MinDecoysInBin int
	Logger         *slog.Logger
}

// New returns an empty input map
func New() *Map {
	return &Map{}
}

func (m *Map) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// AddEntry adds a hit of the given search engine found in the given
// spectrum file, both to the engine's global map and to its map for the
// file.
func (m *Map) AddEntry(advocate AdvocateID, fileName string, score float64, decoy bool) {
	m.global.getOrCreate(advocate, m.newAxis).Put(score, decoy)
	files := m.perFile.getOrCreate(advocate, newFileMaps)
	files.getOrCreate(fileName, m.newAxis).Put(score, decoy)
}

func (m *Map) newAxis() *targetdecoy.Map {
	return targetdecoy.New(m.MinDecoysInBin)
}

func newFileMaps() fileMaps {
	return &lazyMap[string, *targetdecoy.Map]{}
}

func newScoreMaps() scoreMaps {
	return &lazyMap[int, *targetdecoy.Map]{}
}

func newAdvocateScoreMaps() advocateScoreMaps {
	return &lazyMap[AdvocateID, scoreMaps]{}
}

func newCounters() counters {
	return &lazyMap[string, *atomic.Int64]{}
}

func newCounter() *atomic.Int64 {
	return &atomic.Int64{}
}

// SetIntermediateScore adds a hit to the map of an intermediate score
// (scoreKind) of a search engine in a spectrum file. minDecoysInBin is
// only used when the map is created.
func (m *Map) SetIntermediateScore(fileName string, advocate AdvocateID, scoreKind int,
	score float64, decoy bool, minDecoysInBin int) {
	advocates := m.intermediate.getOrCreate(fileName, newAdvocateScoreMaps)
	kinds := advocates.getOrCreate(advocate, newScoreMaps)
	tdMap := kinds.getOrCreate(scoreKind, func() *targetdecoy.Map {
		return targetdecoy.New(minDecoysInBin)
	})
	tdMap.Put(score, decoy)
}

// Advocates returns the search engines found, sorted
func (m *Map) Advocates() []AdvocateID {
	return m.global.keys()
}

// NAlgorithms returns the number of search engines found
func (m *Map) NAlgorithms() int {
	return m.global.len()
}

// IsMultipleAlgorithms tells whether more than one search engine was found
func (m *Map) IsMultipleAlgorithms() bool {
	return m.NAlgorithms() > 1
}

// Files returns the spectrum files in which the advocate has hits
func (m *Map) Files(advocate AdvocateID) []string {
	files, ok := m.perFile.get(advocate)
	if !ok {
		return nil
	}
	return files.keys()
}

// TargetDecoyMap returns the global map of an advocate, nil if unknown
func (m *Map) TargetDecoyMap(advocate AdvocateID) *targetdecoy.Map {
	tdMap, _ := m.global.get(advocate)
	return tdMap
}

// FileTargetDecoyMap returns the map of an advocate for one spectrum
// file, nil if unknown
func (m *Map) FileTargetDecoyMap(advocate AdvocateID, fileName string) *targetdecoy.Map {
	files, ok := m.perFile.get(advocate)
	if !ok {
		return nil
	}
	tdMap, _ := files.get(fileName)
	return tdMap
}

// FileMaps returns all per file maps, ordered by advocate and file
func (m *Map) FileMaps() []*targetdecoy.Map {
	var maps []*targetdecoy.Map
	for _, files := range m.perFile.values() {
		maps = append(maps, files.values()...)
	}
	return maps
}

// IntermediateScoreAdvocates returns the advocates that have
// intermediate scores for the file
func (m *Map) IntermediateScoreAdvocates(fileName string) []AdvocateID {
	advocates, ok := m.intermediate.get(fileName)
	if !ok {
		return nil
	}
	return advocates.keys()
}

// IntermediateScoreKinds returns the score kinds of an advocate in a file
func (m *Map) IntermediateScoreKinds(fileName string, advocate AdvocateID) []int {
	advocates, ok := m.intermediate.get(fileName)
	if !ok {
		return nil
	}
	kinds, ok := advocates.get(advocate)
	if !ok {
		return nil
	}
	return kinds.keys()
}

// IntermediateScoreMap returns the map of an intermediate score, nil if
// not found
func (m *Map) IntermediateScoreMap(fileName string, advocate AdvocateID, scoreKind int) *targetdecoy.Map {
	advocates, ok := m.intermediate.get(fileName)
	if !ok {
		return nil
	}
	kinds, ok := advocates.get(advocate)
	if !ok {
		return nil
	}
	tdMap, _ := kinds.get(scoreKind)
	return tdMap
}

// SingleMap returns the global map when only one search engine was used
func (m *Map) SingleMap() (*targetdecoy.Map, error) {
	advocates := m.Advocates()
	switch len(advocates) {
	case 0:
		return nil, ErrNoAxis
	case 1:
		return m.TargetDecoyMap(advocates[0]), nil
	}
	return nil, fmt.Errorf("%w (%d engines)", ErrAmbiguousAxis, len(advocates))
}

// NEntries returns the number of points in all global maps
func (m *Map) NEntries() int {
	n := 0
	for _, tdMap := range m.global.values() {
		n += tdMap.Size()
	}
	return n
}

// NEntriesSpecific returns the number of points in all per file maps
func (m *Map) NEntriesSpecific() int {
	n := 0
	for _, tdMap := range m.FileMaps() {
		n += tdMap.Size()
	}
	return n
}

// EstimateProbabilities estimates the PEP of every global map and then
// of every per file map. ctx is checked between maps; when it is
// cancelled the remaining maps are left as they are, ctx.Err() is
// returned and Ready stays false.
func (m *Map) EstimateProbabilities(ctx context.Context, progress Progress) error {
	m.ready.Store(false)

	globals := m.global.values()
	specific := m.FileMaps()
	if progress != nil {
		progress.SetIndeterminate(false)
		progress.SetMax(len(globals) + len(specific))
		defer progress.SetIndeterminate(true)
	}

	for _, maps := range [][]*targetdecoy.Map{globals, specific} {
		for _, tdMap := range maps {
			if err := ctx.Err(); err != nil {
				m.logger().Warn("probability estimation cancelled", "error", err)
				return err
			}
			tdMap.EstimateProbabilities()
			if progress != nil {
				progress.Increment()
			}
		}
	}
	m.ready.Store(true)
	return nil
}

// Ready tells whether EstimateProbabilities completed for all maps
func (m *Map) Ready() bool {
	return m.ready.Load()
}

// Probability returns the PEP of a score of the given search engine.
// An unknown engine gives 1.
func (m *Map) Probability(advocate AdvocateID, score float64) (float64, error) {
	tdMap := m.TargetDecoyMap(advocate)
	if tdMap == nil {
		return 1.0, nil
	}
	return tdMap.Probability(score)
}

// Reset removes all maps and counters
func (m *Map) Reset() {
	m.global.clear()
	m.perFile.clear()
	m.intermediate.clear()
	m.ResetContributions()
	m.ready.Store(false)
}

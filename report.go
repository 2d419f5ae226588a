// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"fortio.org/safecast"
	"github.com/google/uuid"

	"github.com/524D/mzpep/internal/config"
	"github.com/524D/mzpep/internal/inputmap"
	"github.com/524D/mzpep/internal/targetdecoy"
	"github.com/524D/mzpep/internal/validation"
)

// report is written as JSON at the end of a run
type report struct {
	// Version of the report format, used when parsing reports of
	// different versions of the software
	FormatVersion   string
	MzPEPVersion    string
	RunID           string
	Created         string
	Files           []string
	FDR             float64
	MaxPEP          float64
	Spectra         int
	FailedMatches   int
	Validated       uint32
	ValidatedUnique uint32
	MeanPEP         float64
	Advocates       []advocateReport
}

// axisStats describes one target/decoy map
type axisStats struct {
	NTarget     uint32
	NDecoy      uint32
	NMax        int
	WindowSize  int
	NTargetOnly int
	Resolution  float64
	MinFDR      float64
	Suspicious  bool
	// Hits dropped for a NaN or infinite score
	SkippedScores int `json:",omitempty"`
	// Worst score (in the engine's own direction) that still meets the
	// requested FDR and the PEP threshold
	FDRThreshold *float64 `json:",omitempty"`
	PEPThreshold *float64 `json:",omitempty"`
}

type fileReport struct {
	Name string
	axisStats
	Contribution       int
	UniqueContribution int
	ReferenceHits      int
}

type advocateReport struct {
	Name string
	ID   int
	axisStats
	ValidatedTargets   int
	ValidatedDecoys    int
	Contribution       int
	UniqueContribution int
	Files              []fileReport
	Series             *targetdecoy.Series `json:",omitempty"`
}

// count converts a counter for the report, logging values that do not fit
func count(n int) uint32 {
	c, err := safecast.Conv[uint32](n)
	if err != nil {
		log.Printf("Count %d out of range: %v", n, err)
		return 0
	}
	return c
}

func stats(tdMap *targetdecoy.Map, series targetdecoy.Series, sign float64, cfg *config.Config) axisStats {
	var s axisStats
	nT, nD := 0, 0
	for i := range series.Scores {
		nT += int(series.NTarget[i])
		nD += int(series.NDecoy[i])
	}
	s.NTarget = count(nT)
	s.NDecoy = count(nD)
	s.NMax = tdMap.NMax()
	s.WindowSize = tdMap.WindowSize()
	s.NTargetOnly = tdMap.NTargetOnly()
	s.Resolution = tdMap.Resolution()
	s.MinFDR = tdMap.MinFDR()
	s.Suspicious = tdMap.SuspiciousInput(cfg.FDR)
	s.SkippedScores = tdMap.Skipped()
	if score, ok := series.ThresholdAtFDR(cfg.FDR); ok {
		v := score * sign
		s.FDRThreshold = &v
	}
	if score, ok := series.ThresholdAtPEP(cfg.MaxPEP); ok {
		v := score * sign
		s.PEPThreshold = &v
	}
	return s
}

func buildReport(agg *inputmap.Map, cfg *config.Config, summary validation.Summary,
	failed int, par *params) report {
	rep := report{
		FormatVersion: outputFormatVersion,
		MzPEPVersion:  progVersion,
		RunID:         uuid.NewString(),
		Created:       time.Now().UTC().Format(time.RFC3339),
		Files:         par.args,
		FDR:           cfg.FDR,
		MaxPEP:        cfg.MaxPEP,
		Spectra:       summary.Matches,
		FailedMatches: failed,
		// Validated spectra are also the reference hits
		Validated:       count(agg.ReferenceHitsTotal()),
		ValidatedUnique: count(agg.ReferenceUniqueContributionTotal()),
		MeanPEP:         summary.MeanPEP,
	}
	for _, id := range agg.Advocates() {
		sign := 1.0
		name := id.String()
		if a, ok := cfg.ByID(id); ok {
			sign = a.Score.Sign()
			name = a.Name
		}
		tdMap := agg.TargetDecoyMap(id)
		series := tdMap.Series()
		ar := advocateReport{
			Name:               name,
			ID:                 int(id),
			axisStats:          stats(tdMap, series, sign, cfg),
			ValidatedTargets:   summary.Targets[id],
			ValidatedDecoys:    summary.Decoys[id],
			Contribution:       agg.AdvocateContributionTotal(id),
			UniqueContribution: agg.AdvocateUniqueContributionTotal(id),
		}
		if par.debug {
			ar.Series = &series
		}
		for _, fileName := range agg.Files(id) {
			fm := agg.FileTargetDecoyMap(id, fileName)
			ar.Files = append(ar.Files, fileReport{
				Name:               fileName,
				axisStats:          stats(fm, fm.Series(), sign, cfg),
				Contribution:       agg.AdvocateContribution(id, fileName),
				UniqueContribution: agg.AdvocateUniqueContribution(id, fileName),
				ReferenceHits:      agg.ReferenceHits(fileName),
			})
		}
		rep.Advocates = append(rep.Advocates, ar)
	}
	return rep
}

func writeJSON(v any, fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	e := json.NewEncoder(f)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	if err := e.Encode(v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeReport(rep report, fileName string) error {
	return writeJSON(rep, fileName)
}

// writeSeries writes the series of every global map to
// <dir>/<advocate>-series.json
func writeSeries(agg *inputmap.Map, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, id := range agg.Advocates() {
		name := filepath.Join(dir, safeName(id.String())+"-series.json")
		if err := writeJSON(agg.TargetDecoyMap(id).Series(), name); err != nil {
			return err
		}
	}
	return nil
}

func safeName(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}

// Package config holds the settings of an mzPEP run: estimation and
// validation thresholds, the import pool, and which score of which
// search engine goes into the target/decoy maps.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/524D/mzpep/internal/inputmap"
	"github.com/524D/mzpep/internal/targetdecoy"
)

const (
	Ascending  = "ascending"
	Descending = "descending"
)

var validate = validator.New()

var ErrDuplicateAdvocate = errors.New("config: two advocates map to the same search engine")

// Score selects one score parameter of an identification
type Score struct {
	// Accession or name of the cvParam or userParam
	Key string `yaml:"key" json:"key" validate:"required"`
	// ascending: lower is better. descending scores are negated on import.
	Direction string `yaml:"direction,omitempty" json:"direction,omitempty" validate:"omitempty,oneof=ascending descending"`
}

// Sign is the factor that turns the score into a lower-is-better score
func (s Score) Sign() float64 {
	if s.Direction == Descending {
		return -1
	}
	return 1
}

// Secondary is an intermediate score kept in its own target/decoy map
type Secondary struct {
	Kind  int `yaml:"kind" json:"kind" validate:"min=0"`
	Score `yaml:",inline"`
}

// Advocate describes how the results of one search engine are read
type Advocate struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	// Software names in mzIdentML files that identify this engine.
	// Empty means Name.
	Software []string `yaml:"software,omitempty" json:"software,omitempty"`
	Score    Score    `yaml:"score" json:"score"`
	// Bin size for the intermediate score maps of this engine, 0 means the
	// global min_decoys_in_bin
	DecoysInFirstBin int         `yaml:"decoys_in_first_bin,omitempty" json:"decoys_in_first_bin,omitempty" validate:"min=0"`
	Secondary        []Secondary `yaml:"secondary,omitempty" json:"secondary,omitempty" validate:"dive"`
}

// Config is the complete run configuration
type Config struct {
	MinDecoysInBin int           `yaml:"min_decoys_in_bin" json:"min_decoys_in_bin" validate:"min=1"`
	Threads        int           `yaml:"threads" json:"threads" validate:"min=0"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" validate:"min=0"`
	// Requested FDR, used for the threshold report and the suspicious
	// input check
	FDR float64 `yaml:"fdr" json:"fdr" validate:"gt=0,lte=1"`
	// Matches with a PEP up to MaxPEP are validated
	MaxPEP float64 `yaml:"max_pep" json:"max_pep" validate:"gte=0,lte=1"`
	// Failed matches tolerated before the import is aborted, -1 for no
	// limit
	MaxErrors int        `yaml:"max_errors" json:"max_errors" validate:"min=-1"`
	Advocates []Advocate `yaml:"advocates" json:"advocates" validate:"required,min=1,unique=Name,dive"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		MinDecoysInBin: targetdecoy.DefaultMinDecoysInBin,
		Timeout:        72 * time.Hour,
		FDR:            0.01,
		MaxPEP:         0.01,
		MaxErrors:      -1,
		Advocates: []Advocate{
			{Name: "Comet", Score: Score{Key: "MS:1002257"},
				Secondary: []Secondary{{Kind: 1, Score: Score{Key: "MS:1002252", Direction: Descending}}}},
			{Name: "X!Tandem", Software: []string{"X!Tandem", "xtandem", "tandem"},
				Score: Score{Key: "MS:1001330"}},
			{Name: "MS-GF+", Software: []string{"MS-GF+", "MS-GF", "MSGF+"},
				Score: Score{Key: "MS:1002052"}},
			{Name: "Mascot", Score: Score{Key: "MS:1001172"}},
			{Name: "OMSSA", Score: Score{Key: "MS:1001328"}},
			{Name: "MyriMatch", Score: Score{Key: "MS:1001589", Direction: Descending}},
			{Name: "SEQUEST", Score: Score{Key: "MS:1001155", Direction: Descending}},
		},
	}
}

// Load reads a YAML configuration on top of the defaults. A file that
// lists advocates replaces the built-in list.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode is Load for a reader
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode configuration (check for typos): %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the value constraints and that no two advocates map to
// the same engine ID
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	seen := map[inputmap.AdvocateID]string{}
	for i, a := range c.Advocates {
		id := c.id(i)
		if other, ok := seen[id]; ok {
			return fmt.Errorf("%w: %q and %q", ErrDuplicateAdvocate, other, a.Name)
		}
		seen[id] = a.Name
	}
	return nil
}

// Marshal returns the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fingerprint identifies the settings that change how files are read
func (c *Config) Fingerprint() string {
	var b strings.Builder
	for i, a := range c.Advocates {
		fmt.Fprintf(&b, "%d=%s:%s:%s", c.id(i), strings.Join(a.software(), ","), a.Score.Key, a.Score.Direction)
		for _, s := range a.Secondary {
			fmt.Fprintf(&b, "+%d:%s:%s", s.Kind, s.Key, s.Direction)
		}
		b.WriteByte(';')
	}
	return b.String()
}

func (a *Advocate) software() []string {
	if len(a.Software) > 0 {
		return a.Software
	}
	return []string{a.Name}
}

func (c *Config) id(i int) inputmap.AdvocateID {
	if id, ok := inputmap.ParseAdvocate(c.Advocates[i].Name); ok {
		return id
	}
	return inputmap.UserAdvocate + inputmap.AdvocateID(i)
}

// Match finds the advocate for a software name from an identification
// file
func (c *Config) Match(software string) (inputmap.AdvocateID, *Advocate, bool) {
	known, isKnown := inputmap.ParseAdvocate(software)
	for i := range c.Advocates {
		a := &c.Advocates[i]
		for _, s := range a.software() {
			if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(software)) {
				return c.id(i), a, true
			}
		}
		if isKnown && c.id(i) == known {
			return known, a, true
		}
	}
	return 0, nil, false
}

// ByID returns the advocate configured under id
func (c *Config) ByID(id inputmap.AdvocateID) (*Advocate, bool) {
	for i := range c.Advocates {
		if c.id(i) == id {
			return &c.Advocates[i], true
		}
	}
	return nil, false
}

// MinDecoysInBinFor gives the bin size of the intermediate score maps of
// an advocate
func (c *Config) MinDecoysInBinFor(id inputmap.AdvocateID) int {
	if a, ok := c.ByID(id); ok && a.DecoysInFirstBin > 0 {
		return a.DecoysInFirstBin
	}
	return c.MinDecoysInBin
}

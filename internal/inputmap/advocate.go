package inputmap

import (
	"strconv"
	"strings"
)

// AdvocateID identifies a search engine (or other algorithm) that
// contributed scored hits.
type AdvocateID int

// Known search engines. IDs from UserAdvocate upwards are free for
// engines that are only known from the configuration.
const (
	Mascot AdvocateID = iota
	OMSSA
	XTandem
	MSGF
	MSAmanda
	Comet
	MyriMatch
	Andromeda
	Sequest
	Tide
	MetaMorpheus
	Sage

	UserAdvocate AdvocateID = 1000
)

var advocateNames = map[AdvocateID]string{
	Mascot:       "Mascot",
	OMSSA:        "OMSSA",
	XTandem:      "X!Tandem",
	MSGF:         "MS-GF+",
	MSAmanda:     "MS Amanda",
	Comet:        "Comet",
	MyriMatch:    "MyriMatch",
	Andromeda:    "Andromeda",
	Sequest:      "SEQUEST",
	Tide:         "Tide",
	MetaMorpheus: "MetaMorpheus",
	Sage:         "Sage",
}

func (a AdvocateID) String() string {
	if name, ok := advocateNames[a]; ok {
		return name
	}
	return "advocate " + strconv.Itoa(int(a))
}

// normalizeName strips everything but letters and digits, so that
// "X! Tandem", "xtandem" and "X!Tandem" compare equal
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseAdvocate finds a known advocate by (software) name
func ParseAdvocate(name string) (AdvocateID, bool) {
	n := normalizeName(name)
	if n == "" {
		return 0, false
	}
	for id, known := range advocateNames {
		if normalizeName(known) == n {
			return id, true
		}
	}
	// Common aliases used in mzIdentML software names
	switch n {
	case "msgf", "msgfplus":
		return MSGF, true
	case "tandem":
		return XTandem, true
	}
	return 0, false
}

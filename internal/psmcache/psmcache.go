// Package psmcache stores the matches parsed from identification files on
// disk, so that files that did not change are not parsed again.
package psmcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/524D/mzpep/internal/psmimport"
)

// Increment when the payload or the Match encoding changes
const schemaVersion uint16 = 1

// Digest identifies one version of one input file read with one scoring
// configuration
type Digest [sha256.Size]byte

// Cache is a directory of msgpack encoded match lists.
// A nil *Cache stores nothing and never hits. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

type payload struct {
	Schema  uint16
	Source  string
	Matches []psmimport.Match
}

// Open creates the cache directory if needed. An empty dir selects
// mzpep under the user cache directory.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "mzpep")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.dir
}

// KeyFor computes the digest of a file from its absolute path, size and
// modification time, and a fingerprint of the settings used to read it.
func KeyFor(path, fingerprint string) (Digest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Digest{}, err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return Digest{}, err
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00%s", abs, fi.Size(), fi.ModTime().UnixNano(), fingerprint)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

func (c *Cache) pathFor(key Digest) string {
	return filepath.Join(c.dir, hex.EncodeToString(key[:])+".mp")
}

// Put writes the matches read from source under key
func (c *Cache) Put(key Digest, source string, matches []psmimport.Match) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	f, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	enc := msgpack.NewEncoder(f)
	if err = enc.Encode(&payload{Schema: schemaVersion, Source: source, Matches: matches}); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads the matches stored under key. Entries written with another
// schema version are treated as missing.
func (c *Cache) Get(key Digest) ([]psmimport.Match, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var pl payload
	if err := msgpack.NewDecoder(f).Decode(&pl); err != nil {
		return nil, false, fmt.Errorf("psmcache: %s: %w", f.Name(), err)
	}
	if pl.Schema != schemaVersion {
		return nil, false, nil
	}
	return pl.Matches, true, nil
}

// Drop removes all cache entries
func (c *Cache) Drop() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := filepath.Glob(filepath.Join(c.dir, "*.mp"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Remove(e); err != nil {
			return err
		}
	}
	return nil
}

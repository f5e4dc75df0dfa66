// Package lockfile implements .rpgtrans.lock — a lock file that tracks
// MD5 checksums of source text per entry ID. When the game script is
// re-extracted and an entry's source text changes, the stale translation
// can be detected and reset instead of shipping an outdated line.
//
// The lock file is stored alongside .rpgtrans.yaml.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MoriTranslates/rpgmaker-translator/project"
)

// LockFileName is the default lock file name.
const LockFileName = ".rpgtrans.lock"

// Version is the lock file format version.
const Version = 1

// LockFile represents the .rpgtrans.lock file structure.
type LockFile struct {
	Version   int               `yaml:"version"`
	Checksums map[string]string `yaml:"checksums"` // entry ID -> md5 of source

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the lock file from the given directory.
// Returns an empty lock file if the file doesn't exist.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.path = path

	if lf.Checksums == nil {
		lf.Checksums = make(map[string]string)
	}

	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksum operations
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// IsStale reports whether an entry's source text has changed since its
// translation was recorded. Entries never recorded are not stale: they
// were never translated against any source.
func (lf *LockFile) IsStale(id, source string) bool {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	oldHash, ok := lf.Checksums[id]
	if !ok {
		return false
	}
	return oldHash != Hash(source)
}

// Update records the source checksum for an entry after successful
// translation.
func (lf *LockFile) Update(id, source string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.Checksums[id] = Hash(source)
}

// StaleEntries returns the entries whose recorded source checksum no
// longer matches their current source text, preserving input order.
func (lf *LockFile) StaleEntries(entries []*project.Entry) []*project.Entry {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	var stale []*project.Entry
	for _, e := range entries {
		oldHash, ok := lf.Checksums[e.ID]
		if ok && oldHash != Hash(e.Original) {
			stale = append(stale, e)
		}
	}
	return stale
}

// Clean removes checksums for entry IDs no longer present in the
// project. Prevents stale records from accumulating across re-extracts.
func (lf *LockFile) Clean(entries []*project.Entry) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	valid := make(map[string]bool, len(entries))
	for _, e := range entries {
		valid[e.ID] = true
	}

	for id := range lf.Checksums {
		if !valid[id] {
			delete(lf.Checksums, id)
		}
	}
}

// Count returns the number of recorded checksums.
func (lf *LockFile) Count() int {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return len(lf.Checksums)
}

// IDs returns the recorded entry IDs, sorted.
func (lf *LockFile) IDs() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	ids := make([]string, 0, len(lf.Checksums))
	for id := range lf.Checksums {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Package checksum provides CRC32 content verification for installed game
// files, backed by a persistent cache keyed by path and modification time.
package checksum

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/fslock"

	"github.com/xor-128/TheSims4Updater/internal/utils/logger"
)

// storeDelimiter separates the fields of one persisted cache line:
// path|modifiedAtMillis|checksumHex
const storeDelimiter = "|"

// Entry is one cached checksum. It is trusted only while ModifiedAt still
// matches the file's current modification time.
type Entry struct {
	Path       string
	Checksum   uint32
	ModifiedAt int64 // millisecond epoch
}

// Cache maps file paths to checksum entries and mirrors every update to a
// flat line-oriented store on disk. The in-memory table is safe for
// concurrent use; the backing file is serialized behind a file lock.
type Cache struct {
	storePath string
	entries   sync.Map // path -> Entry

	// saveMu serializes save() between goroutines; fslock only guards
	// against other processes and is not safe for concurrent use from
	// the same process.
	saveMu sync.Mutex
	lock   *fslock.Lock
}

// NewCache opens (or initializes) the cache backed by storePath and loads
// any persisted entries. Load failures degrade to an empty cache.
func NewCache(storePath string) *Cache {
	c := &Cache{
		storePath: storePath,
		lock:      fslock.New(storePath + ".lock"),
	}
	c.Load()
	return c
}

// Lookup returns the cached entry for path, if any.
func (c *Cache) Lookup(path string) (Entry, bool) {
	v, ok := c.entries.Load(path)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Record upserts the checksum for path and rewrites the backing store.
// Persistence failures are logged and otherwise ignored; the in-memory
// entry is kept either way.
func (c *Cache) Record(path string, sum uint32, modifiedAt int64) {
	c.entries.Store(path, Entry{Path: path, Checksum: sum, ModifiedAt: modifiedAt})
	if err := c.save(); err != nil {
		logger.Logger().Warnf("persisting checksum cache: %v", err)
	}
}

// Load reads the backing store, merging its records into the in-memory
// table; entries recorded since construction are kept. Malformed lines are
// skipped; a missing or unreadable store leaves the table unchanged.
func (c *Cache) Load() {
	f, err := os.Open(c.storePath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Logger().Warnf("loading checksum cache %s: %v", c.storePath, err)
		}
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		entry, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		c.entries.Store(entry.Path, entry)
	}
	if err := scanner.Err(); err != nil {
		logger.Logger().Warnf("reading checksum cache %s: %v", c.storePath, err)
	}
}

// save rewrites the whole store under the file lock. A full rewrite keeps
// recovery trivial; writes are one-per-distinct-file so the amortized cost
// is acceptable.
func (c *Cache) save() error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	if err := c.lock.LockWithTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("locking %s: %w", c.storePath, err)
	}
	defer c.lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.storePath), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp := c.storePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	c.entries.Range(func(_, v any) bool {
		e := v.(Entry)
		fmt.Fprintf(w, "%s%s%d%s%08x\n", e.Path, storeDelimiter, e.ModifiedAt, storeDelimiter, e.Checksum)
		return true
	})
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.storePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", c.storePath, err)
	}
	return nil
}

func parseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, false
	}
	fields := strings.Split(line, storeDelimiter)
	if len(fields) != 3 || fields[0] == "" {
		return Entry{}, false
	}
	mtime, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	sum, err := strconv.ParseUint(fields[2], 16, 32)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Path: fields[0], ModifiedAt: mtime, Checksum: uint32(sum)}, true
}

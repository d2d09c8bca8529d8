package checksum

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	store := filepath.Join(t.TempDir(), "checksums.txt")

	c := NewCache(store)
	c.Record("Game/Bin/TS4_x64.exe", 0xdeadbeef, 1700000000123)

	reloaded := NewCache(store)
	entry, ok := reloaded.Lookup("Game/Bin/TS4_x64.exe")
	require.True(t, ok)
	assert.Equal(t, uint32(0xdeadbeef), entry.Checksum)
	assert.Equal(t, int64(1700000000123), entry.ModifiedAt)
}

func TestCacheUpsertReplacesEntry(t *testing.T) {
	store := filepath.Join(t.TempDir(), "checksums.txt")

	c := NewCache(store)
	c.Record("a.package", 1, 10)
	c.Record("a.package", 2, 20)

	entry, ok := c.Lookup("a.package")
	require.True(t, ok)
	assert.Equal(t, uint32(2), entry.Checksum)
	assert.Equal(t, int64(20), entry.ModifiedAt)

	reloaded := NewCache(store)
	entry, ok = reloaded.Lookup("a.package")
	require.True(t, ok)
	assert.Equal(t, uint32(2), entry.Checksum)
}

func TestCacheSkipsMalformedLines(t *testing.T) {
	store := filepath.Join(t.TempDir(), "checksums.txt")
	content := "good.package|123|0000abcd\n" +
		"no-delimiters-at-all\n" +
		"bad-mtime|not-a-number|0000abcd\n" +
		"bad-sum|123|zzzz\n" +
		"|123|0000abcd\n" +
		"\n"
	require.NoError(t, os.WriteFile(store, []byte(content), 0644))

	c := NewCache(store)
	entry, ok := c.Lookup("good.package")
	require.True(t, ok)
	assert.Equal(t, uint32(0xabcd), entry.Checksum)

	for _, p := range []string{"no-delimiters-at-all", "bad-mtime", "bad-sum", ""} {
		_, ok := c.Lookup(p)
		assert.False(t, ok, "entry %q should have been skipped", p)
	}
}

func TestCacheConcurrentRecords(t *testing.T) {
	store := filepath.Join(t.TempDir(), "checksums.txt")
	c := NewCache(store)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Record(fmt.Sprintf("file-%02d.package", i), uint32(i), int64(i*1000))
		}(i)
	}
	wg.Wait()

	reloaded := NewCache(store)
	for i := 0; i < writers; i++ {
		entry, ok := reloaded.Lookup(fmt.Sprintf("file-%02d.package", i))
		require.True(t, ok, "entry %d missing after concurrent writes", i)
		assert.Equal(t, uint32(i), entry.Checksum)
	}
}

func TestCacheLoadMergesIntoExistingTable(t *testing.T) {
	store := filepath.Join(t.TempDir(), "checksums.txt")
	require.NoError(t, os.WriteFile(store, []byte("persisted.package|100|0000000a\n"), 0644))

	c := NewCache(store)
	c.entries.Store("live.package", Entry{Path: "live.package", Checksum: 0xb, ModifiedAt: 200})

	c.Load()

	_, ok := c.Lookup("persisted.package")
	assert.True(t, ok)
	_, ok = c.Lookup("live.package")
	assert.True(t, ok, "in-memory entries survive a reload")
}

func TestCacheMissingStoreIsEmpty(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "nope", "checksums.txt"))
	_, ok := c.Lookup("anything")
	assert.False(t, ok)
}

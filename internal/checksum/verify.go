package checksum

import (
	"context"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/xor-128/TheSims4Updater/internal/utils/logger"
)

// hashChunkSize is the window the file is streamed through between
// cancellation checks.
const hashChunkSize = 64 * 1024

// Expectation pairs a file path with the checksum it must have.
type Expectation struct {
	Path     string
	Checksum uint32
}

// Verifier checks batches of file expectations against actual content,
// consulting the cache to skip files whose modification time is unchanged.
type Verifier struct {
	cache *Cache
}

// NewVerifier returns a Verifier backed by cache.
func NewVerifier(cache *Cache) *Verifier {
	return &Verifier{cache: cache}
}

// VerifyAll checks every expectation concurrently and reports whether all
// of them match. The first mismatch cancels the remaining in-flight checks;
// their early abort cannot change the aggregate, which is already false.
func (v *Verifier) VerifyAll(ctx context.Context, batch []Expectation) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var failed atomic.Bool
	var wg sync.WaitGroup
	for _, exp := range batch {
		wg.Add(1)
		go func(exp Expectation) {
			defer wg.Done()
			if !v.verifyOne(ctx, exp) {
				failed.Store(true)
				cancel()
			}
		}(exp)
	}
	wg.Wait()
	return !failed.Load()
}

// verifyOne returns true when the file at exp.Path matches exp.Checksum.
// Missing files and I/O failures count as mismatches.
func (v *Verifier) verifyOne(ctx context.Context, exp Expectation) bool {
	log := logger.Logger()

	info, err := os.Stat(exp.Path)
	if err != nil {
		log.Infof("verify %s: file missing", exp.Path)
		return false
	}
	mtime := info.ModTime().UnixMilli()

	if entry, ok := v.cache.Lookup(exp.Path); ok && entry.ModifiedAt == mtime {
		if entry.Checksum != exp.Checksum {
			log.Infof("verify %s: cached checksum %08x, expected %08x", exp.Path, entry.Checksum, exp.Checksum)
			return false
		}
		return true
	}

	sum, err := v.hashFile(ctx, exp.Path)
	if err != nil {
		if ctx.Err() == nil {
			log.Warnf("verify %s: computing checksum: %v", exp.Path, err)
		}
		return false
	}

	// The cache stores what the file actually contains, matching or not.
	v.cache.Record(exp.Path, sum, mtime)

	if sum != exp.Checksum {
		log.Infof("verify %s: checksum %08x, expected %08x", exp.Path, sum, exp.Checksum)
		return false
	}
	return true
}

// hashFile streams path through CRC32, polling ctx between chunks so a
// tripped batch aborts without finishing the file.
func (v *Verifier) hashFile(ctx context.Context, path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	buf := make([]byte, hashChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return h.Sum32(), nil
}

// Sum computes the CRC32 of path without cache interaction or cancellation.
func Sum(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := crc32.NewIEEE()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// Package fetch downloads patch payloads with a bounded worker pool,
// resuming partial files and retrying transient failures.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/schollz/progressbar/v3"

	"github.com/xor-128/TheSims4Updater/internal/utils/logger"
)

const maxAttempts = 4

// partSuffix marks an in-progress download; completed files are renamed
// into place so a crash never leaves a truncated payload under the final
// name.
const partSuffix = ".part"

// Fetcher downloads files into a destination directory.
type Fetcher struct {
	client  *http.Client
	workers int
}

// New returns a Fetcher running the given number of download workers.
func New(workers int) *Fetcher {
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{client: newSecureHTTPClient(), workers: workers}
}

// newSecureHTTPClient returns an http.Client with a restricted TLS
// configuration. Callers reuse this instead of re-defining the TLS settings
// everywhere.
func newSecureHTTPClient() *http.Client {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
	}
	transport := &http.Transport{
		TLSClientConfig:   tlsConfig,
		ForceAttemptHTTP2: true,
	}
	return &http.Client{Transport: transport}
}

// FetchBytes downloads one URL into memory. Used for small metadata such
// as the manifest and its signature.
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// FetchAll downloads every URL into destDir, showing a single progress bar
// tracking files completed vs total. The first failure, after retries are
// exhausted, is returned; remaining queued downloads are skipped.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, destDir string) error {
	log := logger.Logger()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating download directory %s: %w", destDir, err)
	}

	total := len(urls)
	jobs := make(chan string, total)
	var wg sync.WaitGroup

	bar := progressbar.NewOptions(total,
		progressbar.OptionFullWidth(),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetDescription("downloading"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	var mu sync.Mutex
	var firstErr error

	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				mu.Lock()
				aborted := firstErr != nil
				mu.Unlock()
				if aborted || ctx.Err() != nil {
					bar.Add(1)
					continue
				}

				bar.Describe(fmt.Sprintf("downloading %s", path.Base(url)))
				if err := f.fetchWithRetry(ctx, url, destDir); err != nil {
					log.Errorf("downloading %s failed: %v", url, err)
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
				bar.Add(1)
			}
		}()
	}

	for _, u := range urls {
		jobs <- u
	}
	close(jobs)

	wg.Wait()
	bar.Finish()
	return firstErr
}

// fetchWithRetry downloads one URL, backing off between attempts.
func (f *Fetcher) fetchWithRetry(ctx context.Context, url, destDir string) error {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Jitter: true,
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = f.fetchOne(ctx, url, destDir); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < maxAttempts {
			d := b.Duration()
			logger.Logger().Warnf("download %s attempt %d/%d failed (%v), retrying in %s",
				path.Base(url), attempt, maxAttempts, err, d)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

// fetchOne downloads url into destDir, resuming an existing partial file
// via an HTTP Range request when the server cooperates.
func (f *Fetcher) fetchOne(ctx context.Context, url, destDir string) error {
	name := path.Base(url)
	destPath := filepath.Join(destDir, name)
	partPath := destPath + partSuffix

	if _, err := os.Stat(destPath); err == nil {
		return nil // already downloaded
	}

	var offset int64
	if info, err := os.Stat(partPath); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		flags |= os.O_TRUNC // server ignored the range, start over
	case http.StatusRequestedRangeNotSatisfiable:
		// The partial file already covers the whole payload (a crash
		// between download and rename); promote it into place.
		if offset > 0 {
			return os.Rename(partPath, destPath)
		}
		return fmt.Errorf("bad status: %s", resp.Status)
	default:
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(partPath, destPath)
}

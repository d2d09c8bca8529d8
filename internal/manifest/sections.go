package manifest

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/xor-128/TheSims4Updater/internal/checksum"
)

// Expectations unpacks the section's checksum blob into verifier
// expectations, with paths resolved under gameDir. Sections without a blob
// return an empty batch.
//
// Blob format, after base64 and xz: one file per line,
// "crc32hex  relative/path" with a two-space separator. Malformed lines are
// skipped.
func (s Section) Expectations(gameDir string) ([]checksum.Expectation, error) {
	if s.packed == "" {
		return nil, nil
	}
	compressed, err := base64.StdEncoding.DecodeString(s.packed)
	if err != nil {
		return nil, fmt.Errorf("section %s: decoding checksum blob: %w", s.Name, err)
	}
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("section %s: opening checksum blob: %w", s.Name, err)
	}

	var batch []checksum.Expectation
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "  ", 2)
		if len(parts) != 2 {
			continue
		}
		sum, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 32)
		if err != nil {
			continue
		}
		rel := strings.TrimSpace(parts[1])
		if rel == "" {
			continue
		}
		batch = append(batch, checksum.Expectation{
			Path:     filepath.Join(gameDir, filepath.FromSlash(rel)),
			Checksum: uint32(sum),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("section %s: reading checksum blob: %w", s.Name, err)
	}
	return batch, nil
}

// PackChecksums builds a section checksum blob from relative path to CRC32
// pairs. Used by tooling that publishes manifests and by tests.
func PackChecksums(sums map[string]uint32) (string, error) {
	var plain bytes.Buffer
	for rel, sum := range sums {
		fmt.Fprintf(&plain, "%08x  %s\n", sum, filepath.ToSlash(rel))
	}

	var compressed bytes.Buffer
	w, err := xz.NewWriter(&compressed)
	if err != nil {
		return "", fmt.Errorf("opening xz writer: %w", err)
	}
	if _, err := w.Write(plain.Bytes()); err != nil {
		return "", fmt.Errorf("compressing checksum list: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("closing xz writer: %w", err)
	}
	return base64.StdEncoding.EncodeToString(compressed.Bytes()), nil
}

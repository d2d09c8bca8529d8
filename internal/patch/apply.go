package patch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xor-128/TheSims4Updater/internal/utils/logger"
)

// DeltaSuffix marks a payload file as a binary diff against the installed
// file of the same relative path. Anything else in a payload directory is a
// verbatim replacement.
const DeltaSuffix = ".xdelta"

// ErrDeltaTool reports a non-zero exit from the external diff tool. It is
// fatal to the enclosing patch; retrying cannot fix a corrupt payload or an
// incompatible tool.
var ErrDeltaTool = errors.New("delta tool failed")

// DeltaTool applies a binary-diff payload to original, writing the patched
// result to output. Implementations report failure through the returned
// error; only success or failure is contractually meaningful.
type DeltaTool interface {
	Apply(ctx context.Context, original, payload, output string) error
}

// Applier mutates installed files from a staged patch payload directory.
type Applier struct {
	gameDir string
	tool    DeltaTool
}

// NewApplier returns an Applier that patches files under gameDir using tool
// for binary diffs.
func NewApplier(gameDir string, tool DeltaTool) *Applier {
	return &Applier{gameDir: gameDir, tool: tool}
}

// ApplyPayload applies every entry under payloadDir to the game directory.
// Delta payloads go through the external tool and replace the original
// atomically; other files are moved into place verbatim. The first failure
// aborts the patch, leaving it partially applied; there is no rollback.
// Consumed payload files are deleted as the patch progresses.
func (a *Applier) ApplyPayload(ctx context.Context, payloadDir string) error {
	log := logger.Logger()

	entries, err := collectEntries(payloadDir)
	if err != nil {
		return fmt.Errorf("reading payload %s: %w", payloadDir, err)
	}

	for _, rel := range entries {
		src := filepath.Join(payloadDir, rel)
		if strings.HasSuffix(rel, DeltaSuffix) {
			target := filepath.Join(a.gameDir, strings.TrimSuffix(rel, DeltaSuffix))
			log.Debugf("delta-patching %s", strings.TrimSuffix(rel, DeltaSuffix))
			if err := a.applyDelta(ctx, target, src); err != nil {
				return err
			}
			continue
		}
		dest := filepath.Join(a.gameDir, rel)
		log.Debugf("replacing %s", rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", rel, err)
		}
		if err := moveFile(src, dest); err != nil {
			return fmt.Errorf("installing %s: %w", rel, err)
		}
	}

	// Everything applied; drop whatever scaffolding remains.
	if err := os.RemoveAll(payloadDir); err != nil {
		logger.Logger().Warnf("removing payload dir %s: %v", payloadDir, err)
	}
	return nil
}

// applyDelta runs the tool against original and swaps the result into
// place. The original is untouched unless the tool succeeds.
func (a *Applier) applyDelta(ctx context.Context, original, payload string) error {
	output := original + ".patched"
	if err := a.tool.Apply(ctx, original, payload, output); err != nil {
		os.Remove(output)
		return fmt.Errorf("patching %s: %w", original, err)
	}
	if err := os.Remove(original); err != nil {
		os.Remove(output)
		return fmt.Errorf("removing original %s: %w", original, err)
	}
	if err := os.Rename(output, original); err != nil {
		return fmt.Errorf("installing patched %s: %w", original, err)
	}
	if err := os.Remove(payload); err != nil {
		logger.Logger().Warnf("removing consumed payload %s: %v", payload, err)
	}
	return nil
}

// collectEntries lists payload files relative to root in a deterministic
// order.
func collectEntries(root string) ([]string, error) {
	var entries []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return entries, nil
}

// moveFile renames src onto dest, overwriting it, and falls back to a copy
// when the payload staging dir sits on a different filesystem.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

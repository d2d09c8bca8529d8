// Package archive extracts downloaded patch archives into a staging
// directory for the patch applier.
package archive

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/xor-128/TheSims4Updater/internal/utils/logger"
)

// Extract unpacks the archive at src into destDir, choosing the container
// format from the file name. Supported: .zip, .tar.xz, .tar.zst.
func Extract(src, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating staging directory %s: %w", destDir, err)
	}

	name := strings.ToLower(src)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return extractZip(src, destDir)
	case strings.HasSuffix(name, ".tar.xz"):
		return extractTarXZ(src, destDir)
	case strings.HasSuffix(name, ".tar.zst"):
		return extractTarZst(src, destDir)
	default:
		return fmt.Errorf("unsupported archive format: %s", filepath.Base(src))
	}
}

func extractZip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", src, err)
	}
	defer r.Close()

	for _, f := range r.File {
		dest, err := sanitizePath(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening entry %s: %w", f.Name, err)
		}
		err = writeEntry(dest, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractTarXZ(src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", src, err)
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("opening xz stream %s: %w", src, err)
	}
	return extractTar(r, destDir)
}

func extractTarZst(src, destDir string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", src, err)
	}
	defer f.Close()

	r, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("opening zstd stream %s: %w", src, err)
	}
	defer r.Close()
	return extractTar(r, destDir)
}

func extractTar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		dest, err := sanitizePath(destDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(dest, tr); err != nil {
				return fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		default:
			logger.Logger().Debugf("skipping tar entry %s (type %c)", hdr.Name, hdr.Typeflag)
		}
	}
}

func writeEntry(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// sanitizePath rejects entries that would escape destDir. An entry that
// resolves to destDir itself is allowed: archives built with "tar -C dir
// -c ." carry a leading "./" directory entry.
func sanitizePath(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	root := filepath.Clean(destDir)
	if dest != root && !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes staging directory", name)
	}
	return dest, nil
}

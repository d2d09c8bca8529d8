package updater

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xor-128/TheSims4Updater/internal/config"
	"github.com/xor-128/TheSims4Updater/internal/manifest"
	"github.com/xor-128/TheSims4Updater/internal/patch"
)

// appendDelta is a stand-in for xdelta3 that appends the payload bytes to
// the original.
type appendDelta struct{ fail bool }

func (d *appendDelta) Apply(_ context.Context, original, payload, output string) error {
	if d.fail {
		return fmt.Errorf("%w: exit code 1", patch.ErrDeltaTool)
	}
	orig, err := os.ReadFile(original)
	if err != nil {
		return err
	}
	pay, err := os.ReadFile(payload)
	if err != nil {
		return err
	}
	return os.WriteFile(output, append(orig, pay...), 0644)
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// mirror serves a manifest and named payload archives.
func mirror(t *testing.T, manifestJSON string, archives map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/manifest.json":
			w.Write([]byte(manifestJSON))
		default:
			data, ok := archives[filepath.Base(r.URL.Path)]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(data)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, mirrorURL string) config.Config {
	t.Helper()
	base := t.TempDir()
	return config.Config{
		GameDir:     filepath.Join(base, "game"),
		MirrorURL:   mirrorURL,
		DownloadDir: filepath.Join(base, "downloads"),
		CacheFile:   filepath.Join(base, "checksums.txt"),
		Workers:     2,
	}
}

func installGame(t *testing.T, gameDir, ver string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(gameDir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	if ver != "" {
		path := filepath.Join(gameDir, versionFileRel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(ver+"\n"), 0644))
	}
}

const chainManifest = `{
  "game": "The Sims 4",
  "patches": [
    {"from": "1.0.0.0", "to": "1.1.0.0", "files": ["patch-1.1.zip"]},
    {"from": "1.1.0.0", "to": "1.2.0.0", "files": ["patch-1.2.zip"]}
  ]
}`

func TestUpdateAppliesChainInOrder(t *testing.T) {
	archives := map[string][]byte{
		"patch-1.1.zip": zipArchive(t, map[string]string{
			"Game/Bin/TS4_x64.exe.xdelta": "+v1.1",
		}),
		"patch-1.2.zip": zipArchive(t, map[string]string{
			"Game/Bin/TS4_x64.exe.xdelta": "+v1.2",
			"Data/Client/new.package":     "fresh file",
		}),
	}
	srv := mirror(t, chainManifest, archives)
	cfg := testConfig(t, srv.URL)
	installGame(t, cfg.GameDir, "1.0.0.0", map[string]string{
		"Game/Bin/TS4_x64.exe": "base",
	})

	u := New(cfg, WithDeltaTool(&appendDelta{}))
	s, err := u.NewSession(context.Background())
	require.NoError(t, err)
	require.Len(t, s.Chain.Patches, 2)
	assert.Equal(t, "1.2.0.0", s.Chain.Latest.String())

	require.NoError(t, u.Run(context.Background(), s))

	exe, err := os.ReadFile(filepath.Join(cfg.GameDir, "Game/Bin/TS4_x64.exe"))
	require.NoError(t, err)
	assert.Equal(t, "base+v1.1+v1.2", string(exe), "deltas applied in ascending order")

	fresh, err := os.ReadFile(filepath.Join(cfg.GameDir, "Data/Client/new.package"))
	require.NoError(t, err)
	assert.Equal(t, "fresh file", string(fresh))

	ver, err := os.ReadFile(filepath.Join(cfg.GameDir, versionFileRel))
	require.NoError(t, err)
	assert.Equal(t, "1.2.0.0\n", string(ver))

	// Consumed archives are cleaned up.
	entries, err := os.ReadDir(cfg.DownloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateAlreadyUpToDate(t *testing.T) {
	srv := mirror(t, chainManifest, nil)
	cfg := testConfig(t, srv.URL)
	installGame(t, cfg.GameDir, "1.2.0.0", nil)

	u := New(cfg, WithDeltaTool(&appendDelta{}))
	s, err := u.NewSession(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Chain.UpToDate())
	assert.NoError(t, u.Run(context.Background(), s))
}

func TestUpdateNotInstalledRequiresFullInstall(t *testing.T) {
	srv := mirror(t, chainManifest, nil)
	cfg := testConfig(t, srv.URL)

	u := New(cfg, WithDeltaTool(&appendDelta{}))
	s, err := u.NewSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, s.Installed)
	assert.Empty(t, s.Chain.Patches)

	err = u.Run(context.Background(), s)
	assert.ErrorIs(t, err, ErrFullInstallRequired)
}

func TestUpdateDeltaFailureStopsChain(t *testing.T) {
	archives := map[string][]byte{
		"patch-1.1.zip": zipArchive(t, map[string]string{
			"Game/Bin/TS4_x64.exe.xdelta": "+v1.1",
		}),
		"patch-1.2.zip": zipArchive(t, map[string]string{
			"Game/Bin/TS4_x64.exe.xdelta": "+v1.2",
		}),
	}
	srv := mirror(t, chainManifest, archives)
	cfg := testConfig(t, srv.URL)
	installGame(t, cfg.GameDir, "1.0.0.0", map[string]string{
		"Game/Bin/TS4_x64.exe": "base",
	})

	u := New(cfg, WithDeltaTool(&appendDelta{fail: true}))
	s, err := u.NewSession(context.Background())
	require.NoError(t, err)

	err = u.Run(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, patch.ErrDeltaTool)

	// First patch failed, so the version marker never advanced and the
	// original binary is untouched.
	exe, err := os.ReadFile(filepath.Join(cfg.GameDir, "Game/Bin/TS4_x64.exe"))
	require.NoError(t, err)
	assert.Equal(t, "base", string(exe))

	ver, err := os.ReadFile(filepath.Join(cfg.GameDir, versionFileRel))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0.0\n", string(ver))
}

func TestVerifySection(t *testing.T) {
	goodContent := "installed bytes"
	packed, err := manifest.PackChecksums(map[string]uint32{
		"Data/Client/client.package": crc32.ChecksumIEEE([]byte(goodContent)),
	})
	require.NoError(t, err)

	manifestJSON := fmt.Sprintf(`{
	  "game": "The Sims 4",
	  "patches": [],
	  "sections": {"base": {"totalSize": 1, "checksums": %q}}
	}`, packed)

	srv := mirror(t, manifestJSON, nil)
	cfg := testConfig(t, srv.URL)
	installGame(t, cfg.GameDir, "1.0.0.0", map[string]string{
		"Data/Client/client.package": goodContent,
	})

	u := New(cfg, WithDeltaTool(&appendDelta{}))
	s, err := u.NewSession(context.Background())
	require.NoError(t, err)

	ok, err := u.VerifySection(context.Background(), s.Manifest, "base")
	require.NoError(t, err)
	assert.True(t, ok)

	// Corrupt the file; verification must now fail. The mtime is pushed
	// forward so the cached checksum cannot be reused.
	corrupted := filepath.Join(cfg.GameDir, "Data/Client/client.package")
	require.NoError(t, os.WriteFile(corrupted, []byte("corrupted"), 0644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(corrupted, future, future))
	ok, err = u.VerifySection(context.Background(), s.Manifest, "base")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = u.VerifySection(context.Background(), s.Manifest, "EP99")
	assert.Error(t, err)
}

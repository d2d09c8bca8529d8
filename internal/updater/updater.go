// Package updater sequences a full update run: resolve the patch chain,
// fetch and stage each patch, apply it, and verify the installed state.
package updater

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/xor-128/TheSims4Updater/internal/archive"
	"github.com/xor-128/TheSims4Updater/internal/checksum"
	"github.com/xor-128/TheSims4Updater/internal/config"
	"github.com/xor-128/TheSims4Updater/internal/fetch"
	"github.com/xor-128/TheSims4Updater/internal/manifest"
	"github.com/xor-128/TheSims4Updater/internal/patch"
	"github.com/xor-128/TheSims4Updater/internal/utils/logger"
	"github.com/xor-128/TheSims4Updater/internal/version"
)

// versionFileRel locates the installed version marker inside the game
// directory.
const versionFileRel = "Game/Bin/GameVersion.txt"

// ErrFullInstallRequired reports that no installed version was found; the
// incremental path does not apply and a full install is needed instead.
var ErrFullInstallRequired = errors.New("game not installed, full install required")

// Session is the immutable context of one update run: what is installed,
// what the manifest offers, and the resolved chain between them.
type Session struct {
	Installed *version.Version // nil when the game is not installed
	Manifest  *manifest.Manifest
	Chain     patch.Chain
}

// Updater wires the fetcher, applier and verifier into the update flow.
type Updater struct {
	cfg      config.Config
	tool     patch.DeltaTool
	fetcher  *fetch.Fetcher
	applier  *patch.Applier
	cache    *checksum.Cache
	verifier *checksum.Verifier
}

// Option overrides a collaborator, mainly so tests can avoid the real
// xdelta binary.
type Option func(*Updater)

// WithDeltaTool substitutes the binary-diff strategy.
func WithDeltaTool(t patch.DeltaTool) Option {
	return func(u *Updater) { u.tool = t }
}

// New builds an Updater from cfg.
func New(cfg config.Config, opts ...Option) *Updater {
	cache := checksum.NewCache(cfg.CacheFile)
	u := &Updater{
		cfg:      cfg,
		tool:     patch.NewXDelta(cfg.XDeltaPath),
		fetcher:  fetch.New(cfg.Workers),
		cache:    cache,
		verifier: checksum.NewVerifier(cache),
	}
	for _, opt := range opts {
		opt(u)
	}
	u.applier = patch.NewApplier(cfg.GameDir, u.tool)
	return u
}

// NewSession reads the installed version, downloads and parses the
// manifest, and resolves the patch chain.
func (u *Updater) NewSession(ctx context.Context) (*Session, error) {
	log := logger.Logger()

	installed, err := u.installedVersion()
	if err != nil {
		return nil, err
	}
	if installed != nil {
		log.Infof("installed version %s", installed)
	} else {
		log.Info("no installed version found")
	}

	m, err := u.fetchManifest(ctx)
	if err != nil {
		return nil, err
	}

	chain := patch.ResolveChain(installed, m.Patches)
	if !chain.Latest.IsZero() {
		log.Infof("latest available version %s", chain.Latest)
	}
	return &Session{Installed: installed, Manifest: m, Chain: chain}, nil
}

// Run applies the session's patch chain in order. A failed patch aborts the
// chain; earlier patches stay applied.
func (u *Updater) Run(ctx context.Context, s *Session) error {
	log := logger.Logger()

	if s.Installed == nil {
		return ErrFullInstallRequired
	}
	if s.Chain.UpToDate() {
		log.Info("already up to date")
		return nil
	}

	log.Infof("applying %d patches (%s download)",
		len(s.Chain.Patches), humanize.Bytes(uint64(s.Chain.TotalCompressedSize())))

	for _, d := range s.Chain.Patches {
		if err := u.applyPatch(ctx, d); err != nil {
			return fmt.Errorf("patch %s -> %s: %w", d.From, d.To, err)
		}
		if err := u.writeInstalledVersion(d.To); err != nil {
			return fmt.Errorf("recording version %s: %w", d.To, err)
		}
		log.Infof("patched to %s", d.To)
	}
	return nil
}

// applyPatch downloads, stages and applies one patch, then removes its
// consumed archives.
func (u *Updater) applyPatch(ctx context.Context, d patch.Descriptor) error {
	urls := make([]string, len(d.Files))
	for i, f := range d.Files {
		urls[i] = u.cfg.MirrorURL + "/" + f
	}
	if err := u.fetcher.FetchAll(ctx, urls, u.cfg.DownloadDir); err != nil {
		return fmt.Errorf("downloading payloads: %w", err)
	}

	staging := filepath.Join(u.cfg.DownloadDir, "staging-"+uuid.NewString())
	defer os.RemoveAll(staging)

	for _, f := range d.Files {
		archivePath := filepath.Join(u.cfg.DownloadDir, filepath.Base(f))
		if err := archive.Extract(archivePath, staging); err != nil {
			return fmt.Errorf("extracting %s: %w", f, err)
		}
	}
	if err := u.applier.ApplyPayload(ctx, staging); err != nil {
		return err
	}
	for _, f := range d.Files {
		if err := os.Remove(filepath.Join(u.cfg.DownloadDir, filepath.Base(f))); err != nil {
			logger.Logger().Warnf("removing consumed archive %s: %v", f, err)
		}
	}
	return nil
}

// VerifySection checks the named manifest section's files against their
// expected checksums.
func (u *Updater) VerifySection(ctx context.Context, m *manifest.Manifest, name string) (bool, error) {
	log := logger.Logger()

	section, ok := m.Section(name)
	if !ok {
		return false, fmt.Errorf("unknown section %q", name)
	}
	batch, err := section.Expectations(u.cfg.GameDir)
	if err != nil {
		return false, err
	}
	if len(batch) == 0 {
		log.Infof("section %s carries no checksums, skipping", name)
		return true, nil
	}

	log.Infof("verifying section %s (%d files)", name, len(batch))
	ok = u.verifier.VerifyAll(ctx, batch)
	if ok {
		log.Infof("section %s verified", name)
	} else {
		log.Warnf("section %s failed verification", name)
	}
	return ok, nil
}

// fetchManifest downloads, optionally authenticates, and parses the
// manifest from the mirror.
func (u *Updater) fetchManifest(ctx context.Context) (*manifest.Manifest, error) {
	if u.cfg.MirrorURL == "" {
		return nil, fmt.Errorf("mirror.url is not configured")
	}
	data, err := u.fetcher.FetchBytes(ctx, u.cfg.MirrorURL+"/manifest.json")
	if err != nil {
		return nil, fmt.Errorf("downloading manifest: %w", err)
	}

	if u.cfg.KeyringPath != "" {
		sig, err := u.fetcher.FetchBytes(ctx, u.cfg.MirrorURL+"/manifest.json.asc")
		if err != nil {
			return nil, fmt.Errorf("downloading manifest signature: %w", err)
		}
		keyring, err := os.Open(u.cfg.KeyringPath)
		if err != nil {
			return nil, fmt.Errorf("opening keyring: %w", err)
		}
		defer keyring.Close()
		if err := manifest.VerifyDetachedSignature(data, bytes.NewReader(sig), keyring); err != nil {
			return nil, err
		}
	}
	return manifest.Parse(data)
}

// installedVersion reads the version marker, returning nil when the game is
// not installed. A present but unparseable marker is an error the caller
// may choose to treat as "needs full install".
func (u *Updater) installedVersion() (*version.Version, error) {
	data, err := os.ReadFile(filepath.Join(u.cfg.GameDir, versionFileRel))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading version marker: %w", err)
	}
	v, err := version.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (u *Updater) writeInstalledVersion(v version.Version) error {
	path := filepath.Join(u.cfg.GameDir, versionFileRel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(v.String()+"\n"), 0644)
}

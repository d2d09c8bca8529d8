// Package config loads updater settings from an optional YAML file and
// S4U_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const defaultConfigName = "updater"

// Config holds every setting the updater needs. Immutable after Load.
type Config struct {
	// GameDir is the root of the installed game.
	GameDir string

	// MirrorURL is the base URL patches and the manifest are fetched from.
	MirrorURL string

	// DownloadDir receives patch archives and staging directories.
	DownloadDir string

	// CacheFile is the persistent checksum cache store.
	CacheFile string

	// Workers is the download worker count.
	Workers int

	// XDeltaPath locates the xdelta3 binary; empty means PATH lookup.
	XDeltaPath string

	// KeyringPath, when set, enables manifest signature verification
	// against the armored public keyring at that path.
	KeyringPath string
}

// Load reads configuration. The config file is optional; env-only is fine.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(defaultConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	v.SetEnvPrefix("S4U")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("game.dir", "")
	v.SetDefault("mirror.url", "")
	v.SetDefault("download.dir", "downloads")
	v.SetDefault("cache.file", "checksums.txt")
	v.SetDefault("download.workers", 4)
	v.SetDefault("tools.xdelta", "")
	v.SetDefault("manifest.keyring", "")

	_ = v.ReadInConfig()

	cfg := Config{
		GameDir:     strings.TrimSpace(v.GetString("game.dir")),
		MirrorURL:   strings.TrimRight(strings.TrimSpace(v.GetString("mirror.url")), "/"),
		DownloadDir: v.GetString("download.dir"),
		CacheFile:   v.GetString("cache.file"),
		Workers:     v.GetInt("download.workers"),
		XDeltaPath:  v.GetString("tools.xdelta"),
		KeyringPath: v.GetString("manifest.keyring"),
	}

	if cfg.Workers < 1 || cfg.Workers > 64 {
		return Config{}, fmt.Errorf("invalid download.workers %d", cfg.Workers)
	}
	if cfg.DownloadDir == "" {
		return Config{}, fmt.Errorf("download.dir must not be empty")
	}
	if cfg.CacheFile == "" {
		return Config{}, fmt.Errorf("cache.file must not be empty")
	}
	return cfg, nil
}

package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/gitcore/pkg/lockfile"
	"github.com/odvcencio/gitcore/pkg/object"
)

// ConfigFile is the repository-local settings file inside the git directory.
const ConfigFile = "gitcore.toml"

// Duration is a time.Duration written as a string such as "2s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// CoreConfig tunes the object store, ref locking and checkout.
type CoreConfig struct {
	LockTimeout         Duration `toml:"lock_timeout"`
	MaxDeltaDepth       int      `toml:"max_delta_depth"`
	PackThreshold       int      `toml:"pack_threshold"`
	DeltaCacheSize      int      `toml:"delta_cache_size"`
	CheckoutConcurrency int      `toml:"checkout_concurrency,omitempty"`
}

// UserConfig is the identity recorded in commits and reflogs.
type UserConfig struct {
	Name       string `toml:"name,omitempty"`
	Email      string `toml:"email,omitempty"`
	SigningKey string `toml:"signing_key,omitempty"`
}

// Config stores repository-local settings.
type Config struct {
	Core CoreConfig `toml:"core"`
	User UserConfig `toml:"user"`
}

// DefaultConfig returns the settings used when gitcore.toml is missing or
// leaves a key out. A zero CheckoutConcurrency means GOMAXPROCS.
func DefaultConfig() *Config {
	return &Config{
		Core: CoreConfig{
			LockTimeout:    Duration{lockfile.DefaultTimeout},
			MaxDeltaDepth:  object.DefaultMaxDeltaDepth,
			PackThreshold:  object.DefaultPackThreshold,
			DeltaCacheSize: object.DefaultDeltaCacheSize,
		},
	}
}

// ReadConfig reads gitcore.toml from gitDir. A missing file yields the
// defaults.
func ReadConfig(gitDir string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(filepath.Join(gitDir, ConfigFile), cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("read config: unknown key %q", undecoded[0].String())
	}
	return cfg, nil
}

// WriteConfig atomically writes gitcore.toml into gitDir.
func WriteConfig(gitDir string, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	tmp, err := os.CreateTemp(gitDir, ".config-tmp-*")
	if err != nil {
		return fmt.Errorf("write config: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if err := toml.NewEncoder(tmp).Encode(cfg); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: close: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(gitDir, ConfigFile)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write config: rename: %w", err)
	}
	return nil
}

// SetUser stores the commit identity in the repository config.
func (r *Repo) SetUser(name, email string) error {
	cfg, err := ReadConfig(r.GitDir)
	if err != nil {
		return err
	}
	cfg.User.Name = name
	cfg.User.Email = email
	if err := WriteConfig(r.GitDir, cfg); err != nil {
		return err
	}
	r.Config = cfg
	return nil
}

// identity returns the configured user, or a placeholder when none is set.
func (r *Repo) identity(when time.Time) object.Signature {
	sig := object.Signature{Name: r.Config.User.Name, Email: r.Config.User.Email, When: when}
	if sig.Name == "" {
		sig.Name = "gitcore"
	}
	if sig.Email == "" {
		sig.Email = "gitcore@localhost"
	}
	return sig
}

func (r *Repo) who() object.Signature {
	return r.identity(time.Now())
}

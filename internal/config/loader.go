// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `<root>/conf/.env`.
  2. `<root>/conf/moby.yaml`.
  3. Environment variables prefixed `MOBY_`, where `__` maps to “.”
     (e.g., `MOBY_DATABASE__DSN → database.dsn`).

After merging, the tree is unmarshalled into typed structs, defaulted,
validated, and cached in an `atomic.Pointer` for lock-free reads.
`Reload()` calls `Load()` again and swaps the pointer.

Instrumentation
---------------
  - DEBUG: root discovery, YAML read.
  - ERROR: YAML parse, env overlay, unmarshal, validation failures.
  - INFO:  final “config loaded” with key highlights (never secrets).
  - Logs use the global sugared logger (`zap.S()`) so early boot issues
    surface before the file logger is installed.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves MOBY_ROOT or climbs directories until conf/moby.yaml is
// found.  Falls back to the executable layout <root>/bin/moby.
func rootDir() string {
	if r := os.Getenv(defaultRootOverride); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", defaultYAMLFile)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

func joinRoot(root, name string) string { return filepath.Join(root, name) }

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load discovers the root directory and loads from it.
func Load() (*Config, error) { return LoadFrom(rootDir()) }

// LoadFrom reads .env, YAML, and env overrides under root, validates, and
// caches the result.  A missing YAML file is allowed so a container can be
// configured from the environment alone.
func LoadFrom(root string) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", defaultYAMLFile)
	switch err := k.Load(file.Provider(yamlPath), yaml.Parser()); {
	case errors.Is(err, fs.ErrNotExist):
		zap.S().Debugw("config yaml absent", "file", yamlPath)
	case err != nil:
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, fmt.Errorf("load %s: %w", yamlPath, err)
	default:
		zap.S().Debugw("config yaml loaded", "file", yamlPath)
	}

	if err := k.Load(env.Provider(defaultEnvPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Paths.Root = root
	cfg.applyDefaults()
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"log_level", cfg.Log.Level,
		"fact_enabled", cfg.Fact.URL != "",
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// envKey maps MOBY_DATABASE__MAX_OPEN to database.max_open.  The root
// override is not a config key and maps to an unused name.
func envKey(s string) string {
	s = strings.TrimPrefix(s, defaultEnvPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config  { return current.Load() }
func Reload() error { _, err := Load(); return err }

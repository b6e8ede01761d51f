// internal/config/model.go
//
// Typed configuration model for Moby.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   - optional `conf/.env`                   dotenv values,
//   - `conf/moby.yaml`                       primary static file,
//   - `MOBY_`-prefixed environment overrides highest precedence.
//
// Secrets (`database.password`, `discord.token`) may hold a
// `vault:<mount>/<path>#<key>` reference.  The loader keeps the reference
// as-is; cmd/moby resolves it through internal/vault before use.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   - Durations accept Go syntax ("5s", "10m").
//   - The `Paths` block is filled at runtime; YAML must not try to set it.
package config

import "time"

// Defaults applied after unmarshal when a key is absent.
const (
	DefaultListenAddr   = "127.0.0.1:9105"
	DefaultPrefix       = "!"
	DefaultLogLevel     = "info"
	DefaultDBTimeout    = 5 * time.Second
	DefaultFactTTL      = 24 * time.Hour
	DefaultSettingsSize = 1024
	DefaultSettingsTTL  = 10 * time.Minute
	DefaultSecretTTL    = 10 * time.Minute
	defaultLogDirName   = "logs"
	defaultYAMLFile     = "moby.yaml"
	defaultEnvPrefix    = "MOBY_"
	defaultRootOverride = "MOBY_ROOT"
)

// Database holds the connection string and pool tunables.
//
// DSN uses go-sql-driver/mysql syntax.  When Password is set it replaces
// whatever password the DSN carries, so the DSN can live in YAML while the
// secret stays in Vault.
type Database struct {
	DSN      string        `koanf:"dsn"      validate:"required"`
	Password string        `koanf:"password"`
	MaxOpen  int           `koanf:"max_open" validate:"gte=0"`
	MaxIdle  int           `koanf:"max_idle" validate:"gte=0"`
	Timeout  time.Duration `koanf:"timeout"  validate:"gte=0"`
}

// HTTP holds the status server address.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

// Discord holds gateway credentials, the optional log channel, and the
// optional owner allowed to run database admin commands.
type Discord struct {
	Token         string `koanf:"token"          validate:"required"`
	LogChannelID  string `koanf:"log_channel_id" validate:"omitempty,numeric"`
	OwnerID       string `koanf:"owner_id"       validate:"omitempty,numeric"`
	DefaultPrefix string `koanf:"default_prefix" validate:"required,min=1,max=10"`
}

// Log controls level and file location.  An empty Dir means <root>/logs.
type Log struct {
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
	Dir   string `koanf:"dir"`
}

// Fact configures the fact-of-the-day source.  An empty URL disables the
// command.
type Fact struct {
	URL string        `koanf:"url" validate:"omitempty,url"`
	TTL time.Duration `koanf:"ttl" validate:"gte=0"`
}

// Settings sizes the guild settings cache.
type Settings struct {
	Size int           `koanf:"size" validate:"gte=0"`
	TTL  time.Duration `koanf:"ttl"  validate:"gte=0"`
}

// Vault tunes secret caching.  Address and token come from VAULT_ADDR and
// VAULT_TOKEN.
type Vault struct {
	SecretTTL time.Duration `koanf:"secret_ttl" validate:"gte=0"`
}

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string
}

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	Database Database `koanf:"database"`
	HTTP     HTTP     `koanf:"http"`
	Discord  Discord  `koanf:"discord"`
	Log      Log      `koanf:"log"`
	Fact     Fact     `koanf:"fact"`
	Settings Settings `koanf:"settings"`
	Vault    Vault    `koanf:"vault"`
	Paths    Paths    `koanf:"-"`
}

// applyDefaults fills keys the operator left out.
func (c *Config) applyDefaults() {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = DefaultListenAddr
	}
	if c.Discord.DefaultPrefix == "" {
		c.Discord.DefaultPrefix = DefaultPrefix
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Database.Timeout == 0 {
		c.Database.Timeout = DefaultDBTimeout
	}
	if c.Fact.TTL == 0 {
		c.Fact.TTL = DefaultFactTTL
	}
	if c.Settings.Size == 0 {
		c.Settings.Size = DefaultSettingsSize
	}
	if c.Settings.TTL == 0 {
		c.Settings.TTL = DefaultSettingsTTL
	}
	if c.Vault.SecretTTL == 0 {
		c.Vault.SecretTTL = DefaultSecretTTL
	}
}

// LogDir returns the configured log directory, or <root>/logs.
func (c *Config) LogDir() string {
	if c.Log.Dir != "" {
		return c.Log.Dir
	}
	return joinRoot(c.Paths.Root, defaultLogDirName)
}

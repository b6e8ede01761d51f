package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConf(t *testing.T, name, body string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "conf")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return root
}

const sampleYAML = `
database:
  dsn: "moby@tcp(127.0.0.1:3306)/moby?parseTime=true"
  password: "vault:secret/moby#db_password"
  max_open: 20
  timeout: 3s
http:
  listen_addr: "127.0.0.1:9200"
discord:
  token: "abc"
  log_channel_id: "123456789012345678"
  owner_id: "987654321098765432"
fact:
  url: "https://facts.example.com/today"
`

func TestLoadFromYAML(t *testing.T) {
	root := writeConf(t, "moby.yaml", sampleYAML)

	cfg, err := LoadFrom(root)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Database.MaxOpen != 20 || cfg.Database.Timeout != 3*time.Second {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Database.Password != "vault:secret/moby#db_password" {
		t.Errorf("password reference rewritten: %q", cfg.Database.Password)
	}
	if cfg.HTTP.ListenAddr != "127.0.0.1:9200" {
		t.Errorf("listen_addr = %q", cfg.HTTP.ListenAddr)
	}
	if cfg.Discord.OwnerID != "987654321098765432" {
		t.Errorf("owner_id = %q", cfg.Discord.OwnerID)
	}
	if cfg.Discord.DefaultPrefix != DefaultPrefix || cfg.Log.Level != DefaultLogLevel {
		t.Errorf("defaults not applied: %+v %+v", cfg.Discord, cfg.Log)
	}
	if cfg.Fact.TTL != DefaultFactTTL || cfg.Settings.Size != DefaultSettingsSize {
		t.Errorf("defaults not applied: %+v %+v", cfg.Fact, cfg.Settings)
	}
	if got := cfg.LogDir(); got != filepath.Join(root, "logs") {
		t.Errorf("LogDir = %q", got)
	}
	if Get() != cfg {
		t.Errorf("Get did not return the cached config")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	root := writeConf(t, "moby.yaml", sampleYAML)
	t.Setenv("MOBY_HTTP__LISTEN_ADDR", "0.0.0.0:9300")
	t.Setenv("MOBY_DATABASE__MAX_IDLE", "7")
	t.Setenv("MOBY_LOG__LEVEL", "debug")

	cfg, err := LoadFrom(root)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.HTTP.ListenAddr != "0.0.0.0:9300" {
		t.Errorf("listen_addr = %q, want env value", cfg.HTTP.ListenAddr)
	}
	if cfg.Database.MaxIdle != 7 {
		t.Errorf("max_idle = %d, want 7", cfg.Database.MaxIdle)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q", cfg.Log.Level)
	}
}

func TestEnvOnly(t *testing.T) {
	root := t.TempDir()
	t.Setenv("MOBY_DATABASE__DSN", "moby@tcp(db:3306)/moby")
	t.Setenv("MOBY_DISCORD__TOKEN", "xyz")

	cfg, err := LoadFrom(root)
	if err != nil {
		t.Fatalf("LoadFrom without yaml: %v", err)
	}
	if cfg.Database.DSN != "moby@tcp(db:3306)/moby" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.HTTP.ListenAddr != DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.HTTP.ListenAddr)
	}
}

func TestDotEnvLoaded(t *testing.T) {
	root := writeConf(t, ".env", "MOBY_DATABASE__DSN=moby@tcp(db:3306)/moby\nMOBY_DISCORD__TOKEN=fromdotenv\n")
	t.Cleanup(func() {
		os.Unsetenv("MOBY_DATABASE__DSN")
		os.Unsetenv("MOBY_DISCORD__TOKEN")
	})

	cfg, err := LoadFrom(root)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Discord.Token != "fromdotenv" {
		t.Errorf("token = %q", cfg.Discord.Token)
	}
}

func TestValidationNamesEveryField(t *testing.T) {
	root := writeConf(t, "moby.yaml", `
http:
  listen_addr: "not an address"
discord:
  default_prefix: "waytoolongprefix"
`)
	_, err := LoadFrom(root)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	for _, field := range []string{"DSN", "Token", "ListenAddr", "DefaultPrefix"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not name %s", err, field)
		}
	}
}

func TestEnvKey(t *testing.T) {
	cases := map[string]string{
		"MOBY_DATABASE__DSN":           "database.dsn",
		"MOBY_HTTP__LISTEN_ADDR":       "http.listen_addr",
		"MOBY_DISCORD__LOG_CHANNEL_ID": "discord.log_channel_id",
		"MOBY_DISCORD__OWNER_ID":       "discord.owner_id",
	}
	for in, want := range cases {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

package database

import (
	"context"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func TestWithPassword(t *testing.T) {
	out, err := WithPassword("moby@tcp(127.0.0.1:3306)/moby", "s3cret")
	if err != nil {
		t.Fatalf("WithPassword: %v", err)
	}
	cfg, err := mysql.ParseDSN(out)
	if err != nil {
		t.Fatalf("reparse %q: %v", out, err)
	}
	if cfg.User != "moby" || cfg.Passwd != "s3cret" || cfg.DBName != "moby" || cfg.Addr != "127.0.0.1:3306" {
		t.Errorf("dsn fields = %+v", cfg)
	}
	if !cfg.ParseTime {
		t.Errorf("parseTime not enabled")
	}
}

func TestWithPasswordKeepsExisting(t *testing.T) {
	out, err := WithPassword("moby:inline@tcp(db:3306)/moby", "")
	if err != nil {
		t.Fatal(err)
	}
	cfg, _ := mysql.ParseDSN(out)
	if cfg.Passwd != "inline" {
		t.Errorf("password = %q, want inline", cfg.Passwd)
	}
}

func TestWithPasswordRejectsGarbage(t *testing.T) {
	if _, err := WithPassword("not a dsn at all", "pw"); err == nil {
		t.Fatalf("malformed dsn accepted")
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{MaxOpenConns: 3, Retries: -2}.withDefaults()
	if o.MaxOpenConns != 3 {
		t.Errorf("MaxOpenConns overwritten: %d", o.MaxOpenConns)
	}
	if o.MaxIdleConns != DefaultOptions.MaxIdleConns || o.ConnMaxLifetime != 30*time.Minute {
		t.Errorf("defaults not applied: %+v", o)
	}
	if o.Retries != 0 {
		t.Errorf("negative retries kept: %d", o.Retries)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Fatalf("sleep returned true on a cancelled context")
	}
	if !sleep(context.Background(), 0) {
		t.Fatalf("zero sleep reported cancellation")
	}
}

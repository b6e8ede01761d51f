// cmd/moby/main.go
//
// Moby – Discord bot entry point.
//
// Start-up sequence
// -----------------
//
//  1. Load env vars (host-wide file → .env fallback).
//
//  2. Load config (conf/.env, conf/moby.yaml, MOBY_ overrides).
//
//  3. Start the daily rotating logger, teeing to console in a TTY and to
//     the Discord log channel when one is configured.
//
//  4. Resolve vault: references for the database password and bot token.
//
//  5. Build the lazily connected store.  The schema is ensured on every
//     successful connect, so a database that is down at boot is picked up
//     later without a restart.
//
//  6. Wire the settings cache, fact provider, and gateway handlers, then
//     open the Discord session.
//
//  7. Serve /healthz, /stats, and /metrics until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/moby/internal/config"
	"github.com/yanizio/moby/internal/database"
	"github.com/yanizio/moby/internal/discord"
	"github.com/yanizio/moby/internal/fact"
	"github.com/yanizio/moby/internal/logger"
	"github.com/yanizio/moby/internal/server"
	"github.com/yanizio/moby/internal/settings"
	"github.com/yanizio/moby/internal/store"
	"github.com/yanizio/moby/internal/vault"
)

const serverEnvPath = "/usr/local/etc/moby/moby.env"

// loadEnv prefers the host-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	//
	// ── 1.  Logger (+ optional Discord log channel) ─────────────────────
	//
	var channelCore *discord.ChannelCore
	opts := logger.Options{Dir: cfg.LogDir(), Level: cfg.Log.Level, Tee: runningInTTY()}
	if cfg.Discord.LogChannelID != "" {
		channelCore = discord.NewChannelCore(zapcore.ErrorLevel)
		opts.Extra = append(opts.Extra, channelCore)
	}
	logOut, err := logger.New(opts)
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer logOut.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logOut, channelCore); err != nil {
		logOut.Errorw("moby stopped with error", "err", err)
		_ = logOut.Sync()
		os.Exit(1)
	}
	logOut.Infow("moby stopped")
}

func run(ctx context.Context, cfg *config.Config, logOut *zap.SugaredLogger, channelCore *discord.ChannelCore) error {
	//
	// ── 2.  Secrets ─────────────────────────────────────────────────────
	//
	var secrets vault.KVReader
	if vault.IsRef(cfg.Database.Password) || vault.IsRef(cfg.Discord.Token) {
		cli, err := vault.New(ctx, logOut.Named("vault"))
		if err != nil {
			return err
		}
		secrets = cli
	}
	password, err := vault.Resolve(ctx, secrets, cfg.Database.Password, cfg.Vault.SecretTTL)
	if err != nil {
		return err
	}
	token, err := vault.Resolve(ctx, secrets, cfg.Discord.Token, cfg.Vault.SecretTTL)
	if err != nil {
		return err
	}

	//
	// ── 3.  Store ───────────────────────────────────────────────────────
	//
	dsn, err := database.WithPassword(cfg.Database.DSN, password)
	if err != nil {
		return err
	}
	poolOpts := database.Options{
		MaxOpenConns: cfg.Database.MaxOpen,
		MaxIdleConns: cfg.Database.MaxIdle,
		Retries:      2,
		RetryBackoff: time.Second,
	}
	mgr := database.NewManagerFunc(func(ctx context.Context) (*sqlx.DB, error) {
		db, err := database.OpenWithOptions(ctx, dsn, poolOpts)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}, logOut.Named("database"))
	defer mgr.Close()

	st := store.New(mgr, logOut.Named("store"), cfg.Database.Timeout)
	if d := st.Ping(ctx); d == store.Unreachable {
		logOut.Warnw("database unreachable at startup, continuing")
	} else {
		logOut.Infow("database online", "ping", d)
	}

	//
	// ── 4.  Command layer ───────────────────────────────────────────────
	//
	guildSettings := settings.New(st, cfg.Settings.Size, cfg.Settings.TTL, logOut.Named("settings"))

	var facts discord.Facts
	if cfg.Fact.URL != "" {
		facts = fact.New(cfg.Fact.URL, fact.Options{TTL: cfg.Fact.TTL, RetryMax: 3}, logOut.Named("fact"))
	}

	handler := discord.NewHandler(st, guildSettings, facts, cfg.Discord.DefaultPrefix, logOut.Named("discord"))
	if cfg.Discord.OwnerID != "" {
		owner, err := strconv.ParseUint(cfg.Discord.OwnerID, 10, 64)
		if err != nil {
			return fmt.Errorf("parse discord.owner_id: %w", err)
		}
		handler.SetOwner(owner)
	}
	bot, err := discord.NewBot(token, handler, logOut.Named("discord"))
	if err != nil {
		return err
	}
	if err := bot.Open(); err != nil {
		return err
	}
	defer bot.Close()

	//
	// ── 5.  Background work ─────────────────────────────────────────────
	//
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srv := server.New(cfg.HTTP.ListenAddr, server.NewRouter(st, logOut.Named("http")))
		return server.Run(gctx, srv, logOut)
	})
	if channelCore != nil {
		g.Go(func() error {
			channelCore.Run(gctx, bot.Session, cfg.Discord.LogChannelID)
			return nil
		})
	}
	return g.Wait()
}

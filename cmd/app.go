package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"overcastmirror/internal/config"
	"overcastmirror/internal/crypt"
	"overcastmirror/internal/logger"
	"overcastmirror/internal/lru"
	"overcastmirror/internal/overcast"
	"overcastmirror/internal/store"
)

// artifactCacheFile is the LRU blob, stored at the cache root next to the
// per-host response directories.
const artifactCacheFile = "artifacts.bin"

// app is one command invocation's session scope.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	client    *overcast.Client
	db        *store.Database
	artifacts *lru.Cache[time.Duration]
}

// newApp resolves configuration (file, environment, flags), then opens the
// database and caches. Callers must close it on every exit path.
func newApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()

	cfgFile, _ := flags.GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if flags.Changed("db-path") {
		cfg.DBPath, _ = flags.GetString("db-path")
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir, _ = flags.GetString("cache-dir")
	}
	if flags.Changed("offline") {
		cfg.Offline, _ = flags.GetBool("offline")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}

	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Console: true})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	key, err := crypt.KeyFromEnv()
	if err != nil {
		return nil, err
	}

	cookie := os.Getenv(config.EnvCookie)
	if cookie == "" && !cfg.Offline {
		return nil, fmt.Errorf("%s is not set", config.EnvCookie)
	}

	client, err := overcast.NewClient(overcast.Options{
		CacheDir:           cfg.CacheDir,
		Cookie:             cookie,
		Offline:            cfg.Offline,
		MinRequestInterval: cfg.MinRequestInterval,
		Logger:             log,
	})
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.DBPath, key, log)
	if err != nil {
		return nil, err
	}

	artifacts := lru.New[time.Duration](
		filepath.Join(cfg.CacheDir, artifactCacheFile),
		cfg.ArtifactCacheMaxBytes,
		log,
	)

	return &app{
		cfg:       cfg,
		log:       log,
		client:    client,
		db:        db,
		artifacts: artifacts,
	}, nil
}

// close flushes the session scope. The database commits only on success;
// the artifact cache always saves since its entries are expensive recompute
// results, not account state.
func (a *app) close(commit bool) error {
	if err := a.artifacts.Save(); err != nil {
		a.log.Error("saving artifact cache failed", logger.Error(err))
	}
	err := a.db.Close(commit)
	_ = a.log.Sync()
	return err
}

// run wraps a command body with the session scope lifecycle.
func run(cmd *cobra.Command, body func(a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	if err := body(a); err != nil {
		_ = a.close(false)
		return err
	}
	return a.close(true)
}

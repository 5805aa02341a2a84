package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"path/filepath"

	"credledger/internal/auth"
	"credledger/internal/commit"
	"credledger/internal/config"
	"credledger/internal/hashcodec"
	"credledger/internal/logging"
	"credledger/internal/metrics"
	"credledger/internal/registry"
	"credledger/internal/security"
	"credledger/internal/signer"
	"credledger/internal/store"
)

// maxKeyFileSize bounds the signing key file read.
const maxKeyFileSize = 64 << 10

// app holds everything a command needs once the journal is open.
type app struct {
	cfg       *config.Config
	codec     hashcodec.Codec
	logger    *logging.Logger
	audit     *logging.AuditLogger
	lock      *security.DirLock
	journal   *store.SQLiteJournal
	store     *store.Store
	registry  *registry.Registry
	publisher *commit.SigningPublisher
	issuers   *auth.Static
	metrics   *metrics.Prometheus
}

// loadConfig resolves, loads and validates the configuration.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(lc config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     lc.Output,
		FilePath:   lc.FilePath,
		MaxSize:    lc.MaxSizeMB,
		MaxAge:     lc.MaxAgeDays,
		MaxBackups: lc.MaxBackups,
		Compress:   lc.Compress,
		Component:  "credctl",
	})
}

func newAuditLogger(lc config.LoggingConfig) (*logging.AuditLogger, error) {
	if lc.AuditPath == "" {
		return nil, nil
	}
	return logging.NewAuditLogger(&logging.AuditLoggerConfig{
		FilePath:   lc.AuditPath,
		MaxSize:    lc.MaxSizeMB,
		MaxAge:     lc.MaxAgeDays,
		MaxBackups: lc.MaxBackups,
		Compress:   lc.Compress,
		Component:  "credctl",
	})
}

// loadSigningKey returns nil when signing is disabled.
func loadSigningKey(sc config.SigningConfig) (ed25519.PrivateKey, error) {
	if !sc.Enabled {
		return nil, nil
	}
	if _, err := security.ReadSecureFile(sc.KeyPath, maxKeyFileSize); err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	key, err := signer.LoadPrivateKey(sc.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return key, nil
}

// openApp wires config, logging, the journal and the registry. Writable
// apps hold the data directory lock and load the signing key.
func openApp(ctx context.Context, opts *options, writable bool) (a *app, err error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	if a.logger, err = newLogger(cfg.Logging); err != nil {
		return a, fmt.Errorf("logger: %w", err)
	}
	if a.audit, err = newAuditLogger(cfg.Logging); err != nil {
		return a, err
	}

	if a.codec, err = hashcodec.ByName(cfg.Hash.Algorithm); err != nil {
		return a, err
	}

	var key ed25519.PrivateKey
	if writable {
		if a.lock, err = security.LockDir(filepath.Dir(cfg.Storage.Path)); err != nil {
			return a, err
		}
		if key, err = loadSigningKey(cfg.Signing); err != nil {
			return a, err
		}
	}

	if a.journal, err = store.OpenSQLite(cfg.Storage.Path, cfg.Storage.BusyTimeoutMs); err != nil {
		return a, err
	}
	if a.store, err = store.Open(a.codec, a.journal); err != nil {
		return a, err
	}

	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewPrometheus("")
		recorder = a.metrics
	}

	a.publisher = commit.NewSigningPublisher(a.codec.Name(), key,
		commit.NewJournalSink(a.journal),
		commit.NewLogSink(a.logger.WithComponent("commit").Logger),
	)
	a.issuers = auth.NewStatic(cfg.Issuers.Authorized...)

	a.registry = registry.New(a.store,
		registry.WithPublisher(a.publisher),
		registry.WithAuthorizer(a.issuers),
		registry.WithRecorder(recorder),
		registry.WithLogger(a.logger.Logger),
	)

	a.logger.DebugContext(ctx, "registry opened",
		"storage", cfg.Storage.Path,
		"algorithm", a.codec.Name(),
		"certificates", a.registry.Count(),
		"writable", writable,
		"signing", key != nil,
	)
	return a, nil
}

// Close flushes metrics and releases the journal, the lock and log files.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.WriteTextfile(a.cfg.Metrics.TextfilePath))
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.lock != nil {
		errs = append(errs, a.lock.Unlock())
	}
	errs = append(errs, a.audit.Close())
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

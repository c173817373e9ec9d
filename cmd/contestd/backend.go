package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/config"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/directory"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/handlers"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/kafka"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/ledger"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/storage/badger"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/storage/postgres"
	"github.com/rs/zerolog"
)

// backend is one storage driver's view of the world.
type backend struct {
	ledger    ledger.Store
	facts     leaderboard.FactStore
	directory directory.Directory
	// problems is nil when the directory is owned by another service.
	problems kafka.ProblemSetter
	store    handlers.Pinger
	close    func() error
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverBadger:
		dir, err := directory.LoadSeedFile(cfg.Directory.SeedFile)
		if err != nil {
			return nil, err
		}

		bcfg := badger.DefaultConfig(cfg.Storage.Badger.Path)
		bcfg.InMemory = cfg.Storage.Badger.InMemory
		bcfg.SyncWrites = cfg.Storage.Badger.SyncWrites
		bcfg.GCInterval = cfg.Storage.Badger.GCInterval
		db, err := badger.Open(bcfg, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			ledger:    badger.NewLedgerStore(db),
			facts:     badger.NewFactStore(db),
			directory: dir,
			problems:  dir,
			store:     db,
			close:     db.Close,
		}, nil

	case config.DriverPostgres:
		pg := cfg.Storage.Postgres
		db, err := postgres.Open(postgres.Config{
			DSN:             pg.DSN,
			MaxOpenConns:    pg.MaxOpenConns,
			MaxIdleConns:    pg.MaxIdleConns,
			ConnMaxLifetime: pg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			return nil, errors.Join(err, db.Close())
		}
		return &backend{
			ledger:    postgres.NewLedgerStore(db),
			facts:     postgres.NewFactStore(db),
			directory: postgres.NewDirectory(db),
			store:     db,
			close:     db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

package cmd

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/app/repository/memory"
	"github.com/vibast-solutions/ms-go-accounts/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

const pingTimeout = 5 * time.Second

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// openStore returns the store selected by STORE_DRIVER and a func releasing it.
func openStore(cfg *config.Config) (repository.Store, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logrus.Warn("Using in-memory store, data is lost on exit")
		return memory.NewStore(), func() {}, nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewSQLStore(db), func() { db.Close() }, nil
}

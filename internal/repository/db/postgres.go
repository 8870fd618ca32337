package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"medrelief/internal/config"
)

// NewPostgresDB opens the database and retries the first ping until
// cfg.ConnectTimeout elapses, so the service can start alongside the database.
func NewPostgresDB(cfg *config.PostgresConfig, logger *zap.Logger) (*sql.DB, error) {
	logger.Info("connecting db", zap.String("conn", redact(cfg.Conn)))
	db, err := sql.Open("postgres", cfg.Conn)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = cfg.ConnectTimeout

	err = backoff.RetryNotify(db.Ping, bo, func(err error, next time.Duration) {
		logger.Warn("retrying db connection", zap.Error(err), zap.Duration("next", next))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db.NewPostgresDB: %w", err)
	}

	return db, nil
}

// redact hides the password of a postgres URL for logging.
func redact(conn string) string {
	u, err := url.Parse(conn)
	if err != nil {
		return "<unparsable>"
	}
	return u.Redacted()
}

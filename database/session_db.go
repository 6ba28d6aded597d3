package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.uber.org/zap"

	"gowa-gateway/internal/logger"
)

const sessionFile = "session.db"

// resolveDSN picks the sql driver for the whatsmeow device store: postgres
// when a database URL is configured, otherwise a sqlite file under
// sessionPath.
func resolveDSN(sessionPath, databaseURL string) (driver, dsn string) {
	if url := strings.TrimSpace(databaseURL); url != "" {
		return "postgres", url
	}
	return "sqlite3", "file:" + filepath.Join(sessionPath, sessionFile) + "?_foreign_keys=on"
}

// OpenSessionStore opens (and migrates) the whatsmeow device store that
// holds the linked session's credentials.
func OpenSessionStore(ctx context.Context, sessionPath, databaseURL string) (*sqlstore.Container, error) {
	driver, dsn := resolveDSN(sessionPath, databaseURL)
	if driver == "sqlite3" {
		if err := os.MkdirAll(sessionPath, 0o700); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}

	container, err := sqlstore.New(ctx, driver, dsn, logger.NewWhatsmeowLogger("Database"))
	if err != nil {
		return nil, fmt.Errorf("open %s session store: %w", driver, err)
	}

	zap.L().Info("session store ready", zap.String("driver", driver))
	return container, nil
}

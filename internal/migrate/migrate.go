// Package migrate applies the embedded goose migrations to PostgreSQL.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/and161185/hacking-zone/migrations"
)

// Up runs all pending migrations from the embedded filesystem.
func Up(ctx context.Context, dsn string, log *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := prepare(log); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err == nil {
		log.Info("migrations applied", zap.Int64("version", v))
	}
	return nil
}

// Status logs the state of every migration.
func Status(ctx context.Context, dsn string, log *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := prepare(log); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db, ".")
}

func prepare(log *zap.Logger) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(zapGooseLogger{log.Sugar()})
	return goose.SetDialect("postgres")
}

// zapGooseLogger routes goose output through zap.
type zapGooseLogger struct{ s *zap.SugaredLogger }

func (l zapGooseLogger) Fatalf(format string, v ...any) { l.s.Fatalf(format, v...) }
func (l zapGooseLogger) Printf(format string, v ...any) { l.s.Infof(format, v...) }

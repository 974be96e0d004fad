// Command migrate applies the ledger schema with goose.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/app"
	"github.com/kevin07696/payment-gateway/internal/config"
	"github.com/kevin07696/payment-gateway/internal/db"
)

var dir = flag.String("dir", "", "read migrations from this directory instead of the embedded set")

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	dbCfg, logCfg, err := config.LoadDatabaseFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	logger, err := app.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate: build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, dbCfg, flag.Args(), logger); err != nil {
		logger.Error("Migration failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, dbCfg config.DatabaseConfig, args []string, logger *zap.Logger) error {
	command, rest := args[0], args[1:]

	if command == "create" {
		if *dir == "" || len(rest) < 1 {
			return errors.New("create needs -dir and a migration name")
		}
		return goose.Create(nil, *dir, rest[0], "sql")
	}

	migrations, err := migrationFS()
	if err != nil {
		return err
	}

	conn, err := sql.Open("pgx", dbCfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	defer conn.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		return fmt.Errorf("reach ledger database: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, conn, migrations)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		logResults(logger, results...)
		return err
	case "up-by-one":
		result, err := provider.UpByOne(ctx)
		logResults(logger, result)
		return err
	case "up-to":
		version, err := versionArg(rest)
		if err != nil {
			return err
		}
		results, err := provider.UpTo(ctx, version)
		logResults(logger, results...)
		return err
	case "down":
		result, err := provider.Down(ctx)
		logResults(logger, result)
		return err
	case "down-to":
		version, err := versionArg(rest)
		if err != nil {
			return err
		}
		results, err := provider.DownTo(ctx, version)
		logResults(logger, results...)
		return err
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			logger.Info("Migration",
				zap.Int64("version", s.Source.Version),
				zap.String("file", s.Source.Path),
				zap.String("state", string(s.State)),
				zap.Time("applied_at", s.AppliedAt),
			)
		}
		return nil
	case "version":
		version, err := provider.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		logger.Info("Ledger schema version", zap.Int64("version", version))
		return nil
	}
	return fmt.Errorf("unknown command %q", command)
}

func migrationFS() (fs.FS, error) {
	if *dir != "" {
		return os.DirFS(*dir), nil
	}
	return fs.Sub(db.Migrations, db.MigrationsDir)
}

func versionArg(args []string) (int64, error) {
	if len(args) < 1 {
		return 0, errors.New("a target VERSION is required")
	}
	version, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	return version, nil
}

func logResults(logger *zap.Logger, results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		logger.Info("Migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.String("direction", r.Direction),
			zap.Duration("took", r.Duration),
		)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: migrate [-dir DIR] COMMAND

Commands:
    up               apply every pending migration
    up-by-one        apply the next pending migration
    up-to VERSION    apply migrations up to VERSION
    down             roll back the latest migration
    down-to VERSION  roll back to VERSION
    status           list migrations and whether each is applied
    version          print the current schema version
    create NAME      write a new SQL migration into -dir

Connection settings come from DATABASE_URL or DB_HOST, DB_PORT, DB_USER,
DB_PASSWORD, DB_NAME and DB_SSL_MODE.
`)
}

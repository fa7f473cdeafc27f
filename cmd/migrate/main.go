package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/fastrepair/fastrepair-backend/pkg/config"
	"github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
	"github.com/fastrepair/fastrepair-backend/pkg/migrate"
)

type options struct {
	command string
	dir     string
	name    string
	version string
}

var errUsage = errors.New("usage")

func main() {
	var opts options
	flag.StringVar(&opts.command, "cmd", "up", "up|down|status|version|embedded|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; defaults to the one matching FASTREPAIR_DB_DRIVER")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(context.Background(), cfg, logg, opts); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			flag.Usage()
			os.Exit(2)
		}
		logg.Error(context.Background(), "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	dialect := migrate.DialectFor(cfg.DB.Driver)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"cmd":     opts.command,
		"dialect": dialect,
	})

	// create and validate work on files only.
	switch opts.command {
	case "create":
		return create(opts)
	case "validate":
		return validate(opts)
	}

	dir := opts.dir
	if dir == "" {
		dir = migrate.DirFor(cfg.DB.Driver)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	logg.Info(logg.WithField(ctx, "dir", dir), "migrate ready")
	return runWithDB(ctx, sqlDB, cfg.DB.Driver, dialect, dir, opts)
}

func runWithDB(ctx context.Context, sqlDB *sql.DB, driver, dialect, dir string, opts options) error {
	switch opts.command {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, dialect, dir, opts.command)
	case "version":
		if opts.version == "" {
			return fmt.Errorf("%w: -version is required for -cmd=version", errUsage)
		}
		return migrate.MigrateToVersion(ctx, sqlDB, dialect, dir, opts.version)
	case "embedded":
		applied, err := migrate.Apply(ctx, sqlDB, driver)
		if err != nil {
			return err
		}
		fmt.Printf("applied %d embedded migration(s)\n", applied)
		return nil
	}
	return fmt.Errorf("%w: unknown -cmd %q", errUsage, opts.command)
}

// create writes the postgres migration and its sqlite twin unless -dir names
// a single directory.
func create(opts options) error {
	if opts.name == "" {
		return fmt.Errorf("%w: -name is required for -cmd=create", errUsage)
	}
	dirs := []string{migrate.DefaultDir, migrate.SQLiteDir}
	if opts.dir != "" {
		dirs = []string{opts.dir}
	}
	for _, dir := range dirs {
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
	}
	return nil
}

func validate(opts options) error {
	dirs := []string{migrate.DefaultDir, migrate.SQLiteDir}
	if opts.dir != "" {
		dirs = []string{opts.dir}
	}
	for _, dir := range dirs {
		if err := migrate.ValidateDir(dir); err != nil {
			return err
		}
	}
	fmt.Println("migration validation passed")
	return nil
}

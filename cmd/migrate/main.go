package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
)

// options are the parsed command line flags.
type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// offline commands work on the migration files alone.
var offline = map[string]bool{"create": true, "validate": true, "list": true}

// gooseCommands map straight onto goose.
var gooseCommands = map[string]bool{"up": true, "down": true, "status": true}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var opts options
	fs.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate|list")
	fs.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	fs.StringVar(&opts.name, "name", "", "migration name (for create)")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch {
	case !offline[opts.cmd] && !gooseCommands[opts.cmd] && opts.cmd != "version":
		return options{}, fmt.Errorf("unknown -cmd value: %s", opts.cmd)
	case opts.cmd == "create" && opts.name == "":
		return options{}, errors.New("missing -name for create")
	case opts.cmd == "version" && opts.version == "":
		return options{}, errors.New("missing -version for version command")
	}
	return opts, nil
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if offline[opts.cmd] {
		if err := runOffline(opts, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

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
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if err := runOnline(ctx, cfg, logg, opts); err != nil {
		logg.Error(ctx, "migration failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration finished")
}

// runOffline handles the commands that never touch the database.
func runOffline(opts options, out io.Writer) error {
	switch opts.cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(out, "created migration:", path)
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return fmt.Errorf("migration validation failed: %w", err)
		}
		fmt.Fprintln(out, "migration validation passed")
	case "list":
		files, err := migrate.List(opts.dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(out, "%s  %s\n", f.Version, f.Name)
		}
	}
	return nil
}

func runOnline(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) (err error) {
	if err := migrate.ValidateDir(opts.dir); err != nil {
		return err
	}
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}

	if opts.cmd == "version" {
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	}
	return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/riskibarqy/lineup-orchestrator/internal/app"
	"github.com/riskibarqy/lineup-orchestrator/internal/config"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
)

const usage = `usage: migration <command> [arg]

commands:
  up              apply all pending migrations
  down [steps]    roll back steps migrations (default 1)
  version         print the current version
  force <version> set the version without running migrations
  goto <version>  migrate up or down to version`

var migrationDirCandidates = []string{"./db/migrations", "/app/db/migrations"}

func main() {
	logger := logging.NewJSON(logging.LevelInfo)
	defer func() { _ = logger.Sync() }()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:], logger); err != nil {
		logger.Error("migration failed", "command", os.Args[1], "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(command string, args []string, logger *logging.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DBURL == "" {
		return errors.New("DB_URL is required")
	}

	dir, err := resolveMigrationsDir(os.Getenv("MIGRATIONS_DIR"), migrationDirCandidates)
	if err != nil {
		return err
	}
	source := "file://" + filepath.ToSlash(dir)

	target, err := app.ResolveDBTarget(cfg.DBURL, cfg.DBDisablePreparedBinary)
	if err != nil {
		return err
	}
	m, err := migrate.New(source, target.DSN)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			logger.Warn("close migrator", "source_error", srcErr, "db_error", dbErr)
		}
	}()

	switch strings.ToLower(strings.TrimSpace(command)) {
	case "up":
		if err := ignoreNoChange(m.Up()); err != nil {
			return err
		}
		logger.Info("migrations applied", "source", source, "db_name", target.Name, "db_host", target.Host)
	case "down":
		steps, err := parseSteps(args)
		if err != nil {
			return err
		}
		if err := ignoreNoChange(m.Steps(-steps)); err != nil {
			return err
		}
		logger.Info("migrations rolled back", "steps", steps)
	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("migration version", "version", "none", "dirty", false)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		logger.Info("migration version", "version", version, "dirty", dirty)
	case "force":
		version, err := parseVersion(args)
		if err != nil {
			return err
		}
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("force version %d: %w", version, err)
		}
		logger.Info("migration version forced", "version", version)
	case "goto":
		version, err := parseVersion(args)
		if err != nil {
			return err
		}
		if err := ignoreNoChange(m.Migrate(version)); err != nil {
			return err
		}
		logger.Info("migrated", "version", version)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
	return nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid steps %q: %w", args[0], err)
	}
	if steps <= 0 {
		return 0, errors.New("steps must be > 0")
	}
	return steps, nil
}

func parseVersion(args []string) (uint, error) {
	if len(args) == 0 {
		return 0, errors.New("a version argument is required")
	}
	version, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 31)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	return uint(version), nil
}

func resolveMigrationsDir(override string, candidates []string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		candidates = append([]string{override}, candidates...)
	}
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs, nil
		}
	}
	return "", fmt.Errorf("migration directory not found in %s", strings.Join(candidates, ", "))
}

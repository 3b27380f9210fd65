package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	migrateV4 "github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yourusername/fleet-api/internal/config"
	"github.com/yourusername/fleet-api/internal/pkg/logger"
	"github.com/yourusername/fleet-api/pkg/database"
)

// migrate применяет или откатывает схему без запуска API.
//
//	go run ./cmd/migrate -action up
//	go run ./cmd/migrate -action down -steps 1
//	go run ./cmd/migrate -action force -version 2   # снять dirty state
func main() {
	action := flag.String("action", "up", "up | down | force | version")
	steps := flag.Int("steps", 0, "number of steps for down (0 = all)")
	version := flag.Int("version", -1, "version for force")
	flag.Parse()

	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log)

	if err := run(cfg, *action, *steps, *version); err != nil {
		slog.Error("migration command failed", "action", *action, "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, action string, steps, version int) error {
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), gormLogger.Warn)
	if err != nil {
		return err
	}
	m, err := database.NewMigrator(db, cfg.Database.MigrationsDir)
	if err != nil {
		return err
	}
	defer m.Close()

	switch action {
	case "up":
		err = m.Up()
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "force":
		if version < 0 {
			return fmt.Errorf("-version is required for force")
		}
		err = m.Force(version)
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrateV4.ErrNilVersion) {
			return verr
		}
		slog.Info("current schema version", "version", v, "dirty", dirty)
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	if errors.Is(err, migrateV4.ErrNoChange) {
		slog.Info("no change")
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("migration finished", "action", action)
	return nil
}

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/noah-isme/fitclass-api/pkg/config"
	"github.com/noah-isme/fitclass-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var dir string
	flag.StringVar(&dir, "path", cfg.Database.MigrationsPath, "path to migration files")
	flag.Parse()

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	m, err := migrate.New("file://"+dir, databaseURL(cfg.Database))
	if err != nil {
		logr.Fatal("migration init failed", zap.Error(err))
	}
	defer m.Close()

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logr.Fatal("migrate up failed", zap.Error(err))
		}
		logr.Info("migrated up")
	case "down":
		if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logr.Fatal("migrate down failed", zap.Error(err))
		}
		logr.Info("rolled back one migration")
	case "version":
		version, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			logr.Fatal("read version failed", zap.Error(err))
		}
		logr.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	case "force":
		if len(args) < 2 {
			logr.Fatal("force requires a version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			logr.Fatal("invalid version", zap.String("version", args[1]), zap.Error(err))
		}
		if err := m.Force(v); err != nil {
			logr.Fatal("force failed", zap.Error(err))
		}
		logr.Info("forced schema version", zap.Int("version", v))
	default:
		printUsage()
	}
}

func databaseURL(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     cfg.Name,
		RawQuery: url.Values{"sslmode": []string{cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

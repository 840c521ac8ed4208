package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

const usage = "up|down|redo|status|version|create|validate"

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cmd := flag.String("cmd", migrate.CommandUp, "migration command: "+usage)
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set (create defaults to "+migrate.DefaultDir+")")
	name := flag.String("name", "", "migration name (for -cmd=create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate never open a connection.
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.Validate(migrate.Source(*dir)); err != nil {
			fail("invalid migrations:\n%v", err)
		}
		fmt.Println("migrations ok")
		return
	}

	var target int64
	if *cmd == migrate.CommandVersion {
		parsed, err := strconv.ParseInt(*version, 10, 64)
		if err != nil {
			fail("-version must be a YYYYMMDDHHMMSS number: %v", err)
		}
		target = parsed
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmd,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	steps, err := migrate.Apply(ctx, sqlDB, migrate.Source(*dir), *cmd, target)
	for _, step := range steps {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     step.Version,
			"file":        step.Path,
			"duration_ms": step.Duration.Milliseconds(),
		}), step.Action)
	}
	if err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
	logg.Info(logg.WithField(ctx, "steps", len(steps)), "migrate finished")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

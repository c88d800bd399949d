package main

import (
	"os"
	"strconv"

	"github.com/hackgods/dental-clinic-engine/internal/config"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/logging"
)

// Usage:
//
//	migrate            apply all pending migrations
//	migrate down       roll back one step
//	migrate force <v>  mark version v as applied
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("migrate", "dev", "info").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("migrate", cfg.Env, cfg.LogLevel)

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		version, err := db.Migrate(cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("migrate up failed")
		}
		logger.Info().Uint("version", version).Msg("migrations complete")
	case "down":
		if err := db.MigrateDown(cfg.PostgresDSN); err != nil {
			logger.Fatal().Err(err).Msg("migrate down failed")
		}
		logger.Info().Msg("rolled back one migration")
	case "force":
		if len(os.Args) < 3 {
			logger.Fatal().Msg("usage: migrate force <version>")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid version")
		}
		if err := db.MigrateForce(cfg.PostgresDSN, version); err != nil {
			logger.Fatal().Err(err).Msg("force version failed")
		}
		logger.Info().Int("version", version).Msg("forced schema version")
	default:
		logger.Fatal().Str("command", cmd).Msg("unknown command, expected up, down or force")
	}
}

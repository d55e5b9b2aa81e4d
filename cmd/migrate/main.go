package main

import (
	"flag"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"hookrelay/internal/pkg/logger"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db, *direction); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	fmt.Println("Migration completed successfully")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/logger"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/repositories"
	"hookrelay/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	once := flag.Bool("once", false, "Run each job once and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Init(cfg.Logging)
	log.Info().Msg("Starting hookrelay background workers")

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	webhookRepo := repositories.NewWebhookRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	// No local cache; the server's cached entries age out on their own TTL.
	webhookSvc := webhooks.NewService(webhookRepo, webhooks.NewCache(0))

	housekeeper := workers.NewHousekeeper(webhookRepo, eventRepo, webhookSvc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		expired, err := housekeeper.ExpireWebhooks(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Expiry sweep failed")
		}
		deleted, err := housekeeper.SweepRetention(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Retention sweep failed")
		}
		log.Info().Int("expired", expired).Int64("deleted", deleted).Msg("Housekeeping finished")
		return
	}

	housekeeper.Run(ctx, cfg.Retention)
}

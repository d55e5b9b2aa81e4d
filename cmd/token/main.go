// Command token issues a management API access token for a user id.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
)

func main() {
	userID := flag.String("user", "", "User id to embed in the token")
	role := flag.String("role", "member", "Role claim")
	email := flag.String("email", "", "Email claim")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	_ = godotenv.Load()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set")
	}

	token, err := auth.NewTokenService(cfg.JWT).GenerateAccessToken(*userID, *role, *email)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}
	fmt.Println(token)
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/arklim/realm-auth-service/gen/docs/swagger"
	"github.com/arklim/realm-auth-service/internal/infra/app"
	"github.com/arklim/realm-auth-service/internal/infra/config"
)

// @title Realm Auth Service API
// @version 1.0
// @description Account lifecycle, session tokens and one-time codes for the User1 and User2 realms.
// @BasePath /
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Session token, prefixed with "Bearer ".
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Printf("application stopped: %v", err)
		os.Exit(1)
	}
}

package main

import (
	recordingService "audiogami/internal/api/recording/service"
	"audiogami/internal/config"
	"audiogami/pkg/log"
	"audiogami/pkg/redis"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/net/context"
)

func main() {
	envFile := pflag.String("env-file", ".env", "path of the .env file to load")
	migrate := pflag.Bool("migrate", false, "apply the database schema before serving")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.NewLogger().Fatalf("Error loading %s: %v", *envFile, err)
	}
	logger := log.NewLogger()

	fiberApp := config.NewFiber(logger)
	validator := config.NewValidator()
	redisServer := redis.New()

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithDatabase(*migrate),
		config.WithCatalog(),
		config.WithRedisServer(redisServer),
		config.WithSMTPMailer(),
		config.WithS3Client(),
		config.WithNotion(),
		config.WithRecordingSettings(recordingService.SettingsFromEnv()),
		config.WithMiddleware(),
		config.WithUtils(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}

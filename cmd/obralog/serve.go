package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"obralog/internal/photos"
	"obralog/internal/problems"
	"obralog/internal/server"
	"obralog/internal/storage"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP server",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := loadConfig(cCtx, false)
	if err != nil {
		return err
	}

	logger := newLogger(config)

	awsConfig, err := loadAWSConfig(ctx)
	if err != nil {
		return err
	}

	var problemsSvc *problems.Service
	if config.SetupRequired() {
		logger.Warn("DATABASE_URL is not set, serving the setup notice")
	} else {
		pool, svc, err := connectProblems(ctx, config, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		problemsSvc = svc
	}

	var identity server.IdentityProvider
	if config.CognitoClientID != "" {
		identity = cognitoidentityprovider.NewFromConfig(awsConfig)
	} else if config.DevLoginEnabled() {
		logger.WithField("email", config.DevLoginEmail).Warn("identity provider not configured, development login enabled")
	}

	var (
		jwkCache *jwk.Cache
		jwksURL  string
	)
	if config.CognitoIssuerURL != "" {
		jwkCache, err = jwk.NewCache(context.Background(), httprc.NewClient())
		if err != nil {
			return fmt.Errorf("failed to initialize jwk cache: %w", err)
		}

		jwksURL = fmt.Sprintf("%s/.well-known/jwks.json", config.CognitoIssuerURL)

		if err := jwkCache.Register(context.Background(), jwksURL); err != nil {
			return fmt.Errorf("failed to register cognito jwks with cache: %w", err)
		}
	}

	blob, err := openBlob(config, awsConfig, logger)
	if err != nil {
		return err
	}

	if m, ok := blob.(*storage.MinioStorage); ok {
		if err := m.EnsureBucket(ctx); err != nil {
			return err
		}
	}

	pipeline := photos.NewPipeline(logger, blob, config.MaxUploadBytes)

	var quota *server.UploadQuota
	if config.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddress,
			Password: config.RedisPassword,
		})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}

		quota = server.NewUploadQuota(client, config.UploadDailyLimit)
		logger.WithField("daily_limit", config.UploadDailyLimit).Info("upload quota enabled")
	}

	srv, err := server.New(
		config,
		logger,
		problemsSvc,
		pipeline,
		photoFetcher(config, blob),
		identity,
		jwkCache,
		jwksURL,
		quota,
		server.NewMetrics(),
	)
	if err != nil {
		return err
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":       config.ServerPort,
			"uploads_on": pipeline.Enabled(),
			"setup_mode": config.SetupRequired(),
		}).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Stop(shutdownCtx)
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/contentgw/gateway/internal/cache"
	"github.com/contentgw/gateway/internal/config"
	"github.com/contentgw/gateway/internal/gateway"
	"github.com/contentgw/gateway/internal/gatewaycache"
	"github.com/contentgw/gateway/internal/gatewayguard"
	"github.com/contentgw/gateway/internal/gatewayrepo"
	"github.com/contentgw/gateway/internal/gatewaystorage"
	"github.com/contentgw/gateway/internal/logger"
)

func main() {
	settings := config.LoadGatewaySettings()
	log := logger.NewLogger("gateway")

	db, err := gatewayrepo.NewPostgresDB(settings.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := gatewayrepo.Migrate(db); err != nil {
		log.Error("failed to run migrations", err)
		os.Exit(1)
	}

	redisClient, err := cache.NewRedisClient(cache.RedisConfig{URL: settings.RedisURL, PoolSize: 10}, log.Logger)
	if err != nil {
		log.Error("failed to connect to redis", err)
		os.Exit(1)
	}

	respCache := gatewaycache.New(redisClient, settings.CacheEnabled)

	storageRegistry, err := buildStorageRegistry(context.Background(), settings)
	if err != nil {
		log.Error("failed to build storage backends", err)
		os.Exit(1)
	}

	store := gatewayrepo.NewRepository(db)

	remotes := gateway.NewHTTPRemoteResolver(&http.Client{Timeout: 60 * time.Second})

	guards := &gateway.StaticGuardResolver{
		Guards: map[uuid.UUID]gatewayguard.ContentGuard{},
	}
	if settings.JWTSecret != "" {
		// Distributions that opt into the JWT guard reference this well-known
		// nil UUID until a real per-distribution guard registry is wired in.
		guards.Guards[uuid.Nil] = gatewayguard.NewJWTContentGuard(settings.JWTSecret)
	}

	metrics := gateway.NewAtomicSizeCounter()

	gwSettings := gateway.Settings{
		ContentPathPrefix:          settings.ContentPathPrefix,
		DomainEnabled:              settings.DomainEnabled,
		HideGuardedDistributions:   settings.HideGuardedDistributions,
		CacheEnabled:               settings.CacheEnabled,
		RemoteFetchFailureCooldown: settings.RemoteFetchFailureCooldown,
	}

	dispatcher := gateway.NewDispatcher(gwSettings, store, respCache, storageRegistry, remotes, guards, metrics)

	router := gin.Default()
	router.Any(settings.ContentPathPrefix+"/*path", gin.WrapH(http.HandlerFunc(dispatcher.ServeHTTP)))

	addr := ":8000"
	log.Info("gateway listening", addr)
	if err := router.Run(addr); err != nil {
		log.Error("gateway server failed", err)
		os.Exit(1)
	}
}

func buildStorageRegistry(ctx context.Context, settings *config.GatewaySettings) (*gatewaystorage.Registry, error) {
	backends := []gatewaystorage.Backend{gatewaystorage.NewLocalBackend(settings.LocalBasePath)}

	switch settings.StorageBackend {
	case "s3":
		b, err := gatewaystorage.NewS3Backend(ctx, gatewaystorage.S3Config{Bucket: settings.S3Bucket, Region: settings.S3Region})
		if err != nil {
			return nil, fmt.Errorf("s3 backend: %w", err)
		}
		backends = append(backends, b)
	case "azure":
		b, err := gatewaystorage.NewAzureBackend(gatewaystorage.AzureConfig{
			Container: settings.AzureContainer,
			Account:   settings.AzureAccount,
			Key:       settings.AzureKey,
		})
		if err != nil {
			return nil, fmt.Errorf("azure backend: %w", err)
		}
		backends = append(backends, b)
	case "gcs":
		b, err := gatewaystorage.NewGCSBackend(ctx, gatewaystorage.GCSConfig{
			Bucket:              settings.GCSBucket,
			CredentialsFile:     settings.GCSCredentialsFile,
			ServiceAccountEmail: settings.GCSServiceAccountEmail,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs backend: %w", err)
		}
		backends = append(backends, b)
	}

	return gatewaystorage.NewRegistry(backends...), nil
}

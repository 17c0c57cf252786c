package config

import (
	"strconv"
	"time"
)

// GatewaySettings holds the content-delivery gateway's own environment
// inputs, loaded the same way Config.Load loads the rest of the platform's
// settings (GetEnvWithFallback + strconv parsing), per spec.md §6.
type GatewaySettings struct {
	ContentPathPrefix          string
	DomainEnabled              bool
	HideGuardedDistributions   bool
	CacheEnabled               bool
	RemoteFetchFailureCooldown time.Duration

	DatabaseURL string
	RedisURL    string

	StorageBackend string // "local", "s3", "azure", "gcs"
	LocalBasePath  string

	S3Bucket string
	S3Region string

	AzureContainer string
	AzureAccount   string
	AzureKey       string

	GCSBucket              string
	GCSCredentialsFile     string
	GCSServiceAccountEmail string

	JWTSecret string
}

func LoadGatewaySettings() *GatewaySettings {
	LoadEnvOnce()

	cooldownSeconds, _ := strconv.Atoi(GetEnvWithFallback("REMOTE_CONTENT_FETCH_FAILURE_COOLDOWN", "30"))

	return &GatewaySettings{
		ContentPathPrefix:          GetEnvWithFallback("CONTENT_PATH_PREFIX", "/content"),
		DomainEnabled:              GetEnvBool("DOMAIN_ENABLED", false),
		HideGuardedDistributions:   GetEnvBool("HIDE_GUARDED_DISTRIBUTIONS", false),
		CacheEnabled:               GetEnvBool("CACHE_ENABLED", true),
		RemoteFetchFailureCooldown: time.Duration(cooldownSeconds) * time.Second,

		DatabaseURL: GetEnvWithFallback("DATABASE_URL", "postgresql://localhost:5432/gateway?sslmode=disable"),
		RedisURL:    GetEnvWithFallback("REDIS_URL", "redis://localhost:6379/0"),

		StorageBackend: GetEnvWithFallback("STORAGE_BACKEND", "local"),
		LocalBasePath:  GetEnvWithFallback("STORAGE_PATH", "./data"),

		S3Bucket: GetEnvWithFallback("S3_BUCKET", ""),
		S3Region: GetEnvWithFallback("AWS_REGION", "us-east-1"),

		AzureContainer: GetEnvWithFallback("AZURE_CONTAINER", ""),
		AzureAccount:   GetEnvWithFallback("AZURE_ACCOUNT", ""),
		AzureKey:       GetEnvWithFallback("AZURE_ACCOUNT_KEY", ""),

		GCSBucket:              GetEnvWithFallback("GCS_BUCKET", ""),
		GCSCredentialsFile:     GetEnvWithFallback("GCS_CREDENTIALS_FILE", ""),
		GCSServiceAccountEmail: GetEnvWithFallback("GCS_SERVICE_ACCOUNT_EMAIL", ""),

		JWTSecret: GetEnvWithFallback("JWT_SECRET", "your-secret-key"),
	}
}

package config

import "fmt"

// StorageConfig points at the S3-compatible object store holding generated
// images and agent documents.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string

	Bucket string

	// PublicBaseURL is the externally reachable prefix for stored objects.
	// Public URLs are PublicBaseURL + "/" + object key.
	PublicBaseURL string
}

// DefaultStorageConfig returns local development defaults matching the
// docker-compose MinIO service.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		Endpoint:      "localhost:9000",
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		Bucket:        "atelier",
		PublicBaseURL: "http://localhost:9000/atelier",
	}
}

// LoadStorageConfigFromEnv returns defaults overridden by MINIO_* and
// STORAGE_* variables.
func LoadStorageConfigFromEnv() *StorageConfig {
	cfg := DefaultStorageConfig()
	cfg.Endpoint = getEnvOrDefault("MINIO_ENDPOINT", cfg.Endpoint)
	cfg.AccessKey = getEnvOrDefault("MINIO_ACCESS_KEY", cfg.AccessKey)
	cfg.SecretKey = getEnvOrDefault("MINIO_SECRET_KEY", cfg.SecretKey)
	cfg.UseSSL = getEnvBool("MINIO_USE_SSL", cfg.UseSSL)
	cfg.Region = getEnvOrDefault("MINIO_REGION", cfg.Region)
	cfg.Bucket = getEnvOrDefault("STORAGE_BUCKET", cfg.Bucket)
	cfg.PublicBaseURL = getEnvOrDefault("STORAGE_PUBLIC_URL", cfg.PublicBaseURL)
	return cfg
}

// Validate checks required fields.
func (c *StorageConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("MINIO_ENDPOINT is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("STORAGE_BUCKET is required")
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Auth contains configuration related to verifying caller credentials.
type Auth struct {
	AccessKey string // JWT signing key access tokens are verified against
}

// Mongo contains configuration for the MongoDB connection.
type Mongo struct {
	URL                  string // MongoDB connection URI
	Database             string // Database name
	DocumentDBBundlePath string // Path to a CA bundle for DocumentDB; empty means don't use it
}

// Storage contains configuration for the object-storage backend.
type Storage struct {
	Type      string // "minio" or "memory"
	Endpoint  string // S3-compatible endpoint host:port
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Upload contains configuration for the signed-upload broker.
type Upload struct {
	TokenKey  string        // JWT signing key for upload tokens
	TokenTTL  time.Duration // How long an issued token stays valid; short, it grants storage writes
	MaxBytes  int64         // Hard cap on a single upload's declared size
	MimeTypes []string      // Default mime allowlist when the client declares none
}

// Lifecycle contains configuration for trash retention and background sweeps.
type Lifecycle struct {
	TrashRetention time.Duration // How long trashed nodes survive before the sweep purges them
	SweepInterval  time.Duration // Cadence of the retention/orphan/purge-retry sweep
	SweepBatch     int64         // Max items handled per sweep cycle per queue
}

// Quota contains owner-level storage policy.
type Quota struct {
	OwnerMaxBytes int64 // 0 means unlimited
}

// HTTP contains configuration for the HTTP server.
type HTTP struct {
	Port     string // Port for the server to listen on
	KeyPath  string // Path to SSL key file for HTTPS
	CertPath string // Path to SSL certificate file for HTTPS
}

// Config is the top-level struct holding all application configuration.
type Config struct {
	Auth      Auth
	Mongo     Mongo
	Storage   Storage
	Upload    Upload
	Lifecycle Lifecycle
	Quota     Quota
	HTTP      HTTP
}

// Load reads configuration from environment variables and returns a populated
// Config struct. It uses helper functions to read specific types and provide
// default values.
func Load() (*Config, error) {
	maxUpload, err := getenvInt64("MAX_UPLOAD_BYTES", 100<<20)
	if err != nil {
		return nil, err
	}
	ownerQuota, err := getenvInt64("OWNER_QUOTA_BYTES", 0)
	if err != nil {
		return nil, err
	}
	sweepBatch, err := getenvInt64("SWEEP_BATCH", 256)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Auth: Auth{
			AccessKey: getenvStr("PASSWORD_ACCESS", ""),
		},
		Mongo: Mongo{
			URL:                  getenvStr("MONGODB_URL", "mongodb://localhost:27017"),
			Database:             getenvStr("MONGODB_DATABASE", "droply"),
			DocumentDBBundlePath: getenvStr("DOCUMENT_DB_BUNDLE_PATH", ""),
		},
		Storage: Storage{
			Type:      getenvStr("STORAGE_TYPE", "minio"),
			Endpoint:  getenvStr("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey: getenvStr("STORAGE_ACCESS_KEY", ""),
			SecretKey: getenvStr("STORAGE_SECRET_KEY", ""),
			Bucket:    getenvStr("STORAGE_BUCKET", "droply"),
			UseSSL:    getenvBool("STORAGE_USE_SSL", false),
		},
		Upload: Upload{
			TokenKey: getenvStr("UPLOAD_TOKEN_KEY", ""),
			// Short by design: the token grants write access to object storage.
			TokenTTL:  getenvDuration("UPLOAD_TOKEN_TTL", 90*time.Second),
			MaxBytes:  maxUpload,
			MimeTypes: getenvList("UPLOAD_MIME_TYPES", []string{"image/jpeg", "image/png", "image/gif", "image/webp"}),
		},
		Lifecycle: Lifecycle{
			TrashRetention: getenvDuration("TRASH_RETENTION", 30*24*time.Hour),
			SweepInterval:  getenvDuration("SWEEP_INTERVAL", 10*time.Minute),
			SweepBatch:     sweepBatch,
		},
		Quota: Quota{
			OwnerMaxBytes: ownerQuota,
		},
		HTTP: HTTP{
			Port:     getenvStr("PORT", ":8080"),
			KeyPath:  getenvStr("HTTPS_KEY_PATH", ""),
			CertPath: getenvStr("HTTPS_CRT_PATH", ""),
		},
	}
	return cfg, nil
}

// -------Helper Functions----------

// getenvStr retrieves a string environment variable or returns a default.
func getenvStr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getenvBool retrieves a boolean environment variable or returns a default value.
func getenvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getenvInt64 retrieves an integer environment variable or returns a default value.
func getenvInt64(key string, fallback int64) (int64, error) {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, err
		}
		return i, nil
	}
	return fallback, nil
}

// getenvDuration retrieves a duration (e.g. "90s", "720h") or returns a default.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getenvList retrieves a comma-separated list or returns a default.
func getenvList(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

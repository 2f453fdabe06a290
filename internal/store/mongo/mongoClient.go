package mongo

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/Abhishek10299/Droply/internal/config"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// NewClient creates and returns a new MongoDB client based on the provided
// configuration. It handles standard connections and connections to AWS
// DocumentDB using an SSL certificate bundle.
func NewClient(ctx context.Context, cfg config.Mongo) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(cfg.URL)

	if cfg.DocumentDBBundlePath != "" {
		tlsConfig, err := createTLSConfig(cfg.DocumentDBBundlePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config for DocumentDB: %w", err)
		}
		clientOptions.SetTLSConfig(tlsConfig)
	}

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the database to verify that the connection is alive so the
	// application doesn't start with a bad DB connection.
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, nil
}

// EnsureIndexes creates the indexes the stores rely on. The partial unique
// index on (owner, parent, name) is what turns a racing duplicate create into
// a duplicate-key error instead of a corrupt tree, so it must exist before the
// server accepts traffic.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if err := ensureNodeIndexes(ctx, db.Collection(nodeCollection)); err != nil {
		return fmt.Errorf("node indexes: %w", err)
	}
	if err := ensureTokenIndexes(ctx, db.Collection(tokenCollection)); err != nil {
		return fmt.Errorf("token indexes: %w", err)
	}
	return nil
}

// createTLSConfig sets up a TLS configuration using a custom CA file, used to
// securely connect to services like AWS DocumentDB.
func createTLSConfig(caFilePath string) (*tls.Config, error) {
	if _, err := os.Stat(caFilePath); os.IsNotExist(err) {
		return nil, errors.New("DocumentDB CA file not found at path: " + caFilePath)
	}

	certs := x509.NewCertPool()
	pem, err := os.ReadFile(caFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	certs.AppendCertsFromPEM(pem)

	return &tls.Config{
		RootCAs: certs,
	}, nil
}

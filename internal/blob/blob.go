// Package blob re-exports core blob abstractions and selects a backend from
// configuration.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"distributor/internal/blob/core"
	fsstore "distributor/internal/infra/blob/fs"
	memorystore "distributor/internal/infra/blob/memory"
	s3store "distributor/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 backend.
	S3Config = s3store.Config
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrNotFound indicates a missing key.
	ErrNotFound = core.ErrNotFound
	// ErrExists indicates a create-only write hit an existing key.
	ErrExists = core.ErrExists
)

// Config selects and configures a blob backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// ConfigFromEnv reads blob settings from the environment.
//
//	DISTRIBUTOR_BLOB_DRIVER: fs|s3|memory (default fs)
//	DISTRIBUTOR_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	DISTRIBUTOR_BLOB_S3_BUCKET / _REGION / _ENDPOINT / _PATH_STYLE
//	DISTRIBUTOR_BLOB_S3_ACCESS_KEY_ID / _SECRET_ACCESS_KEY (optional static credentials)
func ConfigFromEnv() Config {
	driver := os.Getenv("DISTRIBUTOR_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	return Config{
		Driver: Driver(driver),
		FSRoot: os.Getenv("DISTRIBUTOR_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:          os.Getenv("DISTRIBUTOR_BLOB_S3_BUCKET"),
			Region:          os.Getenv("DISTRIBUTOR_BLOB_S3_REGION"),
			Endpoint:        os.Getenv("DISTRIBUTOR_BLOB_S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("DISTRIBUTOR_BLOB_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("DISTRIBUTOR_BLOB_S3_SECRET_ACCESS_KEY"),
			PathStyle:       strings.EqualFold(os.Getenv("DISTRIBUTOR_BLOB_S3_PATH_STYLE"), "true"),
		},
	}
}

// Open constructs the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return fsstore.New(cfg.FSRoot)
	case DriverS3:
		return s3store.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

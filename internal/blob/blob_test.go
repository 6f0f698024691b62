package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("DISTRIBUTOR_BLOB_DRIVER", "")
	cfg := ConfigFromEnv()
	require.Equal(t, DriverFilesystem, cfg.Driver)
}

func TestConfigFromEnvS3(t *testing.T) {
	t.Setenv("DISTRIBUTOR_BLOB_DRIVER", "s3")
	t.Setenv("DISTRIBUTOR_BLOB_S3_BUCKET", "airdrop")
	t.Setenv("DISTRIBUTOR_BLOB_S3_PATH_STYLE", "TRUE")
	cfg := ConfigFromEnv()
	require.Equal(t, DriverS3, cfg.Driver)
	require.Equal(t, "airdrop", cfg.S3.Bucket)
	require.True(t, cfg.S3.PathStyle)
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	require.Equal(t, DriverMemory, mem.Driver())

	fs, err := Open(ctx, Config{Driver: DriverFilesystem, FSRoot: filepath.Join(t.TempDir(), "blobs")})
	require.NoError(t, err)
	require.Equal(t, DriverFilesystem, fs.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	require.ErrorContains(t, err, "bucket required")

	_, err = Open(ctx, Config{Driver: "ftp"})
	require.ErrorContains(t, err, "unknown blob driver")
}

package archive

import (
	"context"
	"fmt"
	"os"
)

// Open selects an archive store implementation using environment variables.
//
//	DENTALCORE_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	DENTALCORE_ARCHIVE_FS_ROOT: root directory when driver=fs
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("DENTALCORE_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("DENTALCORE_ARCHIVE_FS_ROOT"))
	case DriverS3:
		return openS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}

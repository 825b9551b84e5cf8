package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Open returns the Store for the named driver: "sqlite" opens path,
// "postgres" connects to dsn.
func Open(ctx context.Context, driver, path, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir %s: %w", dir, err)
			}
		}
		return NewSQLiteStore(path)
	case "postgres":
		return NewPgStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirSink stores artifacts as files in one directory.
type DirSink struct {
	Dir string
}

// Save writes a to the sink directory and returns its path.
func (s DirSink) Save(ctx context.Context, a Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(a.Name))
	if err := os.WriteFile(path, a.Data, 0o600); err != nil {
		return "", fmt.Errorf("write recording: %w", err)
	}
	return path, nil
}

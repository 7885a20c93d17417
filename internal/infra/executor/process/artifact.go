package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// artifact is the temporary file handed to the analyzer. One per invocation.
type artifact struct {
	Path string
}

// artifactName combines a nanosecond timestamp with a random uuid so that
// concurrent invocations never collide.
func artifactName() string {
	return fmt.Sprintf("log_%d_%s.txt", time.Now().UnixNano(), uuid.NewString())
}

func acquireArtifact(dir, text string) (*artifact, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	path := filepath.Join(dir, artifactName())

	// O_EXCL: never reuse or clobber an existing file
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create artifact: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close artifact: %w", err)
	}
	return &artifact{Path: path}, nil
}

// release deletes the file. Already-missing files are not an error.
func (a *artifact) release() error {
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

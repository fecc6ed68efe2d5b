package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pokerbots/playground/internal/fileutil"
)

// StorageError reports a failed history write or read. The scheduler
// treats history write failures as fatal for the hand.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// HandStore keeps one text file per completed hand under a dedicated
// directory. Writes are atomic so readers never observe partial hands.
type HandStore struct {
	logger  zerolog.Logger
	baseDir string
}

// NewHandStore creates the store directory if needed.
func NewHandStore(logger zerolog.Logger, baseDir string) (*HandStore, error) {
	if err := fileutil.EnsureDir(baseDir); err != nil {
		return nil, &StorageError{Op: "init", Path: baseDir, Err: err}
	}
	return &HandStore{
		logger:  logger.With().Str("component", "hand_store").Logger(),
		baseDir: baseDir,
	}, nil
}

// Dir returns the store directory.
func (s *HandStore) Dir() string {
	return s.baseDir
}

// SaveHand writes the history text for handID.
func (s *HandStore) SaveHand(handID, content string) error {
	path := s.handPath(handID)
	if err := fileutil.WriteFileAtomic(path, []byte(content), 0o644); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	s.logger.Debug().Str("hand_id", handID).Str("path", path).Msg("hand history written")
	return nil
}

// LoadHand returns the history text, or ok=false when the hand is unknown.
func (s *HandStore) LoadHand(handID string) (string, bool, error) {
	path := s.handPath(handID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, &StorageError{Op: "read", Path: path, Err: err}
	}
	return string(data), true, nil
}

// Clear removes every stored hand file.
func (s *HandStore) Clear() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return &StorageError{Op: "clear", Path: s.baseDir, Err: err}
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return &StorageError{Op: "clear", Path: path, Err: err}
		}
	}
	return nil
}

func (s *HandStore) handPath(handID string) string {
	return filepath.Join(s.baseDir, handID+".txt")
}

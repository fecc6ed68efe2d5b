// Package registry owns the six seat slots and the bot artifacts bound to
// them. Uploads are validated before any byte reaches disk, then stored
// content-addressed so re-uploads of the same archive are deduplicated.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pokerbots/playground/internal/fileutil"
)

var botIDPattern = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveBotID builds the stable bot identity from the upload: the slugged
// filename stem plus the first ten hex digits of the payload hash. The
// same archive always maps to the same bot id.
func DeriveBotID(filename string, payload []byte) string {
	stem := strings.ToLower(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	base := strings.Trim(botIDPattern.ReplaceAllString(stem, "_"), "_")
	if base == "" {
		base = "bot"
	}
	digest := sha256.Sum256(payload)
	return base + "_" + hex.EncodeToString(digest[:])[:10]
}

// ArtifactRef locates one stored artifact.
type ArtifactRef struct {
	Filename  string
	SHA256    string
	SizeBytes int64
	Path      string
}

// ArtifactStore keeps validated archives content-addressed under
// <dir>/<botID>/<sha256>/<filename>. Stored files are never mutated.
type ArtifactStore struct {
	dir string
}

// NewArtifactStore creates the store rooted at dir.
func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &ArtifactStore{dir: dir}, nil
}

// Store writes the payload unless the identical content is already
// present, and returns its reference.
func (s *ArtifactStore) Store(botID, filename string, payload []byte) (ArtifactRef, error) {
	safeFilename := filepath.Base(filename)
	if safeFilename == "." || safeFilename == "/" || safeFilename == "" {
		safeFilename = "bot.zip"
	}
	digest := sha256.Sum256(payload)
	sha := hex.EncodeToString(digest[:])

	artifactDir := filepath.Join(s.dir, botID, sha)
	if err := fileutil.EnsureDir(artifactDir); err != nil {
		return ArtifactRef{}, err
	}

	path := filepath.Join(artifactDir, safeFilename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := fileutil.WriteFileAtomic(path, payload, 0o644); err != nil {
			return ArtifactRef{}, fmt.Errorf("storing artifact: %w", err)
		}
	} else if err != nil {
		return ArtifactRef{}, fmt.Errorf("storing artifact: %w", err)
	}

	return ArtifactRef{
		Filename:  safeFilename,
		SHA256:    sha,
		SizeBytes: int64(len(payload)),
		Path:      path,
	}, nil
}

package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArchiveError reports a safety violation encountered while extracting.
type ArchiveError struct {
	Reason string
}

func (e *ArchiveError) Error() string {
	return e.Reason
}

// ExtractTo streams the archive members into destination. Members are
// revalidated against the same path and size rules as Validate; the byte
// caps are enforced while streaming, so a member lying about its
// uncompressed size cannot blow past the limit.
func ExtractTo(payload []byte, destination string, lim Limits) error {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return &ArchiveError{Reason: "Upload is not a valid zip archive"}
	}
	if err := validateMembers(reader.File, lim); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return &ArchiveError{Reason: verr.Reason}
		}
		return err
	}

	var extractedTotal int64
	for _, f := range reader.File {
		normalized, err := normalizeMemberPath(f.Name)
		if err != nil {
			return &ArchiveError{Reason: "Invalid archive member path"}
		}

		target := filepath.Join(destination, filepath.FromSlash(normalized))
		if isDirEntry(f) {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("extracting %s: %w", normalized, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("extracting %s: %w", normalized, err)
		}
		n, err := extractFile(f, target, lim.MaxUncompressedBytes-extractedTotal)
		extractedTotal += n
		if err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	src, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("opening archive member %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", target, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, io.LimitReader(src, budget+1))
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", target, err)
	}
	if n > budget {
		return n, &ArchiveError{Reason: "Archive uncompressed size exceeds limit while extracting"}
	}
	return n, nil
}

package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"path"
	"strings"
	"unicode/utf8"
)

// Validate runs every archive check in order and fails with the first
// violation. No archive byte is written to disk here; rejected uploads
// leave no trace.
func Validate(payload []byte, filename string, lim Limits) (Result, error) {
	if len(payload) == 0 {
		return Result{}, &ValidationError{Reason: "Upload payload is empty"}
	}
	if int64(len(payload)) > lim.MaxUploadBytes {
		return Result{}, validationErrorf("Upload exceeds %dMB limit", lim.MaxUploadBytes/(1024*1024))
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".zip") {
		return Result{}, &ValidationError{Reason: "Only .zip bot uploads are supported"}
	}

	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return Result{}, &ValidationError{Reason: "Upload is not a valid zip archive"}
	}

	if err := validateMembers(reader.File, lim); err != nil {
		return Result{}, err
	}

	entrypoint, err := selectEntrypoint(reader.File)
	if err != nil {
		return Result{}, err
	}

	source, err := readMember(reader, entrypoint, lim.MaxBotSourceBytes, "bot.py")
	if err != nil {
		return Result{}, err
	}
	scan, err := ScanBotSource(source)
	if err != nil {
		return Result{}, err
	}
	if !scan.HasPokerBotClass {
		return Result{}, &ValidationError{Reason: "bot.py must define a PokerBot class"}
	}

	reqs := findMembers(reader.File, "requirements.txt")
	if len(reqs) > 1 {
		return Result{}, &ValidationError{Reason: "Archive contains multiple requirements.txt candidates"}
	}
	if len(reqs) == 1 {
		if _, err := readMember(reader, reqs[0], lim.MaxRequirementsBytes, "requirements.txt"); err != nil {
			return Result{}, err
		}
	}

	declared, err := scan.DeclaredProtocol()
	if err != nil {
		return Result{}, err
	}

	return Result{Entrypoint: entrypoint, DeclaredProtocol: declared}, nil
}

func validateMembers(files []*zip.File, lim Limits) error {
	if len(files) > lim.MaxMembers {
		return validationErrorf("Archive contains too many files (max %d)", lim.MaxMembers)
	}

	seen := make(map[string]bool, len(files))
	var totalUncompressed int64
	for _, f := range files {
		normalized, err := normalizeMemberPath(f.Name)
		if err != nil {
			return err
		}
		if seen[normalized] {
			return validationErrorf("Archive contains duplicate entry: %s", normalized)
		}
		seen[normalized] = true

		if f.Mode()&fs.ModeSymlink != 0 {
			return &ValidationError{Reason: "Archive symlinks are not allowed"}
		}
		if isDirEntry(f) {
			continue
		}

		if int64(f.UncompressedSize64) > lim.MaxFileBytes {
			return validationErrorf("Archive file exceeds %d byte limit", lim.MaxFileBytes)
		}
		totalUncompressed += int64(f.UncompressedSize64)
		if totalUncompressed > lim.MaxUncompressedBytes {
			return validationErrorf("Archive uncompressed size exceeds %d byte limit", lim.MaxUncompressedBytes)
		}
	}
	return nil
}

// normalizeMemberPath rejects unsafe member names and returns the cleaned
// slash-separated path used for duplicate detection.
func normalizeMemberPath(name string) (string, error) {
	if name == "" {
		return "", &ValidationError{Reason: "Archive contains an empty entry name"}
	}
	if strings.HasPrefix(name, "/") {
		return "", &ValidationError{Reason: "Archive contains absolute paths"}
	}
	if strings.Contains(name, "\\") {
		return "", &ValidationError{Reason: "Archive contains unsupported path separators"}
	}

	trimmed := strings.TrimSuffix(name, "/")
	for _, part := range strings.Split(trimmed, "/") {
		if part == "" || part == "." || part == ".." {
			return "", &ValidationError{Reason: "Archive contains unsafe paths"}
		}
	}
	return trimmed, nil
}

func isDirEntry(f *zip.File) bool {
	return strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir()
}

// selectEntrypoint locates the unique bot.py: at the archive root, or the
// sole bot.py one directory deep.
func selectEntrypoint(files []*zip.File) (string, error) {
	var root string
	var nested []string
	for _, f := range files {
		if isDirEntry(f) {
			continue
		}
		name := strings.TrimSuffix(f.Name, "/")
		if name == "bot.py" {
			root = name
			continue
		}
		if path.Base(name) == "bot.py" && strings.Count(name, "/") == 1 {
			nested = append(nested, name)
		}
	}

	if root != "" {
		return root, nil
	}
	switch len(nested) {
	case 0:
		return "", &ValidationError{Reason: "bot.py must exist at zip root or one top-level folder"}
	case 1:
		return nested[0], nil
	default:
		return "", &ValidationError{Reason: "Archive contains multiple bot.py candidates"}
	}
}

func findMembers(files []*zip.File, base string) []string {
	var matches []string
	for _, f := range files {
		if isDirEntry(f) {
			continue
		}
		if path.Base(strings.TrimSuffix(f.Name, "/")) == base {
			matches = append(matches, f.Name)
		}
	}
	return matches
}

func readMember(reader *zip.Reader, name string, maxBytes int64, label string) (string, error) {
	f, err := reader.Open(name)
	if err != nil {
		return "", validationErrorf("%s was not found in the zip", label)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return "", &ValidationError{Reason: "Upload is not a valid zip archive"}
	}
	if int64(len(data)) > maxBytes {
		return "", validationErrorf("%s exceeds %d byte limit", label, maxBytes)
	}
	if !utf8.Valid(data) {
		return "", validationErrorf("%s must be valid UTF-8 text", label)
	}
	return string(data), nil
}

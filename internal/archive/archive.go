// Package archive validates and safely extracts uploaded bot archives.
// Untrusted zips are checked for shape, size and path safety before any
// byte reaches disk.
package archive

import "fmt"

// Limits bounds the accepted shape of an uploaded archive.
type Limits struct {
	MaxUploadBytes       int64
	MaxMembers           int
	MaxFileBytes         int64
	MaxUncompressedBytes int64
	MaxBotSourceBytes    int64
	MaxRequirementsBytes int64
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxUploadBytes:       10 * 1024 * 1024,
		MaxMembers:           128,
		MaxFileBytes:         1 * 1024 * 1024,
		MaxUncompressedBytes: 2 * 1024 * 1024,
		MaxBotSourceBytes:    256 * 1024,
		MaxRequirementsBytes: 32 * 1024,
	}
}

// ValidationError reports why an upload was rejected. The message is safe
// to surface to the uploader verbatim.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Result describes a successfully validated archive.
type Result struct {
	// Entrypoint is the member path of bot.py inside the archive.
	Entrypoint string
	// DeclaredProtocol is the statically declared decision protocol
	// version, or empty when the bot declares none.
	DeclaredProtocol string
}

package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalBot = `class PokerBot:
    def act(self, state):
        return {"action": "check"}
`

func buildZip(t *testing.T, members map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range members {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestValidateAcceptsMinimalBot(t *testing.T) {
	payload := buildZip(t, map[string]string{"bot.py": minimalBot})
	res, err := Validate(payload, "bot.zip", DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "bot.py", res.Entrypoint)
	assert.Empty(t, res.DeclaredProtocol)
}

func TestValidateAcceptsNestedEntrypoint(t *testing.T) {
	payload := buildZip(t, map[string]string{"mybot/bot.py": minimalBot})
	res, err := Validate(payload, "mybot.zip", DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "mybot/bot.py", res.Entrypoint)
}

func TestValidateAcceptsSingleRequirements(t *testing.T) {
	payload := buildZip(t, map[string]string{
		"bot.py":           minimalBot,
		"requirements.txt": "numpy\n",
	})
	_, err := Validate(payload, "bot.zip", DefaultLimits())
	require.NoError(t, err)
}

func TestValidateRejections(t *testing.T) {
	lim := DefaultLimits()
	tests := []struct {
		name     string
		payload  []byte
		filename string
		want     string
	}{
		{
			name:     "empty payload",
			payload:  nil,
			filename: "bot.zip",
			want:     "Upload payload is empty",
		},
		{
			name:     "wrong extension",
			payload:  []byte("x"),
			filename: "bot.tar.gz",
			want:     "Only .zip bot uploads are supported",
		},
		{
			name:     "not a zip",
			payload:  []byte("definitely not a zip"),
			filename: "bot.zip",
			want:     "Upload is not a valid zip archive",
		},
		{
			name:     "traversal path",
			payload:  buildZip(t, map[string]string{"../bot.py": minimalBot}),
			filename: "bot.zip",
			want:     "Archive contains unsafe paths",
		},
		{
			name:     "absolute path",
			payload:  buildZip(t, map[string]string{"/etc/bot.py": minimalBot}),
			filename: "bot.zip",
			want:     "Archive contains absolute paths",
		},
		{
			name:     "backslash separator",
			payload:  buildZip(t, map[string]string{"dir\\bot.py": minimalBot}),
			filename: "bot.zip",
			want:     "Archive contains unsupported path separators",
		},
		{
			name:     "missing entrypoint",
			payload:  buildZip(t, map[string]string{"readme.md": "hi"}),
			filename: "bot.zip",
			want:     "bot.py must exist at zip root or one top-level folder",
		},
		{
			name: "multiple nested entrypoints",
			payload: buildZip(t, map[string]string{
				"a/bot.py": minimalBot,
				"b/bot.py": minimalBot,
			}),
			filename: "bot.zip",
			want:     "Archive contains multiple bot.py candidates",
		},
		{
			name:     "missing PokerBot class",
			payload:  buildZip(t, map[string]string{"bot.py": "class OtherBot:\n    pass\n"}),
			filename: "bot.zip",
			want:     "bot.py must define a PokerBot class",
		},
		{
			name:     "invalid utf-8 entrypoint",
			payload:  buildZip(t, map[string]string{"bot.py": "class PokerBot:\n    pass\n\xff\xfe"}),
			filename: "bot.zip",
			want:     "bot.py must be valid UTF-8 text",
		},
		{
			name: "unsupported declared protocol",
			payload: buildZip(t, map[string]string{
				"bot.py": "BOT_PROTOCOL_VERSION = \"3.0\"\n" + minimalBot,
			}),
			filename: "bot.zip",
			want:     "Unsupported protocol version '3.0'. Supported declared versions: 2.0",
		},
		{
			name: "non-literal protocol",
			payload: buildZip(t, map[string]string{
				"bot.py": "BOT_PROTOCOL_VERSION = 2.0\n" + minimalBot,
			}),
			filename: "bot.zip",
			want:     "BOT_PROTOCOL_VERSION must be a string literal",
		},
		{
			name: "multiple requirements files",
			payload: buildZip(t, map[string]string{
				"bot.py":               minimalBot,
				"requirements.txt":     "numpy\n",
				"pkg/requirements.txt": "scipy\n",
			}),
			filename: "bot.zip",
			want:     "Archive contains multiple requirements.txt candidates",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.payload, tt.filename, lim)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Reason)
		})
	}
}

func TestValidateDuplicateEntries(t *testing.T) {
	// zip.Writer rejects duplicate names, so assemble the archive by hand.
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for i := 0; i < 2; i++ {
		f, err := w.CreateHeader(&zip.FileHeader{Name: "bot.py"})
		require.NoError(t, err)
		_, err = f.Write([]byte(minimalBot))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	_, err := Validate(buf.Bytes(), "bot.zip", DefaultLimits())
	require.Error(t, err)
	assert.Equal(t, "Archive contains duplicate entry: bot.py", err.Error())
}

func TestValidateTooManyMembers(t *testing.T) {
	lim := DefaultLimits()
	members := map[string]string{"bot.py": minimalBot}
	for i := 0; i <= lim.MaxMembers; i++ {
		members["data/f"+strconv.Itoa(i)+".txt"] = "x"
	}
	_, err := Validate(buildZip(t, members), "bot.zip", lim)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Archive contains too many files")
}

func TestValidateFileSizeCaps(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxFileBytes = 64
	payload := buildZip(t, map[string]string{
		"bot.py": minimalBot + strings.Repeat("# padding\n", 20),
	})
	_, err := Validate(payload, "bot.zip", lim)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Archive file exceeds 64 byte limit")
}

func TestValidateDeclaredProtocolV2(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{
			name:   "module constant",
			source: "BOT_PROTOCOL_VERSION = \"2.0\"\n\n" + minimalBot,
		},
		{
			name:   "annotated module constant",
			source: "BOT_PROTOCOL_VERSION: str = \"2.0\"\n\n" + minimalBot,
		},
		{
			name:   "class attribute",
			source: "class PokerBot:\n    protocol_version = \"2.0\"\n\n    def act(self, state):\n        return {\"action\": \"check\"}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := buildZip(t, map[string]string{"bot.py": tt.source})
			res, err := Validate(payload, "bot.zip", DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, "2.0", res.DeclaredProtocol)
		})
	}
}

func TestModuleProtocolWinsOverClass(t *testing.T) {
	source := "BOT_PROTOCOL_VERSION = \"2.0\"\n\nclass PokerBot:\n    protocol_version = \"9.9\"\n    def act(self, state):\n        return {\"action\": \"check\"}\n"
	scan, err := ScanBotSource(source)
	require.NoError(t, err)
	declared, err := scan.DeclaredProtocol()
	require.NoError(t, err)
	assert.Equal(t, "2.0", declared)
}

func TestRejectedArchiveLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	payload := buildZip(t, map[string]string{"../bot.py": minimalBot})

	err := ExtractTo(payload, dir, DefaultLimits())
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractToRoundTrip(t *testing.T) {
	dir := t.TempDir()
	payload := buildZip(t, map[string]string{
		"bot.py":           minimalBot,
		"requirements.txt": "numpy\n",
	})

	require.NoError(t, ExtractTo(payload, dir, DefaultLimits()))

	data, err := os.ReadFile(filepath.Join(dir, "bot.py"))
	require.NoError(t, err)
	assert.Equal(t, minimalBot, string(data))
}

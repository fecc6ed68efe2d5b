package registry

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerbots/playground/internal/archive"
	"github.com/pokerbots/playground/internal/sandbox"
)

const minimalBot = `class PokerBot:
    def act(self, state):
        return {"action": "fold"}
`

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type fakeHandle struct {
	closed bool
}

func (h *fakeHandle) Decide(ctx context.Context, state []byte) sandbox.Decision {
	return sandbox.Decision{Action: "fold"}
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

type testHarness struct {
	reg       *Registry
	uploads   string
	artifacts string
	handles   []*fakeHandle
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		uploads:   filepath.Join(t.TempDir(), "uploads"),
		artifacts: filepath.Join(t.TempDir(), "artifacts"),
	}
	reg, err := New(zerolog.Nop(), Config{
		UploadsDir:   h.uploads,
		ArtifactsDir: h.artifacts,
		Limits:       archive.DefaultLimits(),
		Factory: func(ref ArtifactRef, entrypoint string) (sandbox.Handle, error) {
			handle := &fakeHandle{}
			h.handles = append(h.handles, handle)
			return handle, nil
		},
	})
	require.NoError(t, err)
	h.reg = reg
	return h
}

func TestRegisterUploadBindsSeat(t *testing.T) {
	h := newHarness(t)
	payload := buildZip(t, map[string]string{"bot.py": minimalBot})

	seat, err := h.reg.RegisterUpload("1", "Alice Bot", "alice.zip", payload)
	require.NoError(t, err)

	assert.True(t, seat.Ready)
	assert.Equal(t, "Alice Bot", seat.Name)
	assert.Regexp(t, `^alice_[0-9a-f]{10}$`, seat.BotID)
	assert.Equal(t, 1, h.reg.ReadyCount())

	snap := h.reg.Ready()
	require.Contains(t, snap.Bots, seat.ID)
	assert.Equal(t, seat.BotID, snap.BotIDs[seat.ID])
}

func TestRegisterUploadRejectsUnknownSeat(t *testing.T) {
	h := newHarness(t)
	payload := buildZip(t, map[string]string{"bot.py": minimalBot})

	_, err := h.reg.RegisterUpload("9", "", "bot.zip", payload)
	var loadErr *BotLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Zero(t, h.reg.ReadyCount())
}

func TestRejectedUploadLeavesNoFiles(t *testing.T) {
	h := newHarness(t)
	payload := buildZip(t, map[string]string{"../bot.py": minimalBot})

	_, err := h.reg.RegisterUpload("1", "", "evil.zip", payload)
	var valErr *archive.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "Archive contains unsafe paths", valErr.Reason)

	seats := h.reg.Seats()
	assert.False(t, seats[0].Ready)

	for _, dir := range []string{h.uploads, h.artifacts} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, "rejected upload must not write under %s", dir)
	}
}

func TestReplaceBotClosesOldHandle(t *testing.T) {
	h := newHarness(t)
	first := buildZip(t, map[string]string{"bot.py": minimalBot})
	second := buildZip(t, map[string]string{"bot.py": minimalBot + "\n# v2\n"})

	_, err := h.reg.RegisterUpload("3", "", "bot.zip", first)
	require.NoError(t, err)
	_, err = h.reg.RegisterUpload("3", "", "bot.zip", second)
	require.NoError(t, err)

	require.Len(t, h.handles, 2)
	assert.True(t, h.handles[0].closed)
	assert.False(t, h.handles[1].closed)
	assert.Equal(t, 1, h.reg.ReadyCount())
}

func TestSameArchiveDeduplicatesArtifact(t *testing.T) {
	h := newHarness(t)
	payload := buildZip(t, map[string]string{"bot.py": minimalBot})

	s1, err := h.reg.RegisterUpload("1", "", "bot.zip", payload)
	require.NoError(t, err)
	s2, err := h.reg.RegisterUpload("2", "", "bot.zip", payload)
	require.NoError(t, err)

	assert.Equal(t, s1.BotID, s2.BotID)

	// Both seats share one content-addressed artifact file.
	var files []string
	err = filepath.WalkDir(h.artifacts, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestResetAllClosesHandles(t *testing.T) {
	h := newHarness(t)
	payload := buildZip(t, map[string]string{"bot.py": minimalBot})

	_, err := h.reg.RegisterUpload("1", "", "a.zip", payload)
	require.NoError(t, err)
	_, err = h.reg.RegisterUpload("2", "", "b.zip", payload)
	require.NoError(t, err)
	require.Equal(t, 2, h.reg.ReadyCount())

	h.reg.ResetAll()

	assert.Zero(t, h.reg.ReadyCount())
	for _, handle := range h.handles {
		assert.True(t, handle.closed)
	}
	for _, seat := range h.reg.Seats() {
		assert.False(t, seat.Ready)
		assert.Empty(t, seat.BotID)
	}

	entries, err := os.ReadDir(h.uploads)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged uploads are removed on reset")
}

func TestDeriveBotID(t *testing.T) {
	tests := []struct {
		filename string
		prefix   string
	}{
		{"My Cool Bot!.zip", "my_cool_bot"},
		{"bot.zip", "bot"},
		{"___.zip", "bot"},
		{"UPPER-case.v2.zip", "upper_case_v2"},
	}
	for _, tc := range tests {
		id := DeriveBotID(tc.filename, []byte("payload"))
		assert.Regexp(t, "^"+tc.prefix+`_[0-9a-f]{10}$`, id, tc.filename)
	}

	a := DeriveBotID("bot.zip", []byte("one"))
	b := DeriveBotID("bot.zip", []byte("two"))
	assert.NotEqual(t, a, b, "different payloads get different ids")
	assert.Equal(t, a, DeriveBotID("bot.zip", []byte("one")))
}

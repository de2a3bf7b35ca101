package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Smallest byte sequences the sniffer recognizes for each format.
var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	gifBytes  = append([]byte("GIF89a"), make([]byte, 32)...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
)

func TestLocalStoreSavesSniffedImages(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	cases := map[string][]byte{"png": pngBytes, "gif": gifBytes, "jpg": jpegBytes}
	for ext, data := range cases {
		url, err := store.Save(bytes.NewReader(data), 3, 9)
		require.NoError(t, err, ext)
		assert.Regexp(t, regexp.MustCompile(`^/uploads/family-3-kid-9-[0-9a-f-]{36}\.`+ext+`$`), url)

		onDisk, err := os.ReadFile(filepath.Join(store.Dir(), strings.TrimPrefix(url, PublicPrefix)))
		require.NoError(t, err)
		assert.Equal(t, data, onDisk)
	}
}

func TestLocalStoreRejectsNonImages(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	_, err = store.Save(strings.NewReader("<html><script>alert(1)</script></html>"), 1, 1)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = store.Save(strings.NewReader(""), 1, 1)
	assert.ErrorIs(t, err, ErrEmpty)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStoreEnforcesSizeLimit(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 16)
	require.NoError(t, err)

	_, err = store.Save(bytes.NewReader(pngBytes), 1, 1)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLocalStoreResolveConfinesPaths(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), 1<<20)
	require.NoError(t, err)

	_, err = store.resolve("../escape.png")
	assert.Error(t, err)
	_, err = store.resolve("nested/file.png")
	assert.Error(t, err)
	p, err := store.resolve("ok.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "ok.png"), p)
}

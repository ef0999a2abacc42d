package tool

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		`My: Video / "Cut"?`:       "My Video Cut",
		"  spaced\t\tout  name  ": "spaced out name",
		`a<b>c|d*e\f`:             "abcdef",
		"plain":                   "plain",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestHumanReadableSize(t *testing.T) {
	assert.Equal(t, "0.00 B", HumanReadableSize(0))
	assert.Equal(t, "512.00 B", HumanReadableSize(512))
	assert.Equal(t, "1.50 KB", HumanReadableSize(1536))
	assert.Equal(t, "50.00 MB", HumanReadableSize(50*1024*1024))
	assert.Equal(t, "2.00 GB", HumanReadableSize(2*1024*1024*1024))
}

func TestCleanupDownloadDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "downloads")

	require.NoError(t, CleanupDownloadDir(root), "missing dir is created")
	assert.DirExists(t, root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "42", "req"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "42", "req", "a.mp4"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	require.NoError(t, CleanupDownloadDir(root))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLargestFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "small.txt"), []byte("ab"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video.mp4"), make([]byte, 1024), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	got, err := LargestFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "video.mp4"), got)

	_, err = LargestFile(t.TempDir())
	assert.Error(t, err)
}

func TestBuildBotMethodURL(t *testing.T) {
	got, err := BuildBotMethodURL("https://api.telegram.org/", "123:abc", "sendDocument")
	require.NoError(t, err)
	assert.Equal(t, "https://api.telegram.org/bot123:abc/sendDocument", got)

	_, err = BuildBotMethodURL("https://api.telegram.org", "", "getMe")
	assert.Error(t, err)
	_, err = BuildBotMethodURL("not a url", "t", "getMe")
	assert.Error(t, err)

	assert.Equal(t, "post /bot<redacted>/x", RedactToken("post /bot123:abc/x", "123:abc"))
}

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "_")
	assert.Len(t, ShortID(), 8)
}

func TestCopyWithContextReportsProgress(t *testing.T) {
	var seen []int64
	src := &ProgressReader{R: strings.NewReader(strings.Repeat("x", 10)), OnRead: func(n int64) { seen = append(seen, n) }}
	var dst bytes.Buffer

	n, err := CopyWithContext(context.Background(), &dst, src, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, []int64{4, 8, 10}, seen)
	assert.Equal(t, int64(10), src.Total())
}

func TestCopyWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := CopyWithContext(ctx, io.Discard, strings.NewReader("data"), 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

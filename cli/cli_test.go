package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/splitsend-go/admission"
	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

func writeSource(t *testing.T, dir string, size int) string {
	t.Helper()
	path := filepath.Join(dir, "Movie.mp4")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{7}, size), 0o644))
	return path
}

func TestRunSplitNextToSource(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, 2*types.MiB+10)

	var out bytes.Buffer
	chunks, err := runSplit(context.Background(), &out, types.SplitConfig{MaxChunkSizeMB: 1, BufferSizeMB: 1}, src, "")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "Movie - Part A.mp4", chunks[0].Name)
	assert.Equal(t, int64(10), chunks[2].Size)
	for _, c := range chunks {
		assert.FileExists(t, filepath.Join(dir, c.Name))
	}
	assert.Contains(t, out.String(), `cat "Movie - Part A.mp4" "Movie - Part B.mp4" "Movie - Part C.mp4" > "Movie - Full.mp4"`)
}

func TestRunSplitIntoOutDir(t *testing.T) {
	src := writeSource(t, t.TempDir(), types.MiB+1)
	outDir := filepath.Join(t.TempDir(), "parts")

	var out bytes.Buffer
	chunks, err := runSplit(context.Background(), &out, types.SplitConfig{MaxChunkSizeMB: 1, BufferSizeMB: 1}, src, outDir)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, filepath.Join(outDir, "Movie - Part B.mp4"), chunks[1].Path)
	assert.FileExists(t, chunks[1].Path)
}

func TestRunSplitSmallFileHasNoMergeHelp(t *testing.T) {
	src := writeSource(t, t.TempDir(), 100)

	var out bytes.Buffer
	chunks, err := runSplit(context.Background(), &out, types.SplitConfig{MaxChunkSizeMB: 1, BufferSizeMB: 1}, src, "")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, src, chunks[0].Path)
	assert.NotContains(t, out.String(), "To merge")
}

func TestRunSplitSmallFileIntoOutDirKeepsName(t *testing.T) {
	src := writeSource(t, t.TempDir(), 100)
	outDir := filepath.Join(t.TempDir(), "parts")

	var out bytes.Buffer
	chunks, err := runSplit(context.Background(), &out, types.SplitConfig{MaxChunkSizeMB: 1, BufferSizeMB: 1}, src, outDir)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Movie.mp4", chunks[0].Name)
	assert.Equal(t, src, chunks[0].Path)
	assert.Equal(t, int64(100), chunks[0].Size)
	assert.NoFileExists(t, filepath.Join(outDir, "Movie - Part A.mp4"))
	assert.NotContains(t, out.String(), "To merge")
}

func TestRunSplitMissingFile(t *testing.T) {
	_, err := runSplit(context.Background(), &bytes.Buffer{}, types.SplitConfig{MaxChunkSizeMB: 1, BufferSizeMB: 1}, filepath.Join(t.TempDir(), "nope.mp4"), "")
	assert.ErrorIs(t, err, types.ErrSplitIO)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "splitsend "+tool.Version+"\n", out.String())
}

func TestHousekeepingForgetsIdleActors(t *testing.T) {
	adm := admission.New(1)
	require.NoError(t, adm.WithActorExclusive(context.Background(), 1, func(context.Context) error { return nil }))
	require.Equal(t, 1, adm.KnownActors())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go housekeeping(ctx, adm, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return adm.KnownActors() == 0 }, 2*time.Second, 5*time.Millisecond)
}

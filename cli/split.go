package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moyoez/splitsend-go/pipeline"
	"github.com/moyoez/splitsend-go/splitter"
	"github.com/moyoez/splitsend-go/tool"
	"github.com/moyoez/splitsend-go/types"
)

func newSplitCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Split a local file into upload-sized parts",
		Long: `Split a local file into parts no larger than the configured chunk size
and print the commands that join them back together.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			defer tool.CloseLogFile()
			_, err = runSplit(cmd.Context(), cmd.OutOrStdout(), cfg.Split, args[0], outDir)
			return err
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for the parts (default: next to the file)")
	return cmd
}

func runSplit(ctx context.Context, w io.Writer, cfg types.SplitConfig, path, outDir string) ([]types.Chunk, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := splitter.New(cfg.MaxChunkBytes(), cfg.BufferBytes())
	s.OnProgress = func(done, total int64) {
		tool.DefaultLogger.Debugf("Split %s of %s", tool.HumanReadableSize(done), tool.HumanReadableSize(total))
	}

	var (
		chunks []types.Chunk
		err    error
	)
	if outDir == "" {
		chunks, err = s.SplitFile(ctx, path)
	} else {
		chunks, err = splitInto(ctx, s, path, outDir)
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, len(chunks))
	for i, c := range chunks {
		names[i] = c.Name
		_, _ = fmt.Fprintf(w, "%s\t%s\n", c.Path, tool.HumanReadableSize(c.Size))
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if help := pipeline.MergeInstructions(names, title); help != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", help)
	}
	return chunks, nil
}

func splitInto(ctx context.Context, s *splitter.Splitter, path, outDir string) ([]types.Chunk, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSplitIO, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSplitIO, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSplitIO, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", types.ErrSplitIO, path)
	}
	// A file that already fits is left where it is under its own name.
	if info.Size() <= s.MaxChunkSize {
		return []types.Chunk{{Index: 0, Name: filepath.Base(path), Path: path, Size: info.Size()}}, nil
	}
	return s.SplitStream(ctx, f, info.Size(), filepath.Base(path), splitter.DirSink{Dir: outDir})
}

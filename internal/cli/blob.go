package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/provenant/internal/blob"
)

// BlobOptions holds flags for the blob command.
type BlobOptions struct {
	*RootOptions
	Dir    string
	Output string
}

// BlobResult describes a stored payload. The bytes themselves are written
// to --out.
type BlobResult struct {
	ID     string    `json:"id"`
	Meta   blob.Meta `json:"meta"`
	Output string    `json:"output,omitempty"`
}

// NewBlobCommand creates the blob command.
func NewBlobCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BlobOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "blob <id>",
		Short: "Fetch a binary payload referenced by an invocation",
		Long: `Fetch a binary payload by the content address found under "$blob" in
recorded inputs or outputs.

Text output writes the raw bytes to stdout unless --out is given.

Examples:
  provenant blob sha256:9f86d0... --blob-dir ./blobs > image.png
  provenant blob sha256:9f86d0... --out image.png --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlob(cmd.Context(), opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "blob-dir", "", "blob store directory (default from config)")
	cmd.Flags().StringVarP(&opts.Output, "out", "o", "", "write the payload to this file")

	return cmd
}

func runBlob(ctx context.Context, opts *BlobOptions, cmd *cobra.Command, id string) error {
	dir := opts.Dir
	if dir == "" {
		dir = opts.Config.BlobDir
	}
	if dir == "" {
		return NewExitError(ExitCommandError, CodeConfig, "no blob directory: set blob_dir or --blob-dir")
	}
	if _, err := os.Stat(dir); err != nil {
		return WrapExitError(ExitCommandError, CodeStore, "blob directory not found", err)
	}

	bs, err := blob.Open(blob.Config{Dir: dir, Logger: opts.Logger})
	if err != nil {
		return WrapExitError(ExitCommandError, CodeStore, "failed to open blob store", err)
	}
	defer bs.Close()

	data, meta, err := bs.Get(ctx, id)
	if errors.Is(err, blob.ErrNotFound) {
		return WrapExitError(ExitFailure, CodeNotFound, "unknown blob", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, CodeStore, "failed to read blob", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, CodeInternal, "failed to write payload", err)
		}
	}

	f := opts.formatter(cmd)
	if f.Format != "json" && opts.Output == "" {
		_, err := f.Writer.Write(data)
		return err
	}
	result := BlobResult{ID: id, Meta: meta, Output: opts.Output}
	return f.Success(result, func(w io.Writer) error {
		fmt.Fprintf(w, "%s  %s  %d bytes -> %s\n", id, meta.MimeType, meta.Size, opts.Output)
		return nil
	})
}

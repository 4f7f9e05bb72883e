package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// LineageOptions holds flags for the lineage command.
type LineageOptions struct {
	*RootOptions
	Invocation string
}

// LineageResult is the consumption graph around one invocation.
type LineageResult struct {
	Invocation InvocationView `json:"invocation"`
	Consumes   []string       `json:"consumes"`    // direct inputs
	ConsumedBy []string       `json:"consumed_by"` // direct consumers
	Lineage    []string       `json:"lineage"`     // transitive inputs
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LineageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Show which invocations fed an invocation and which it fed",
		Long: `Show the consumption graph around one invocation: the invocations whose
outputs it consumed, transitively, and the invocations that consumed its output.

Examples:
  provenant lineage --invocation 0190d5e4-...
  provenant lineage --invocation 0190d5e4-... --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Invocation, "invocation", "", "invocation id (required)")
	_ = cmd.MarkFlagRequired("invocation")

	return cmd
}

func runLineage(ctx context.Context, opts *LineageOptions, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	inv, err := st.GetInvocation(ctx, opts.Invocation)
	if err != nil {
		return WrapExitError(ExitCommandError, CodeStore, fmt.Sprintf("invocation %q", opts.Invocation), err)
	}
	consumedBy, err := st.GetConsumedBy(ctx, inv.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, CodeStore, "failed to read consumers", err)
	}
	lineage, err := st.GetLineage(ctx, inv.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, CodeStore, "failed to read lineage", err)
	}

	view := newInvocationView(inv)
	result := LineageResult{
		Invocation: view,
		Consumes:   view.Consumes,
		ConsumedBy: consumedBy,
		Lineage:    lineage,
	}

	return opts.formatter(cmd).Success(result, func(w io.Writer) error {
		fmt.Fprintf(w, "Invocation %s %s\n", inv.ID, view.inputs())
		fmt.Fprintf(w, "  lmp: %s\n", inv.LMPID)
		printIDs(w, "Consumes", result.Consumes)
		printIDs(w, "Consumed by", result.ConsumedBy)
		printIDs(w, "Lineage", result.Lineage)
		return nil
	})
}

func printIDs(w io.Writer, title string, ids []string) {
	fmt.Fprintf(w, "\n=== %s ===\n", title)
	if len(ids) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, id := range ids {
		fmt.Fprintf(w, "  %s\n", id)
	}
}

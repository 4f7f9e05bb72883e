package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewLMPsCommand creates the lmps command.
func NewLMPsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lmps",
		Short: "List the latest version of every tracked name",
		Long: `List the latest version of every tracked name with its invocation count.

Examples:
  provenant lmps --db ./provenant.db
  provenant lmps --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLMPs(cmd.Context(), rootOpts, cmd)
		},
	}
}

func runLMPs(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	latest, err := st.ListLatest(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, CodeStore, "failed to list versions", err)
	}
	counts, err := st.InvocationCounts(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, CodeStore, "failed to count invocations", err)
	}

	views := make([]VersionView, 0, len(latest))
	for _, l := range latest {
		v := newVersionView(l)
		n := counts[l.ID]
		v.Invocations = &n
		views = append(views, v)
	}

	return opts.formatter(cmd).Success(views, func(w io.Writer) error {
		if len(views) == 0 {
			fmt.Fprintln(w, "No tracked LMPs.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tVERSION\tKIND\tINVOCATIONS\tLMP_ID")
		for _, v := range views {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", v.Name, v.Version, v.Kind, *v.Invocations, truncateID(v.LMPID))
		}
		return tw.Flush()
	})
}

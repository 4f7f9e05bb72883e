package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// VersionsOptions holds flags for the versions command.
type VersionsOptions struct {
	*RootOptions
	Name   string
	Source bool
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VersionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Show the version history of a tracked name",
		Long: `Show every stored version of a name, oldest first, with commit messages.

Examples:
  provenant versions --name greet
  provenant versions --name greet --source
  provenant versions --name greet --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersions(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "tracked name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().BoolVar(&opts.Source, "source", false, "include closured source and dependencies")

	return cmd
}

func runVersions(ctx context.Context, opts *VersionsOptions, cmd *cobra.Command) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	versions, err := st.GetVersionsByName(ctx, opts.Name)
	if err != nil {
		return WrapExitError(ExitCommandError, CodeStore, "failed to read versions", err)
	}
	if len(versions) == 0 {
		return NewExitError(ExitFailure, CodeNotFound, fmt.Sprintf("no versions of %q", opts.Name))
	}

	views := make([]VersionView, 0, len(versions))
	for _, l := range versions {
		v := newVersionView(l)
		if opts.Source || opts.Verbose {
			uses, err := st.GetUses(ctx, l.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, CodeStore, "failed to read uses", err)
			}
			v.Uses = uses
			v.Dependencies = l.Dependencies
			v.Source = l.Source
		}
		views = append(views, v)
	}

	return opts.formatter(cmd).Success(views, func(w io.Writer) error {
		fmt.Fprintf(w, "Versions of %s\n", opts.Name)
		for _, v := range views {
			fmt.Fprintf(w, "\n  v%d  %s  %s\n", v.Version, truncateID(v.LMPID), v.CreatedAt.Format(timeLayout))
			if v.Model != "" {
				fmt.Fprintf(w, "      model: %s\n", v.Model)
			}
			if v.CommitMessage != "" {
				fmt.Fprintf(w, "      %s\n", firstLine(v.CommitMessage))
			}
			if v.Source != "" {
				for _, dep := range v.Uses {
					fmt.Fprintf(w, "      uses: %s\n", truncateID(dep))
				}
				fmt.Fprintf(w, "\n%s\n", v.Source)
			}
		}
		return nil
	})
}

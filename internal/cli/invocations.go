package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/provenant/internal/ir"
	"github.com/roach88/provenant/internal/queryir"
	"github.com/roach88/provenant/internal/store"
)

// InvocationsOptions holds flags for the invocations command.
type InvocationsOptions struct {
	*RootOptions
	LMP    string // lmp_id or name
	Since  string
	Until  string
	Where  []string
	Status string // "all" | "ok" | "failed"
}

// NewInvocationsCommand creates the invocations command.
func NewInvocationsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvocationsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invocations",
		Short: "Query recorded invocations",
		Long: `Query recorded invocations, oldest first.

--lmp takes a version id or a name; a name matches every version of it.
--where matches keyword arguments by canonical value and may be repeated.
Times are RFC 3339; --since is inclusive, --until exclusive.

Examples:
  provenant invocations --lmp greet
  provenant invocations --lmp greet --where name=Ada --where n=3
  provenant invocations --since 2024-01-01T00:00:00Z --status failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvocations(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.LMP, "lmp", "", "version id or name")
	cmd.Flags().StringVar(&opts.Since, "since", "", "only invocations created at or after this time")
	cmd.Flags().StringVar(&opts.Until, "until", "", "only invocations created before this time")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "keyword argument filter key=value")
	cmd.Flags().StringVar(&opts.Status, "status", "all", "all|ok|failed")

	return cmd
}

func runInvocations(ctx context.Context, opts *InvocationsOptions, cmd *cobra.Command) error {
	filter, err := opts.filter()
	if err != nil {
		return WrapExitError(ExitCommandError, CodeUsage, "invalid filter", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	lmpIDs, err := resolveLMP(ctx, st, opts.LMP)
	if err != nil {
		return WrapExitError(ExitCommandError, CodeStore, fmt.Sprintf("unknown lmp %q", opts.LMP), err)
	}

	var invs []ir.Invocation
	for _, id := range lmpIDs {
		found, err := st.GetInvocations(ctx, id, filter)
		if err != nil {
			return WrapExitError(ExitCommandError, CodeStore, "failed to query invocations", err)
		}
		invs = append(invs, found...)
	}
	sort.SliceStable(invs, func(i, j int) bool { return invs[i].CreatedAt.Before(invs[j].CreatedAt) })

	views := make([]InvocationView, 0, len(invs))
	for _, inv := range invs {
		views = append(views, newInvocationView(inv))
	}

	return opts.formatter(cmd).Success(views, func(w io.Writer) error {
		if len(views) == 0 {
			fmt.Fprintln(w, "No invocations found.")
			return nil
		}
		for _, v := range views {
			outcome := "-> " + compact(v.result)
			if v.Error != "" {
				outcome = "!! " + v.Error
			}
			fmt.Fprintf(w, "%s  %s %s %s\n", v.CreatedAt.Format(timeLayout), v.ID, v.inputs(), outcome)
			if opts.Verbose {
				fmt.Fprintf(w, "    lmp: %s  latency: %.3fms  tokens: %d\n", truncateID(v.LMPID), v.LatencyMS, v.Usage.Total())
				if len(v.Consumes) > 0 {
					fmt.Fprintf(w, "    consumes: %s\n", strings.Join(v.Consumes, ", "))
				}
			}
		}
		return nil
	})
}

// resolveLMP returns the version ids selected by ref: all versions when ref
// is empty, the version with that id, or every version of that name.
func resolveLMP(ctx context.Context, st *store.Store, ref string) ([]string, error) {
	if ref == "" {
		return []string{""}, nil
	}
	if _, err := st.GetLMP(ctx, ref); err == nil {
		return []string{ref}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	versions, err := st.GetVersionsByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, store.ErrNotFound
	}
	ids := make([]string, 0, len(versions))
	for _, v := range versions {
		ids = append(ids, v.ID)
	}
	return ids, nil
}

// filter builds the query predicate from the flags.
func (o *InvocationsOptions) filter() (queryir.Predicate, error) {
	var preds []queryir.Predicate

	var between queryir.CreatedBetween
	var err error
	if o.Since != "" {
		if between.From, err = time.Parse(time.RFC3339Nano, o.Since); err != nil {
			return nil, fmt.Errorf("--since: %w", err)
		}
	}
	if o.Until != "" {
		if between.To, err = time.Parse(time.RFC3339Nano, o.Until); err != nil {
			return nil, fmt.Errorf("--until: %w", err)
		}
	}
	if !between.From.IsZero() || !between.To.IsZero() {
		preds = append(preds, between)
	}

	for _, w := range o.Where {
		key, raw, ok := strings.Cut(w, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--where %q: want key=value", w)
		}
		preds = append(preds, queryir.Equals{Field: queryir.KwargsPrefix + key, Value: parseWhereValue(raw)})
	}

	switch o.Status {
	case "", "all":
	case "ok":
		preds = append(preds, queryir.Equals{Field: queryir.FieldFailed, Value: ir.IRBool(false)})
	case "failed":
		preds = append(preds, queryir.Equals{Field: queryir.FieldFailed, Value: ir.IRBool(true)})
	default:
		return nil, fmt.Errorf("--status %q: want all, ok or failed", o.Status)
	}

	return queryir.All(preds...), nil
}

// parseWhereValue reads a JSON scalar, falling back to the raw text as a
// string so that name=Ada needs no quoting.
func parseWhereValue(raw string) ir.IRValue {
	v, err := ir.UnmarshalIRValue([]byte(raw))
	if err != nil {
		return ir.IRString(raw)
	}
	switch v.(type) {
	case ir.IRArray, ir.IRObject:
		return ir.IRString(raw)
	}
	return v
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/and161185/sitecfg/internal/api/configv1"
	"github.com/and161185/sitecfg/internal/convert"
)

// request builds the message for one RPC from positional args.
type request func(args []string) (map[string]any, error)

func fixed(method string) func([]string) string {
	return func([]string) string { return method }
}

type online struct {
	use, short string
	args       cobra.PositionalArgs
	method     func(args []string) string
	build      request
	flags      func(*cobra.Command)
}

func (g *globals) command(o online) *cobra.Command {
	cmd := &cobra.Command{
		Use:   o.use,
		Short: o.short,
		Args:  o.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := o.build(args)
			if err != nil {
				return err
			}
			cc, cli, err := g.dial()
			if err != nil {
				return err
			}
			defer cc.Close()

			in, err := convert.NewRequest(fields)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			out, err := cli.Call(ctx, o.method(args), in)
			if err != nil {
				return err
			}
			return printProto(cmd.OutOrStdout(), out)
		},
	}
	if o.flags != nil {
		o.flags(cmd)
	}
	return cmd
}

func parseID(s string) (float64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad revision id %q", s)
	}
	return float64(id), nil
}

func newOnlineCmds(g *globals) []*cobra.Command {
	var (
		note, source string
		limit        int
		pattern      string
	)
	withLimit := func(fields map[string]any) map[string]any {
		if limit > 0 {
			fields["limit"] = limit
		}
		return fields
	}
	limitFlag := func(cmd *cobra.Command) {
		cmd.Flags().IntVar(&limit, "limit", 0, "max revisions (server default when 0)")
	}

	return []*cobra.Command{
		g.command(online{
			use: "get KEY", short: "Print the current document of KEY",
			args: cobra.ExactArgs(1), method: fixed(configv1.MethodGetDocument),
			build: func(a []string) (map[string]any, error) { return map[string]any{"key": a[0]}, nil },
		}),
		g.command(online{
			use: "commit KEY FILE", short: "Store FILE (JSON, - for stdin) as the document of KEY",
			args: cobra.ExactArgs(2), method: fixed(configv1.MethodCommit),
			build: func(a []string) (map[string]any, error) {
				b, err := readAll(a[1])
				if err != nil {
					return nil, err
				}
				var doc any
				if err := json.Unmarshal(b, &doc); err != nil {
					return nil, fmt.Errorf("%s: %w", a[1], err)
				}
				return map[string]any{"key": a[0], "document": doc, "note": note, "sourcePath": source}, nil
			},
			flags: func(cmd *cobra.Command) {
				cmd.Flags().StringVar(&note, "note", "", "free-form note stored with the revision")
				cmd.Flags().StringVar(&source, "source", "", "admin page or tool the change came from")
			},
		}),
		g.command(online{
			use: "history [KEY]", short: "List revisions of KEY, or of all keys",
			args: cobra.MaximumNArgs(1),
			method: func(a []string) string {
				if len(a) == 1 {
					return configv1.MethodListHistory
				}
				return configv1.MethodListRecent
			},
			build: func(a []string) (map[string]any, error) {
				if len(a) == 1 {
					return withLimit(map[string]any{"key": a[0]}), nil
				}
				return withLimit(map[string]any{"pattern": pattern}), nil
			},
			flags: func(cmd *cobra.Command) {
				limitFlag(cmd)
				cmd.Flags().StringVar(&pattern, "pattern", "", "key glob, e.g. pages/**")
			},
		}),
		g.command(online{
			use: "latest", short: "Show the newest revision of each recently changed key",
			args: cobra.NoArgs, method: fixed(configv1.MethodLatestPerKey),
			build: func([]string) (map[string]any, error) { return withLimit(map[string]any{}), nil },
			flags: limitFlag,
		}),
		g.command(online{
			use: "show ID", short: "Show one revision",
			args: cobra.ExactArgs(1), method: fixed(configv1.MethodGetRevision),
			build: func(a []string) (map[string]any, error) {
				id, err := parseID(a[0])
				return map[string]any{"id": id}, err
			},
		}),
		g.command(online{
			use: "restore KEY ID", short: "Re-commit the value of revision ID under KEY",
			args: cobra.ExactArgs(2), method: fixed(configv1.MethodRestore),
			build: func(a []string) (map[string]any, error) {
				id, err := parseID(a[1])
				return map[string]any{"key": a[0], "revisionId": id, "note": note}, err
			},
			flags: func(cmd *cobra.Command) {
				cmd.Flags().StringVar(&note, "note", "", "note (default: restore of revision ID)")
			},
		}),
		g.command(online{
			use: "verify KEY", short: "Check that the revisions of KEY chain together",
			args: cobra.ExactArgs(1), method: fixed(configv1.MethodVerifyChain),
			build: func(a []string) (map[string]any, error) { return withLimit(map[string]any{"key": a[0]}), nil },
			flags: limitFlag,
		}),
	}
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/and161185/sitecfg/internal/config"
	"github.com/and161185/sitecfg/internal/describe"
	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/model"
	"github.com/and161185/sitecfg/internal/service"
	"github.com/and161185/sitecfg/internal/tree"
)

func readNode(path string) (*tree.Node, error) {
	b, err := readAll(path)
	if err != nil {
		return nil, err
	}
	n, err := tree.Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// loadLabels reads a describer dictionary in the server config layout
// (labels, key_labels, separators).
func loadLabels(path string) (*describe.Describer, error) {
	d := &describe.Describer{}
	if path == "" {
		return d, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, d); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// labelOps encodes each op the way diff does and adds its field label.
func labelOps(d *describe.Describer, key string, ops []diff.ChangeOp) ([]map[string]json.RawMessage, error) {
	out := make([]map[string]json.RawMessage, len(ops))
	for i, op := range ops {
		b, err := json.Marshal(op)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, err
		}
		if fields["label"], err = json.Marshal(d.Describe(key, op.Path)); err != nil {
			return nil, err
		}
		out[i] = fields
	}
	return out, nil
}

func newDiffCmd() *cobra.Command {
	var key, labels string
	cmd := &cobra.Command{
		Use:   "diff BEFORE AFTER",
		Short: "Print the change operations between two JSON documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := readNode(args[0])
			if err != nil {
				return err
			}
			after, err := readNode(args[1])
			if err != nil {
				return err
			}
			ops := diff.Diff(before, after)
			if ops == nil {
				ops = []diff.ChangeOp{}
			}
			if key == "" {
				return printJSON(cmd.OutOrStdout(), ops)
			}
			d, err := loadLabels(labels)
			if err != nil {
				return err
			}
			out, err := labelOps(d, key, ops)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&key, "describe", "", "label paths as fields of document KEY")
	cmd.Flags().StringVar(&labels, "labels", "", "YAML label dictionary for --describe")
	return cmd
}

func newPatchCmd() *cobra.Command {
	var invert bool
	cmd := &cobra.Command{
		Use:   "patch DOC OPS",
		Short: "Apply change operations to a JSON document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readNode(args[0])
			if err != nil {
				return err
			}
			b, err := readAll(args[1])
			if err != nil {
				return err
			}
			var ops []diff.ChangeOp
			if err := json.Unmarshal(b, &ops); err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			if invert {
				ops = diff.Invert(ops)
			}
			out, err := diff.Apply(doc, ops)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&invert, "invert", false, "undo OPS instead of applying them")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		key   string
		actor model.Actor
		ttl   time.Duration
		save  bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with the server key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = os.Getenv(config.EnvJWTKey)
			}
			if key == "" {
				return errors.New("need --jwt-key or " + config.EnvJWTKey)
			}
			if actor.ID == "" && actor.Username == "" {
				return errors.New("need --sub or --username")
			}
			tok, exp, err := service.NewAuthService([]byte(key), ttl).IssueToken(actor)
			if err != nil {
				return err
			}
			if save {
				if err := saveToken(tok, exp); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&key, "jwt-key", "", "HS256 signing key (env "+config.EnvJWTKey+")")
	f.StringVar(&actor.ID, "sub", "", "actor id")
	f.StringVar(&actor.Username, "username", "", "actor username")
	f.StringVar(&actor.Email, "email", "", "actor email")
	f.StringVar(&actor.Role, "role", "", "actor role")
	f.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	f.BoolVar(&save, "save", false, "store the token for later commands")
	return cmd
}

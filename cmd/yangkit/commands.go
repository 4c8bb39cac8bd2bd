package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"yangkit/internal/engine/model"
	"yangkit/internal/engine/repository"
	"yangkit/internal/ui/report"
)

const closeTimeout = 10 * time.Second

type compileOptions struct {
	features   []string
	noFeatures bool
	semver     bool
	tree       bool
}

func (o compileOptions) requestOptions() []repository.RequestOption {
	var opts []repository.RequestOption
	if o.noFeatures || len(o.features) > 0 {
		opts = append(opts, repository.WithFeatures(model.NoFeatures()))
	}
	if len(o.features) > 0 {
		opts = append(opts, repository.WithFeatureNames(o.features...))
	}
	if o.semver {
		opts = append(opts, repository.WithSemanticVersioning())
	}
	return opts
}

func (o *compileOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&o.features, "feature", nil, "Support only these features (module:feature or bare name)")
	cmd.Flags().BoolVar(&o.noFeatures, "no-features", false, "Support no features")
	cmd.Flags().BoolVar(&o.semver, "semver", false, "Match imports by semantic version")
}

// withSession runs fn against a freshly opened App and always closes it.
func withSession(root *rootOptions, cmd *cobra.Command, fn func(*session) error) error {
	s, err := root.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		s.close(ctx)
	}()
	return fn(s)
}

func newCompileCommand(root *rootOptions) *cobra.Command {
	opts := &compileOptions{}
	cmd := &cobra.Command{
		Use:   "compile MODULE[@REVISION]...",
		Short: "Resolve modules and their dependencies into a schema context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(root, cmd, func(s *session) error {
				sc, err := s.app.Compile(cmd.Context(), args, opts.requestOptions()...)
				if err != nil {
					return err
				}
				printContext(cmd.OutOrStdout(), sc, opts.tree)
				return nil
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.tree, "tree", false, "Print the data tree of every module")
	return cmd
}

func printContext(w io.Writer, sc *model.SchemaContext, tree bool) {
	for _, m := range sc.Modules() {
		rev := string(m.Revision)
		if rev == "" {
			rev = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d nodes\n", m.Name, rev, m.Namespace, len(m.Children))
		if len(m.Submodules) > 0 {
			fmt.Fprintf(w, "  submodules: %s\n", strings.Join(m.Submodules, ", "))
		}
		if tree {
			printNodes(w, m.Children, 1)
		}
	}
	for _, p := range sc.Pruned() {
		fmt.Fprintf(w, "pruned\t%s\n", p)
	}
}

func printNodes(w io.Writer, nodes []*model.SchemaNode, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", depth), n.Kind, n.QName.Local)
		printNodes(w, n.Children, depth+1)
	}
}

func newSourcesCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List every advertised schema source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(root, cmd, func(s *session) error {
				w := cmd.OutOrStdout()
				for _, ps := range s.app.Sources() {
					fmt.Fprintf(w, "%s\t%s\t%d\n", ps.Identifier, ps.Type, ps.Cost)
				}
				return nil
			})
		},
	}
}

func newChainCommand(root *rootOptions) *cobra.Command {
	opts := &compileOptions{}
	cmd := &cobra.Command{
		Use:   "chain FROM TO",
		Short: "Trace the shortest import chain between two modules",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(root, cmd, func(s *session) error {
				if _, err := s.app.Compile(cmd.Context(), args[:1], opts.requestOptions()...); err != nil {
					return err
				}
				chain, err := s.app.ImportChain(moduleName(args[0]), moduleName(args[1]))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(chain, " -> "))
				return nil
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func newGraphCommand(root *rootOptions) *cobra.Command {
	opts := &compileOptions{}
	var format string
	cmd := &cobra.Command{
		Use:   "graph MODULE[@REVISION]...",
		Short: "Render the import graph of the given modules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(root, cmd, func(s *session) error {
				if _, err := s.app.Compile(cmd.Context(), args, opts.requestOptions()...); err != nil {
					return err
				}
				out, err := report.Render(s.app.Graph, format)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&format, "format", "dot", "Output format: "+strings.Join(report.Formats, ", "))
	return cmd
}

func newPurgeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete persisted sources and parsed artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(root, cmd, func(s *session) error {
				res, err := s.app.Purge(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d sources, %d artifacts\n", res.Texts, res.Artifacts)
				return nil
			})
		},
	}
}

func moduleName(arg string) string {
	name, _, _ := strings.Cut(arg, "@")
	return name
}

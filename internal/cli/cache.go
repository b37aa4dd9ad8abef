package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ledgerline/inappkit/internal/store"
)

// CachedSurface summarizes one persisted surface.
type CachedSurface struct {
	Surface      string   `json:"surface"`
	Propositions []string `json:"propositions"`
}

// NewCacheCommand creates the cache inspection command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	var cachePath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the durable proposition cache",
	}
	cmd.PersistentFlags().StringVar(&cachePath, "cache", "inappkit-cache.db", "path to the proposition cache database")

	list := &cobra.Command{
		Use:           "list",
		Short:         "List cached surfaces and their proposition ids",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(rootOpts, cachePath, cmd)
		},
	}
	cmd.AddCommand(list)

	return cmd
}

func runCacheList(opts *RootOptions, cachePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := store.Open(cachePath)
	if err != nil {
		formatter.Error("E001", fmt.Sprintf("cannot open cache: %v", err), nil)
		return NewExitError(ExitCommandError, "cache not openable")
	}
	defer s.Close()

	cached, err := store.NewPropositionCache(s).Load(cmd.Context())
	if err != nil {
		formatter.Error("E002", fmt.Sprintf("cannot load cache: %v", err), nil)
		return NewExitError(ExitCommandError, "cache not loadable")
	}

	surfaces := make([]CachedSurface, 0, len(cached))
	for uri, props := range cached {
		cs := CachedSurface{Surface: uri}
		for _, p := range props {
			cs.Propositions = append(cs.Propositions, p.UniqueID)
		}
		surfaces = append(surfaces, cs)
	}
	sort.Slice(surfaces, func(i, j int) bool { return surfaces[i].Surface < surfaces[j].Surface })

	if opts.Format == "json" {
		return formatter.Success(surfaces)
	}
	if len(surfaces) == 0 {
		return formatter.Success("cache is empty")
	}
	for _, cs := range surfaces {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d propositions)\n", cs.Surface, len(cs.Propositions))
		for _, id := range cs.Propositions {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
		}
	}
	return nil
}

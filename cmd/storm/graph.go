package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/storm-platform/storm-go/internal/app"
	"github.com/storm-platform/storm-go/internal/engine"
	stormsdk "github.com/storm-platform/storm-go/sdk/go"
	"github.com/storm-platform/storm-go/sdk/go/model"
)

type cliGraph interface {
	model.GraphResource
	Title() string
	AddCompendia(refs ...model.Ref)
	RemoveCompendium(ref model.Ref) error
}

type graphAPI[T cliGraph] interface {
	Get(ctx context.Context, ref model.Ref) (T, error)
	Finalize(ctx context.Context, graph T) (T, error)
	NewVersion(ctx context.Context, graph T) (T, error)
}

// graphCmd builds the command tree shared by pipelines and workflows.
func graphCmd[T cliGraph](kind, use, short string, api func(stormsdk.ProjectScope) graphAPI[T]) *cobra.Command {
	g := &cobra.Command{Use: use, Short: short}

	load := func(ctx context.Context, c client, id string) (graphAPI[T], T, error) {
		var zero T
		p, err := c.Project()
		if err != nil {
			return nil, zero, err
		}
		svc := api(p)
		graph, err := svc.Get(ctx, model.RawID(id))
		if err != nil {
			return nil, zero, err
		}
		return svc, graph, nil
	}

	g.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a " + use + " and its compendia",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				_, graph, err := load(ctx, c, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(graph)
				}
				ids, err := model.ExtractIDs(graph.Compendia())
				if err != nil {
					return err
				}
				fmt.Printf("%s %s: %s (finished: %t)\n", use, graph.ID(), graph.Title(), graph.IsFinished())
				tw := newTable("#", "Compendium")
				for i, id := range ids {
					tw.AppendRow(table.Row{i + 1, id})
				}
				tw.Render()
				return nil
			})
		},
	})

	var add, remove []string
	diff := &cobra.Command{
		Use:   "diff <id>",
		Short: "Preview a membership change without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				_, graph, err := load(ctx, c, args[0])
				if err != nil {
					return err
				}
				for _, id := range remove {
					if err := graph.RemoveCompendium(model.RawID(id)); err != nil {
						return err
					}
				}
				graph.AddCompendia(model.Refs(add...)...)
				d, err := graph.Diff()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"added": d.Added, "removed": d.Removed})
				}
				for _, pair := range d.Pairs() {
					fmt.Printf("%s: %s\n", pair.Name, strings.Join(pair.IDs, ", "))
				}
				return nil
			})
		},
	}
	diff.Flags().StringSliceVar(&add, "add", nil, "compendia to add")
	diff.Flags().StringSliceVar(&remove, "remove", nil, "compendia to remove")
	g.AddCommand(diff)

	var syncAdd, syncRemove []string
	var resume bool
	sync := &cobra.Command{
		Use:   "sync <id>",
		Short: "Add and remove compendia, journaling every step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if resume && (len(syncAdd) > 0 || len(syncRemove) > 0) {
				return fmt.Errorf("--resume cannot be combined with --add or --remove")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, c client, e engine.Engine) error {
				projectID, err := app.ProjectID(c.Config)
				if err != nil {
					return err
				}
				var res engine.Result
				if resume {
					res, err = e.Resume(ctx, kind, projectID, args[0])
				} else {
					res, err = e.SyncMembership(ctx, kind, projectID, args[0], syncAdd, syncRemove)
				}
				if err == nil || res.Report != nil {
					printSync(res)
				}
				return err
			})
		},
	}
	sync.Flags().StringSliceVar(&syncAdd, "add", nil, "compendia to add")
	sync.Flags().StringSliceVar(&syncRemove, "remove", nil, "compendia to remove")
	sync.Flags().BoolVar(&resume, "resume", false, "retry what the last failed sync left")
	g.AddCommand(sync)

	g.AddCommand(&cobra.Command{
		Use:   "finalize <id>",
		Short: "Finish a " + use + "; its compendia can no longer change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				svc, graph, err := load(ctx, c, args[0])
				if err != nil {
					return err
				}
				if _, err := svc.Finalize(ctx, graph); err != nil {
					return err
				}
				fmt.Printf("finalized %s %s\n", use, graph.ID())
				return nil
			})
		},
	})

	g.AddCommand(&cobra.Command{
		Use:   "new-version <id>",
		Short: "Start a new version of a finished " + use,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				svc, graph, err := load(ctx, c, args[0])
				if err != nil {
					return err
				}
				next, err := svc.NewVersion(ctx, graph)
				if err != nil {
					return err
				}
				fmt.Printf("new version %s of %s %s\n", next.ID(), use, graph.ID())
				return nil
			})
		},
	})
	return g
}

func printSync(res engine.Result) {
	if res.Report == nil {
		if res.RunID == "" {
			fmt.Println("nothing to sync")
		}
		return
	}
	if viper.GetBool("json") {
		pending := make([]map[string]string, 0)
		for _, op := range res.Report.Pending() {
			pending = append(pending, map[string]string{"action": op.Action, "compendium": op.CompendiumID})
		}
		applied := make([]map[string]string, 0, len(res.Report.Applied))
		for _, op := range res.Report.Applied {
			applied = append(applied, map[string]string{"action": op.Action, "compendium": op.CompendiumID})
		}
		_ = printJSON(map[string]any{"run": res.RunID, "applied": applied, "pending": pending})
		return
	}
	tw := newTable("Action", "Compendium", "Result")
	for _, op := range res.Report.Applied {
		tw.AppendRow(table.Row{op.Action, op.CompendiumID, "applied"})
	}
	if f := res.Report.Failed; f != nil {
		tw.AppendRow(table.Row{f.Action, f.CompendiumID, errText(f.Err)})
	}
	for _, op := range res.Report.Pending() {
		if f := res.Report.Failed; f != nil && op.Action == f.Action && op.CompendiumID == f.CompendiumID {
			continue
		}
		tw.AppendRow(table.Row{op.Action, op.CompendiumID, "pending"})
	}
	tw.Render()
	fmt.Printf("run %s\n", res.RunID)
}

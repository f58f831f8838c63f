package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	stormsdk "github.com/storm-platform/storm-go/sdk/go"
	"github.com/storm-platform/storm-go/sdk/go/model"
)

type runRow interface {
	model.Resource
	ID() string
	Status() string
}

type serviceRow interface {
	model.Resource
	ID() string
	Title() string
	Description() string
}

type runnerAPI[T runRow, S serviceRow] interface {
	ListServices(ctx context.Context) ([]S, error)
	Search(ctx context.Context, params url.Values) ([]T, error)
	Get(ctx context.Context, ref model.Ref) (T, error)
	Start(ctx context.Context, ref model.Ref) (T, error)
	Cancel(ctx context.Context, ref model.Ref) (T, error)
}

// runnerCmd builds the command tree shared by deposits, jobs and executions.
func runnerCmd[T runRow, S serviceRow](use, short string, api func(*stormsdk.Storm) runnerAPI[T, S]) *cobra.Command {
	r := &cobra.Command{Use: use, Short: short}

	r.AddCommand(&cobra.Command{
		Use:   "services",
		Short: "List the services a " + use + " can target",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				items, err := api(c.SDK).ListServices(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Description")
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID(), s.Title(), s.Description()})
				}
				tw.Render()
				return nil
			})
		},
	})

	var q string
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + use + "s",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				items, err := api(c.SDK).Search(ctx, queryParams(q))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Status")
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID(), it.Status()})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVarP(&q, "query", "q", "", "search query")
	r.AddCommand(list)

	r.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a " + use,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				it, err := api(c.SDK).Get(ctx, model.RawID(args[0]))
				if err != nil {
					return err
				}
				return printJSON(it)
			})
		},
	})

	action := func(name string, run func(runnerAPI[T, S], context.Context, model.Ref) (T, error)) *cobra.Command {
		return &cobra.Command{
			Use:   name + " <id>",
			Short: fmt.Sprintf("%s a %s", name, use),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd.Context(), func(ctx context.Context, c client) error {
					it, err := run(api(c.SDK), ctx, model.RawID(args[0]))
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(it)
					}
					fmt.Printf("%s %s: %s\n", use, it.ID(), it.Status())
					return nil
				})
			},
		}
	}
	r.AddCommand(action("start", func(a runnerAPI[T, S], ctx context.Context, ref model.Ref) (T, error) {
		return a.Start(ctx, ref)
	}))
	r.AddCommand(action("cancel", func(a runnerAPI[T, S], ctx context.Context, ref model.Ref) (T, error) {
		return a.Cancel(ctx, ref)
	}))
	return r
}

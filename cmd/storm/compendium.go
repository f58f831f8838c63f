package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	stormsdk "github.com/storm-platform/storm-go/sdk/go"
	"github.com/storm-platform/storm-go/sdk/go/model"
)

func compendiumCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "compendium",
		Aliases: []string{"compendia"},
		Short:   "Search and publish research compendia",
	}
	c.AddCommand(compendiumSearchCmd())
	c.AddCommand(compendiumShowCmd())
	c.AddCommand(compendiumPublishCmd())
	c.AddCommand(compendiumNewVersionCmd())
	return c
}

func compendiumSearchCmd() *cobra.Command {
	var q string
	var user bool
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the compendia of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				p, err := c.Project()
				if err != nil {
					return err
				}
				items, err := p.Search.Search(ctx, user, queryParams(q))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Kind", "Title")
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID(), it.Kind(), titleOf(it)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&q, "query", "q", "", "search query")
	cmd.Flags().BoolVar(&user, "user", false, "only your compendia, drafts included")
	return cmd
}

func compendiumShowCmd() *cobra.Command {
	var draft bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a compendium record or draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				res, err := getCompendium(ctx, c, args[0], draft)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().BoolVar(&draft, "draft", false, "show the draft instead of the record")
	return cmd
}

func compendiumPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <id>",
		Short: "Publish a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				p, err := c.Project()
				if err != nil {
					return err
				}
				d, err := p.Drafts.Get(ctx, model.RawID(args[0]))
				if err != nil {
					return err
				}
				rec, err := p.Drafts.Publish(ctx, d)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				fmt.Printf("published %s\n", rec.ID())
				return nil
			})
		},
	}
}

func compendiumNewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new-version <id>",
		Short: "Open a new version draft of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				p, err := c.Project()
				if err != nil {
					return err
				}
				rec, err := p.Records.Get(ctx, model.RawID(args[0]))
				if err != nil {
					return err
				}
				d, err := p.Records.NewVersion(ctx, rec)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("new version draft %s\n", d.ID())
				return nil
			})
		},
	}
}

func filesCmd() *cobra.Command {
	f := &cobra.Command{Use: "files", Short: "Manage compendium files"}
	f.AddCommand(filesListCmd())
	f.AddCommand(filesDownloadCmd())
	f.AddCommand(filesUploadCmd())
	return f
}

func filesListCmd() *cobra.Command {
	var draft bool
	cmd := &cobra.Command{
		Use:   "list <id>",
		Short: "List the files of a compendium",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				res, err := getCompendium(ctx, c, args[0], draft)
				if err != nil {
					return err
				}
				files, err := c.SDK.FilesOf(ctx, res)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(files)
				}
				tw := newTable("Filename", "Size", "Status", "Checksum")
				for _, e := range files.Entries() {
					tw.AppendRow(table.Row{e.Filename(), humanize.Bytes(uint64(e.Size())), e.Status(), e.Checksum()})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&draft, "draft", false, "list the draft files")
	return cmd
}

func filesDownloadCmd() *cobra.Command {
	var (
		dir         string
		names       []string
		noValidate  bool
		concurrency int
		draft       bool
	)
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the files of a compendium",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				p, err := c.Project()
				if err != nil {
					return err
				}
				res, err := getCompendium(ctx, c, args[0], draft)
				if err != nil {
					return err
				}
				opts := stormsdk.DownloadOptions{
					Files:            names,
					ValidateChecksum: c.Config.Downloads.ValidateChecksum && !noValidate,
					Concurrency:      c.Config.Downloads.Concurrency,
				}
				if cmd.Flags().Changed("concurrency") {
					opts.Concurrency = concurrency
				}
				results, dlErr := p.Files.DownloadFiles(ctx, res, dir, opts)
				if viper.GetBool("json") {
					out := make([]map[string]any, len(results))
					for i, r := range results {
						out[i] = map[string]any{"filename": r.Filename, "path": r.Path, "error": errText(r.Err)}
					}
					if err := printJSON(out); err != nil {
						return err
					}
					return dlErr
				}
				tw := newTable("Filename", "Path", "Result")
				for _, r := range results {
					result := "ok"
					if r.Err != nil {
						result = r.Err.Error()
					}
					tw.AppendRow(table.Row{r.Filename, r.Path, result})
				}
				tw.Render()
				return dlErr
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "output directory")
	cmd.Flags().StringSliceVarP(&names, "file", "f", nil, "only these filenames")
	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "skip checksum validation")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "simultaneous downloads (overrides storm.yml)")
	cmd.Flags().BoolVar(&draft, "draft", false, "download the draft files")
	return cmd
}

func filesUploadCmd() *cobra.Command {
	var define, noCommit bool
	cmd := &cobra.Command{
		Use:   "upload <id> <path|name=path>...",
		Short: "Upload files to a draft",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := uploadMapping(args[1:])
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, c client) error {
				p, err := c.Project()
				if err != nil {
					return err
				}
				d, err := p.Drafts.Get(ctx, model.RawID(args[0]))
				if err != nil {
					return err
				}
				d, err = p.Files.UploadFiles(ctx, d, files, stormsdk.UploadOptions{Define: define, Commit: !noCommit})
				var undefined *stormsdk.UndefinedFilesError
				if errors.As(err, &undefined) {
					return fmt.Errorf("%w; pass --define to declare them", err)
				}
				if err != nil {
					return err
				}
				fmt.Printf("uploaded %d file(s) to %s\n", len(files), d.ID())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&define, "define", false, "declare the files before uploading")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "leave the uploads uncommitted")
	return cmd
}

// uploadMapping turns "name=path" or "path" arguments into filename to
// path pairs. A bare path is stored under its base name.
func uploadMapping(args []string) (map[string]string, error) {
	files := make(map[string]string, len(args))
	for _, a := range args {
		name, path, ok := strings.Cut(a, "=")
		if !ok {
			name, path = filepath.Base(a), a
		}
		if name == "" || path == "" {
			return nil, fmt.Errorf("invalid file argument %q", a)
		}
		if _, dup := files[name]; dup {
			return nil, fmt.Errorf("file %q given twice", name)
		}
		files[name] = path
	}
	return files, nil
}

func getCompendium(ctx context.Context, c client, id string, draft bool) (model.CompendiumResource, error) {
	p, err := c.Project()
	if err != nil {
		return nil, err
	}
	if draft {
		d, err := p.Drafts.Get(ctx, model.RawID(id))
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	rec, err := p.Records.Get(ctx, model.RawID(id))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func titleOf(r model.CompendiumResource) string {
	if t, ok := r.(interface{ Title() string }); ok {
		return t.Title()
	}
	return ""
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

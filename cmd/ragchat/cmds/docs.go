package cmds

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/go-go-golems/ragchat/pkg/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewDocsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage the documents of the RAG corpus",
	}
	cmd.AddCommand(
		newDocsListCommand(),
		newDocsUploadCommand(),
		newDocsRemoveCommand(),
		newDocsURLCommand(),
		newDocsWatchCommand(),
	)
	return cmd
}

func printDocs(w io.Writer, app *App) {
	out, err := app.Renderer.Documents(app.Docs.Available(), app.Docs.Records(), app.Docs.Uploading(), app.Client.DocumentURL)
	app.Print(w, out, err)
}

func newDocsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the files of the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			_, err = app.Docs.List(cmd.Context())
			printDocs(cmd.OutOrStdout(), app)
			return err
		},
	}
}

// lockedWriter serializes result lines of concurrent operations.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = fmt.Fprintf(l.w, format, args...)
}

func newDocsUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file...>",
		Short: "Upload files to the corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			eg := errgroup.Group{}
			for _, path := range args {
				path := path
				eg.Go(func() error {
					if err := app.Docs.UploadFile(cmd.Context(), path); err != nil {
						out.Printf("✗ %s: %s\n", path, chat.MessageOf(err))
						return err
					}
					out.Printf("✓ %s\n", path)
					return nil
				})
			}
			return eg.Wait()
		},
	}
}

func newDocsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <file...>",
		Aliases: []string{"delete"},
		Short:   "Delete files from the corpus",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			question := fmt.Sprintf("Delete %s?", args[0])
			if len(args) > 1 {
				question = fmt.Sprintf("Delete %d files?", len(args))
			}
			ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), question, app.Yes)
			if err != nil || !ok {
				return err
			}

			// each delete is tracked on its own; one failing leaves the others alone
			out := &lockedWriter{w: cmd.OutOrStdout()}
			eg := errgroup.Group{}
			for _, name := range args {
				name := name
				eg.Go(func() error {
					if err := app.Docs.Delete(cmd.Context(), name); err != nil {
						out.Printf("✗ %s: %s\n", name, chat.MessageOf(err))
						return err
					}
					out.Printf("✓ deleted %s\n", name)
					return nil
				})
			}
			return eg.Wait()
		},
	}
}

func newDocsURLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "url <file>",
		Short: "Print the download link of a corpus file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			_, err = fmt.Fprintln(cmd.OutOrStdout(), app.Client.DocumentURL(args[0]))
			return err
		},
	}
}

func newDocsWatchCommand() *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload files added to a directory until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			return runWatch(cmd.Context(), app, args[0], initial, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", false, "Also upload the matching files already in the directory")

	return cmd
}

// runWatch prints upload progress for dir until ctx is done. The bus blocks publishers
// until the subscriber acks, so the event handler runs before anything is published.
func runWatch(ctx context.Context, app *App, dir string, initial bool, w io.Writer) error {
	out := &lockedWriter{w: w}

	ch, err := app.Bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	watcher, err := watch.New(app.Docs, dir,
		watch.WithExtensions(app.Settings.WatchExtensions),
		watch.WithInitialScan(initial),
		watch.WithPublisher(app.Bus),
	)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return events.Handle(ctx, ch, func(e events.Event) {
			switch e.Type {
			case events.EventDocUploading:
				out.Printf("↑ %s\n", e.Filename)
			case events.EventDocUploaded:
				out.Printf("✓ %s\n", e.Filename)
			case events.EventDocFailed:
				out.Printf("✗ %s: %s\n", e.Filename, e.Message)
			}
		})
	})

	if _, err := app.Docs.List(ctx); err != nil {
		out.Printf("%s, uploads will still be attempted\n", chat.MessageOf(err))
	}

	eg.Go(func() error {
		return watcher.Run(ctx)
	})
	return eg.Wait()
}

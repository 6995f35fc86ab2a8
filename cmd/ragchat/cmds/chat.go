package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const replHelp = `Commands:
  /rag [on|off]    toggle answering from the document corpus
  /prompt [text]   show or replace the system prompt (empty text restores the default)
  /reset           clear the conversation
  /history         print the conversation
  /window          show what the next turn would send
  /docs            list the corpus
  /help            show this help
  /quit            leave
`

func NewChatCommand() *cobra.Command {
	var rag bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively, one turn per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if !cmd.Flags().Changed("rag") {
				rag = app.Settings.UseRAG
			}

			r := &repl{
				app:    app,
				rag:    rag,
				in:     bufio.NewReader(cmd.InOrStdin()),
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
			}
			return r.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&rag, "rag", false, "Start with answers from the document corpus")

	return cmd
}

// repl reads turns and confirmation answers from the same buffered reader so neither
// reads ahead of the other.
type repl struct {
	app    *App
	rag    bool
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

// Run reads lines until EOF, /quit or ctx is cancelled. Failed turns are reported and
// the loop continues.
func (r *repl) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := r.app.Bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	eg := errgroup.Group{}
	eg.Go(func() error {
		return events.Handle(ctx, ch, r.onEvent)
	})

	eg.Go(func() error {
		defer cancel()
		r.greet()

		for {
			_, _ = fmt.Fprint(r.out, "> ")
			line, readErr := r.in.ReadString('\n')
			if readErr != nil && !errors.Is(readErr, io.EOF) {
				return readErr
			}
			quit, err := r.handleLine(ctx, line)
			if err != nil {
				return err
			}
			if quit || ctx.Err() != nil {
				return nil
			}
			if readErr != nil {
				_, _ = fmt.Fprintln(r.out)
				return nil
			}
		}
	})

	return eg.Wait()
}

func (r *repl) greet() {
	if history := r.app.Store.Visible(); len(history) > 0 {
		out, err := r.app.Renderer.History(history)
		r.app.Print(r.out, out, err)
	}
	_, _ = fmt.Fprintf(r.out, "RAG is %s. Type /help for commands.\n", onOff(r.rag))
}

func (r *repl) onEvent(e events.Event) {
	switch e.Type {
	case events.EventTurnStarted:
		_, _ = fmt.Fprintln(r.errOut, "💭 Thinking...")
	case events.EventSessionReset:
		_, _ = fmt.Fprintln(r.errOut, "History cleared.")
	case events.EventPromptChanged:
		_, _ = fmt.Fprintln(r.errOut, "System prompt updated.")
	}
}

func (r *repl) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		return r.command(ctx, line)
	}

	ex, err := r.app.Controller.SendTurn(ctx, line, r.rag)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "⚠️  %s\n", chat.MessageOf(err))
		return false, nil
	}
	if ex == nil {
		return false, nil
	}

	elapsed := ex.ElapsedSeconds
	out, err := r.app.Renderer.Answer(ex.Response.Content, ex.Sources, &elapsed, r.app.Client.SourceURL)
	r.app.Print(r.out, out, err)
	return false, nil
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		_, _ = fmt.Fprint(r.out, replHelp)

	case "/rag":
		switch strings.ToLower(arg) {
		case "on":
			r.rag = true
		case "off":
			r.rag = false
		case "":
			r.rag = !r.rag
		default:
			_, _ = fmt.Fprintln(r.errOut, "usage: /rag [on|off]")
			return false, nil
		}
		_, _ = fmt.Fprintf(r.out, "RAG is %s.\n", onOff(r.rag))

	case "/prompt":
		if arg == "" {
			_, _ = fmt.Fprintln(r.out, r.app.Store.SystemPrompt())
			return false, nil
		}
		if err := r.app.Store.SetSystemPrompt(arg); err != nil {
			_, _ = fmt.Fprintf(r.errOut, "⚠️  %s\n", err)
		}

	case "/reset":
		ok, err := confirm(r.in, r.out, "Clear the chat history?", r.app.Yes)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		if err := r.app.Store.ResetHistory(); err != nil {
			_, _ = fmt.Fprintf(r.errOut, "⚠️  %s\n", err)
		}

	case "/history":
		out, err := r.app.Renderer.History(r.app.Store.Visible())
		r.app.Print(r.out, out, err)

	case "/window":
		if err := printWindow(r.out, r.app.Controller.PreviewWindow("", r.rag), r.app.Settings.Model, r.rag); err != nil {
			_, _ = fmt.Fprintf(r.errOut, "⚠️  %s\n", err)
		}

	case "/docs":
		if _, err := r.app.Docs.List(ctx); err != nil {
			_, _ = fmt.Fprintf(r.errOut, "⚠️  %s\n", chat.MessageOf(err))
		}
		printDocs(r.out, r.app)

	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command %s, try /help\n", name)
	}
	return false, nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

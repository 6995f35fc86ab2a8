package cmds

import (
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/go-go-golems/ragchat/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage the conversation history",
	}
	cmd.AddCommand(
		newHistoryShowCommand(),
		newHistoryResetCommand(),
		newHistoryExportCommand(),
		newHistoryImportCommand(),
		newHistoryWindowCommand(),
	)
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			msgs := app.Store.Visible()
			if len(msgs) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No messages yet.")
				return err
			}
			out, err := app.Renderer.History(msgs)
			app.Print(cmd.OutOrStdout(), out, err)
			return nil
		},
	}
}

func newHistoryResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the conversation, keeping the system prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Clear the chat history?", app.Yes)
			if err != nil || !ok {
				return err
			}
			return app.Store.ResetHistory()
		},
	}
}

func newHistoryExportCommand() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the stored history (system message first) as json or yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return errors.Wrapf(err, "could not create %s", output)
				}
				defer func() {
					_ = f.Close()
				}()
				w = f
			}
			return app.Store.Export(w, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", session.FormatJSON, "Output format (json, yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func newHistoryImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the conversation with one from a .json, .yaml or .yml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if len(app.Store.Visible()) > 0 {
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Replace the current conversation?", app.Yes)
				if err != nil || !ok {
					return err
				}
			}
			if err := app.Store.ImportFile(args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d messages.\n", len(app.Store.Visible()))
			return err
		},
	}
}

func newHistoryWindowCommand() *cobra.Command {
	var rag bool
	var next string

	cmd := &cobra.Command{
		Use:   "window",
		Short: "Show the messages the next turn would send and their token count",
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
			window := app.Controller.PreviewWindow(next, rag)
			return printWindow(cmd.OutOrStdout(), window, app.Settings.Model, rag)
		},
	}
	cmd.Flags().BoolVar(&rag, "rag", false, "Preview a RAG turn")
	cmd.Flags().StringVar(&next, "next", "", "Content of the user message to preview")

	return cmd
}

func printWindow(w io.Writer, window []chat.Message, model string, rag bool) error {
	counter, err := tokens.NewCounter(model, "")
	if err != nil {
		return err
	}
	for _, m := range window {
		if _, err := fmt.Fprintf(w, "[%s] %s\n", m.Role, m.Content); err != nil {
			return err
		}
	}
	n, err := counter.CountMessages(window)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%d messages (window of %d), ~%d tokens\n", len(window), chat.WindowSize(rag), n)
	return err
}

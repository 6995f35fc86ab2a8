package cmds

import (
	"strings"

	"github.com/spf13/cobra"
)

func NewAskCommand() *cobra.Command {
	var rag bool

	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Send a single turn and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if !cmd.Flags().Changed("rag") {
				rag = app.Settings.UseRAG
			}

			ex, err := app.Controller.SendTurn(cmd.Context(), strings.Join(args, " "), rag)
			if err != nil {
				return err
			}
			if ex == nil {
				return nil
			}

			elapsed := ex.ElapsedSeconds
			out, err := app.Renderer.Answer(ex.Response.Content, ex.Sources, &elapsed, app.Client.SourceURL)
			app.Print(cmd.OutOrStdout(), out, err)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rag, "rag", false, "Answer from the document corpus")

	return cmd
}

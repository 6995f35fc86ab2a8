package cmds

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewPromptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Show or change the system prompt",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the current system prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			_, err = fmt.Fprintln(cmd.OutOrStdout(), app.Store.SystemPrompt())
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [text...]",
		Short: "Replace the system prompt (no text restores the default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.SetSystemPrompt(strings.Join(args, " ")); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), app.Store.SystemPrompt())
			return err
		},
	})

	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPromptsCommand(ctx *commandContext) *cobra.Command {
	promptsCmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect the prompt catalog",
	}

	promptsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.loadPrompts()
			if err != nil {
				return err
			}
			rows := make([][]string, 0)
			for _, prompt := range catalog.All() {
				model := prompt.Model
				if model == "" {
					model = "(default)"
				}
				rows = append(rows, []string{prompt.ID, prompt.Name, model, truncate(prompt.Text, 60)})
			}
			out := renderTable(
				[]string{"ID", "Name", "Model", "Text"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	})

	promptsCmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print the full text of one prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.loadPrompts()
			if err != nil {
				return err
			}
			prompt, ok := catalog.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown prompt id %q", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n\n%s\n", prompt.Name, prompt.ID, prompt.Text)
			return nil
		},
	})

	return promptsCmd
}

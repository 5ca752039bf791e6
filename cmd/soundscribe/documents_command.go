package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"soundscribe/internal/docstore"
)

func newDocumentsCommand(ctx *commandContext) *cobra.Command {
	documentsCmd := &cobra.Command{
		Use:   "documents",
		Short: "Inspect generated documents",
	}

	documentsCmd.AddCommand(newDocumentsListCommand(ctx))
	documentsCmd.AddCommand(newDocumentsShowCommand(ctx))

	return documentsCmd
}

func newDocumentsListCommand(ctx *commandContext) *cobra.Command {
	var batchID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generated documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := docstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var docs []*docstore.Document
			if batchID != "" {
				docs, err = store.ListByBatch(cmd.Context(), batchID)
			} else {
				docs, err = store.ListRecent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents found")
				return nil
			}

			rows := make([][]string, 0, len(docs))
			for _, doc := range docs {
				rows = append(rows, []string{
					strconv.FormatInt(doc.ID, 10),
					doc.FileName,
					doc.PromptID,
					doc.MediaKind,
					doc.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			out := renderTable(
				[]string{"ID", "File", "Prompt", "Kind", "Created"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Only show documents from one batch")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of documents to list")
	return cmd
}

func newDocumentsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one generated document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := docstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			doc, err := store.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("document %d not found", id)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:    %s\n", doc.FileName)
			fmt.Fprintf(out, "Prompt:  %s (%s)\n", doc.PromptName, doc.PromptID)
			fmt.Fprintf(out, "Batch:   %s\n", doc.BatchID)
			fmt.Fprintf(out, "Created: %s\n\n", doc.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintln(out, doc.Body)
			return nil
		},
	}
}

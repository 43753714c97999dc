package commands

import (
	"context"
	"fmt"

	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/spf13/cobra"
)

// knowledgeBase is the part of the knowledge base service the CLI needs
type knowledgeBase interface {
	ListFiles(ctx context.Context) ([]string, error)
	Reset(ctx context.Context) (int64, error)
}

// KnowledgeBaseCommands returns the retrieval store commands
func KnowledgeBaseCommands(kb knowledgeBase, logger *observability.Logger) *cobra.Command {
	kbCmd := &cobra.Command{
		Use:   "kb",
		Short: "Knowledge base commands",
		Long: `Knowledge base commands.

Available commands:
  files - List the documents that have indexed chunks
  reset - Delete every indexed chunk`,
	}

	kbCmd.AddCommand(kbFilesCmd(kb, logger))
	kbCmd.AddCommand(kbResetCmd(kb, logger))
	return kbCmd
}

func kbFilesCmd(kb knowledgeBase, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List indexed documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			files, err := kb.ListFiles(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to list knowledge base files", err, nil)
				return contextutils.WrapError(err, "failed to list knowledge base files")
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "Knowledge base is empty")
				return nil
			}
			for _, f := range files {
				fmt.Fprintln(out, f)
			}
			return nil
		},
	}
}

func kbResetCmd(kb knowledgeBase, logger *observability.Logger) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every indexed chunk",
		Long: `Delete every chunk from the knowledge base. Projects, topics and the
question bank are untouched. Requires --yes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if !yes {
				return contextutils.ErrorWithContextf("refusing to reset the knowledge base without --yes")
			}

			deleted, err := kb.Reset(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to reset knowledge base", err, nil)
				return contextutils.WrapError(err, "failed to reset knowledge base")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d chunks\n", deleted)
			logger.Info(ctx, "Knowledge base reset", map[string]interface{}{"deleted_chunks": deleted})
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

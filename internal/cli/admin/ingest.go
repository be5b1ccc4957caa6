package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/service"
)

func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest content into a knowledge source",
		Long:  "Ingest notes or files into a knowledge source through the encryption pipeline",
	}

	cmd.AddCommand(IngestNoteCmd())
	cmd.AddCommand(IngestFileCmd())

	return cmd
}

func IngestNoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note <source-name> <content>",
		Short: "Ingest a manual note",
		Args:  cobra.ExactArgs(2),
		RunE:  runIngestNote,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().String("tenant", "", "Tenant ID (empty for the shared scope)")
	cmd.Flags().String("actor", "cli", "Actor ID recorded in the audit log")
	cmd.Flags().String("document", "", "Document ID (defaults to a generated one)")
	cmd.Flags().String("retention", "", "Retention policy override")

	return cmd
}

func runIngestNote(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	sourceName, content := args[0], args[1]
	tenantID, _ := cmd.Flags().GetString("tenant")
	actorID, _ := cmd.Flags().GetString("actor")
	documentID, _ := cmd.Flags().GetString("document")
	retention, _ := cmd.Flags().GetString("retention")
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := buildIngestion(ctx, cfg, pool)
	if err != nil {
		return err
	}

	summary, err := svc.IngestNote(ctx, service.NoteInput{
		TenantID:        tenantID,
		SourceName:      sourceName,
		ActorID:         actorID,
		Content:         content,
		DocumentID:      documentID,
		RetentionPolicy: domain.RetentionPolicy(retention),
	})
	if err != nil {
		return fmt.Errorf("failed to ingest note: %w", err)
	}

	printSummary(outputFormat, summary)
	return nil
}

func IngestFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file <source-name> <path>",
		Short: "Ingest a file",
		Long:  "Read a local file, extract its text, and ingest it",
		Args:  cobra.ExactArgs(2),
		RunE:  runIngestFile,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().String("tenant", "", "Tenant ID (empty for the shared scope)")
	cmd.Flags().String("actor", "cli", "Actor ID recorded in the audit log")
	cmd.Flags().String("media-type", "", "Media type override (defaults to the extension's type)")
	cmd.Flags().String("retention", "", "Retention policy override")

	return cmd
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	sourceName, path := args[0], args[1]
	tenantID, _ := cmd.Flags().GetString("tenant")
	actorID, _ := cmd.Flags().GetString("actor")
	mediaType, _ := cmd.Flags().GetString("media-type")
	retention, _ := cmd.Flags().GetString("retention")
	outputFormat, _ := cmd.Flags().GetString("output")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(path))
		if mediaType == "" {
			mediaType = "text/plain"
		}
	}

	cfg, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := buildIngestion(ctx, cfg, pool)
	if err != nil {
		return err
	}

	summary, err := svc.IngestFile(ctx, service.FileInput{
		TenantID:        tenantID,
		SourceName:      sourceName,
		ActorID:         actorID,
		Filename:        filepath.Base(path),
		Data:            data,
		MediaType:       mediaType,
		RetentionPolicy: domain.RetentionPolicy(retention),
	})
	if err != nil {
		return fmt.Errorf("failed to ingest file: %w", err)
	}

	printSummary(outputFormat, summary)
	return nil
}

func printSummary(outputFormat string, summary *domain.IngestionSummary) {
	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(jsonBytes))
		return
	}
	fmt.Printf("Ingested %d chunks (%d duplicates skipped, %d tokens)\n",
		summary.ChunkCount-summary.SkippedChunks, summary.SkippedChunks, summary.TotalTokens)
}

package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/tessera-ai/tessera/internal/config"
	"github.com/tessera-ai/tessera/internal/database"
	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/repository"
	"github.com/tessera-ai/tessera/internal/service"
)

func SourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage knowledge sources",
		Long:  "Create and list knowledge sources",
	}

	cmd.AddCommand(SourceCreateCmd())
	cmd.AddCommand(SourceListCmd())

	return cmd
}

func SourceCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a knowledge source",
		Long:  "Create a knowledge source in pending state for the given tenant",
		Args:  cobra.ExactArgs(1),
		RunE:  runSourceCreate,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().String("tenant", "", "Tenant ID (empty for the shared scope)")
	cmd.Flags().String("type", string(domain.SourceTypeNote), "Source type (note, file, connector)")
	cmd.Flags().String("provider", "manual", "Provider name")
	cmd.Flags().String("storage", string(domain.StorageManaged), "Storage strategy (managed or external)")
	cmd.Flags().String("retention", string(domain.RetentionIndefinite), "Retention policy (indefinite, rolling-90-day, manual)")

	return cmd
}

func runSourceCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")
	tenantID, _ := cmd.Flags().GetString("tenant")
	sourceType, _ := cmd.Flags().GetString("type")
	provider, _ := cmd.Flags().GetString("provider")
	storageStrategy, _ := cmd.Flags().GetString("storage")
	retention, _ := cmd.Flags().GetString("retention")

	cfg, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := buildIngestion(ctx, cfg, pool)
	if err != nil {
		return err
	}

	source, err := svc.EnsureSource(ctx, service.EnsureSourceInput{
		TenantID:        tenantID,
		Name:            name,
		Type:            domain.SourceType(sourceType),
		Provider:        provider,
		StorageStrategy: domain.StorageStrategy(storageStrategy),
		RetentionPolicy: domain.RetentionPolicy(retention),
	})
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":               source.ID,
			"tenant_id":        source.TenantID,
			"name":             source.Name,
			"type":             source.Type,
			"status":           source.Status,
			"storage_strategy": source.StorageStrategy,
			"retention_policy": source.RetentionPolicy,
			"created_at":       source.CreatedAt,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Source created: %s (%s) [%s]\n", source.Name, source.ID, source.Status)
	}

	return nil
}

func SourceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge sources",
		Long:  "List knowledge sources visible to a tenant, including shared sources",
		RunE:  runSourceList,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().String("tenant", "", "Tenant ID (empty for the shared scope)")

	return cmd
}

func runSourceList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")
	tenantID, _ := cmd.Flags().GetString("tenant")

	_, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	sourceRepo := repository.NewSourceRepository(pool)
	sources, err := sourceRepo.List(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(sources))
		for i, s := range sources {
			data[i] = map[string]interface{}{
				"id":               s.ID,
				"tenant_id":        s.TenantID,
				"name":             s.Name,
				"type":             s.Type,
				"status":           s.Status,
				"storage_strategy": s.StorageStrategy,
				"retention_policy": s.RetentionPolicy,
				"last_synced_at":   s.LastSyncedAt,
				"last_error":       s.LastError,
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(sources) == 0 {
			fmt.Println("No sources found")
			return nil
		}
		fmt.Println("Sources:")
		for _, s := range sources {
			scope := s.TenantID
			if scope == "" {
				scope = "shared"
			}
			fmt.Printf("  %s: %s [%s] (%s, %s)\n", s.ID, s.Name, s.Status, scope, s.StorageStrategy)
		}
	}

	return nil
}

func getDBPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return nil, nil, err
	}

	return cfg, pool, nil
}

package admin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func PurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Purge expired chunks",
		Long:  "Delete all chunks whose retention window has elapsed",
		RunE:  runPurge,
	}
}

func runPurge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := buildIngestion(ctx, cfg, pool)
	if err != nil {
		return err
	}

	purged, err := svc.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge expired chunks: %w", err)
	}

	fmt.Printf("Purged %d expired chunks\n", purged)
	return nil
}

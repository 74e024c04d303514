// Command catalog-sync copies the Shopify catalog into the local product store once.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/catalog"
	"github.com/avvvet/naina-chat/internal/config"
)

func newRootCmd() *cobra.Command {
	var (
		dsn     string
		shop    string
		token   string
		version string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:           "catalog-sync",
		Short:         "Sync Shopify products into the chat catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Read()
			if dsn == "" {
				dsn = cfg.CatalogDSN
			}
			if shop == "" {
				shop = cfg.Shopify.ShopDomain
			}
			if token == "" {
				token = cfg.Shopify.AccessToken
			}
			if version == "" {
				version = cfg.Shopify.APIVersion
			}
			if shop == "" || token == "" {
				return fmt.Errorf("SHOPIFY_STORE and SHOPIFY_ACCESS_TOKEN are required")
			}

			logger, err := cfg.NewLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := catalog.NewShopifyClient(catalog.ShopifyConfig{
				ShopDomain:  shop,
				AccessToken: token,
				APIVersion:  version,
			}, logger)

			if dryRun {
				return preview(ctx, cmd, client)
			}

			store, err := catalog.NewSQLiteStore(dsn)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := catalog.NewSyncer(client, store, nil, client.ShopDomain(), logger, nil).Run(ctx)
			if err != nil {
				return err
			}
			logger.Info("✅ catalog sync complete",
				zap.Int("new", result.New),
				zap.Int("updated", result.Updated),
				zap.Int("total", result.Total),
			)
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "Catalog database DSN (default $CATALOG_DSN)")
	cmd.Flags().StringVar(&shop, "shop", "", "Shop domain (default $SHOPIFY_STORE)")
	cmd.Flags().StringVar(&token, "token", "", "Admin API access token (default $SHOPIFY_ACCESS_TOKEN)")
	cmd.Flags().StringVar(&version, "api-version", "", "Admin API version (default $SHOPIFY_API_VERSION)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and print products without writing them")
	return cmd
}

// preview prints the transformed products instead of storing them
func preview(ctx context.Context, cmd *cobra.Command, client *catalog.ShopifyClient) error {
	raw, err := client.FetchProducts(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	for _, sp := range raw {
		if err := enc.Encode(catalog.TransformProduct(sp, client.ShopDomain())); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

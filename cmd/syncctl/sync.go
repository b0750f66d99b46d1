package main

import (
	"encoding/json"
	"fmt"
	"io"

	"commerce-sync/config"
	"commerce-sync/internal/models"
	"commerce-sync/internal/scheduler"
	"commerce-sync/internal/service"
	"commerce-sync/internal/shopify"
	"commerce-sync/internal/store"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var tenantID, entity string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync one tenant now",
		Long: `Fetch the tenant's storefront data and upsert it into the database.
--entity selects customers, orders, products or all (customers, then orders, then products).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateEntity(entity); err != nil {
				return err
			}

			cfg := config.Load()
			db, err := store.NewStore(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := newSyncService(cfg, db)
			tenant, err := svc.ActiveTenant(cmd.Context(), tenantID)
			if err != nil {
				return err
			}

			results, syncErr := svc.SyncEntity(cmd.Context(), tenant, entity)
			if err := printJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			return syncErr
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID to sync")
	cmd.Flags().StringVar(&entity, "entity", "all", "Entity to sync: customers, orders, products or all")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newTickCmd() *cobra.Command {
	var trigger string

	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler tick across all active tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if trigger != scheduler.TriggerQuick && trigger != scheduler.TriggerFull {
				return fmt.Errorf("invalid trigger %q: must be quick or full", trigger)
			}

			cfg := config.Load()
			db, err := store.NewStore(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			sched := scheduler.New(newSyncService(cfg, db), nil, cfg.Sync.SchedulerConfig())

			var report scheduler.TickReport
			if trigger == scheduler.TriggerFull {
				report = sched.RunFullTick(cmd.Context())
			} else {
				report = sched.RunQuickTick(cmd.Context())
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVar(&trigger, "trigger", scheduler.TriggerQuick, "Tick to run: quick or full")
	return cmd
}

func newTestConnectionCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Check a tenant's storefront credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			db, err := store.NewStore(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := newSyncService(cfg, db)
			tenant, err := svc.ActiveTenant(cmd.Context(), tenantID)
			if err != nil {
				return err
			}

			shop, err := svc.TestConnection(cmd.Context(), tenant)
			if err != nil {
				return fmt.Errorf("storefront connection failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), shop)
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID to check")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newSyncService(cfg *config.Config, db *store.Store) *service.SyncService {
	fetchers := service.ShopifyFetchers(shopify.NewFactory(cfg.Shopify.ClientConfig()))
	return service.NewSyncService(db, fetchers, nil)
}

func validateEntity(entity string) error {
	if entity == "" || entity == "all" || service.ValidEntity(entity) {
		return nil
	}
	return fmt.Errorf("%w: %s (want %s, %s, %s or all)", service.ErrUnknownEntity, entity,
		models.EntityCustomers, models.EntityOrders, models.EntityProducts)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

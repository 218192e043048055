package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rasidhq/rasid/internal/billing"
	"github.com/rasidhq/rasid/internal/config"
	"github.com/rasidhq/rasid/internal/reminder"
	"github.com/rasidhq/rasid/internal/storage"
	goutils "github.com/jkaninda/go-utils"
)

var seedConfigPath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with sample resellers and invoices",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedConfigPath, "config", config.DefaultConfigPath(), "path to config file")
}

func runSeed(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.Load(goutils.Env("RASID_CONFIG", seedConfigPath))
	if err != nil {
		return err
	}

	store, err := storage.Open(storage.Config{
		Driver: cfg.Storage.StorageDriver(),
		Path:   cfg.DatabasePath(),
		DSN:    storageDSN(cfg),
	}, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	ctx := context.Background()
	svc := billing.NewService(store.Resellers(), store.Invoices(), store.Payments(), logger)

	resellers := []struct {
		name  string
		phone string
	}{
		{"Karim", "+989121234567"},
		{"Sara", "+989351112233"},
		{"Omid", "+989901234000"},
	}
	for _, r := range resellers {
		if _, err := svc.CreateReseller(ctx, r.name, r.phone, 0, "seeded"); err != nil {
			if errors.Is(err, billing.ErrDuplicateName) {
				fmt.Printf("reseller %q already exists, skipping\n", r.name)
				continue
			}
			return err
		}
		fmt.Printf("created reseller %q\n", r.name)
	}

	now := time.Now().UTC()
	invoices := []struct {
		reseller string
		amount   string
		due      time.Time
	}{
		{"Karim", "1250000", now.Add(7 * 24 * time.Hour)},
		{"Karim", "900000", now.Add(-3 * 24 * time.Hour)}, // Already overdue.
		{"Sara", "2400000", now.Add(14 * 24 * time.Hour)},
	}
	for _, in := range invoices {
		inv, err := svc.IssueInvoice(ctx, in.reseller, decimal.RequireFromString(in.amount), in.due)
		if err != nil {
			return err
		}
		fmt.Printf("issued invoice #%d for %q (%s)\n", inv.Number, in.reseller, in.amount)
	}

	cronSpec := "0 9 * * 1" // Monday mornings.
	if err := reminder.ValidateCronSpec(cronSpec); err != nil {
		return err
	}
	tpl := &billing.ReminderTemplate{
		Name:     "weekly overdue nudge",
		CronSpec: cronSpec,
		Body:     "{reseller} عزیز، فاکتور #{invoice} به مبلغ {amount} سررسید شده است.\nDear {reseller}, invoice #{invoice} for {amount} is overdue.",
		Enabled:  true,
	}
	if err := store.ReminderTemplates().Create(ctx, tpl); err != nil {
		return fmt.Errorf("creating reminder template: %w", err)
	}
	fmt.Printf("created reminder template %q (%s)\n", tpl.Name, tpl.CronSpec)

	return nil
}

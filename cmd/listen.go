// Copyright (C) 2025 The image-variant-worker Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/cloudstorage"
	"github.com/sigysmund/function-image-upload-resize/internal/healthcheck"
	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
	"github.com/sigysmund/function-image-upload-resize/internal/pubsub"
)

func init() {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "receive object-created notifications and convert images",
	}
	rootCmd.AddCommand(cmd)

	for _, l := range []struct {
		backend pubsub.BackendType
		short   string
	}{
		{pubsub.BackendTypeHTTP, "accept Event Grid, S3 and GCS notifications as webhooks"},
		{pubsub.BackendTypeSQS, "poll an SQS queue for S3 event notifications"},
		{pubsub.BackendTypeGCPPubSub, "receive Cloud Storage notifications from a Pub/Sub subscription"},
		{pubsub.BackendTypeAzure, "poll an Azure Storage queue for Event Grid notifications"},
	} {
		backend := l.backend
		cmd.AddCommand(&cobra.Command{
			Use:   string(backend),
			Short: l.short,
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return runListener(backend)
			},
		})
	}
}

func runListener(backendType pubsub.BackendType) error {
	servicename := "image-variant-worker-" + string(backendType)
	addlAttrs := attribute.NewSet(
		attribute.String("action", "listen-"+string(backendType)),
	)
	doneCtx, doneFx, err := setupTelemetry(servicename, &addlAttrs)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := doneFx(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	health := healthcheck.NewServer(healthcheck.GetConfigFromEnv())
	health.SetReadyCondition("storage", false)
	health.SetReadyCondition("transport", false)
	go func() {
		if err := health.Start(doneCtx); err != nil {
			slog.Error("Health check server stopped with error", slog.Any("error", err))
		}
	}()

	converter, err := newConverter(doneCtx, cfg)
	if err != nil {
		health.SetStatus(healthcheck.StatusUnhealthy)
		return err
	}
	health.SetReadyCondition("storage", true)

	dedup := pubsub.NewDeduplicatorFromConfig(cfg.PubSub.Dedup)
	defer dedup.Close()
	handler := pubsub.NewHandler(converter, dedup, cfg.Conversion.Timeout)

	backend, err := pubsub.NewBackend(doneCtx, backendType, cfg.PubSub, handler)
	if err != nil {
		health.SetStatus(healthcheck.StatusUnhealthy)
		return fmt.Errorf("failed to create %s backend: %w", backendType, err)
	}
	health.SetReadyCondition("transport", true)
	health.SetStatus(healthcheck.StatusHealthy)

	slog.Info("Listening for notifications",
		slog.String("backend", backend.GetName()),
		slog.String("storage", cfg.Storage.Provider),
		slog.Int("variants", len(cfg.Variants.Definitions)))

	if err := backend.Run(doneCtx); err != nil {
		health.SetStatus(healthcheck.StatusUnhealthy)
		return fmt.Errorf("%s backend: %w", backendType, err)
	}
	return nil
}

// newConverter wires storage into an orchestrator. The same client serves
// source reads and variant writes.
func newConverter(ctx context.Context, cfg *config.Config) (*imageconv.Orchestrator, error) {
	store, err := cloudstorage.NewClient(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage client: %w", cfg.Storage.Provider, err)
	}
	orch, err := imageconv.NewOrchestratorFromConfig(cfg, store, store)
	if err != nil {
		return nil, fmt.Errorf("invalid conversion settings: %w", err)
	}
	return orch, nil
}

// Command bedctl runs inpatient maintenance tasks against the configured
// store without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zatekoja/inpatient-core/internal/adapters/database"
	"github.com/zatekoja/inpatient-core/internal/adapters/memory"
	"github.com/zatekoja/inpatient-core/internal/application/services"
	"github.com/zatekoja/inpatient-core/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/inpatient-core/pkg/config"
)

// inpatientOps is the part of the service bedctl drives
type inpatientOps interface {
	ReconcileBeds(ctx context.Context) (*services.ReconcileResult, error)
	DeleteRoom(ctx context.Context, roomID string) (*services.DeleteRoomResult, error)
}

// serviceFactory opens the store and returns the service plus a closer
type serviceFactory func(ctx context.Context, logger zerolog.Logger) (inpatientOps, func(), error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd(openService).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func rootCmd(open serviceFactory) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:           "bedctl",
		Short:         "Inpatient room and bed maintenance",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	logger := func() zerolog.Logger {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}

	cmd.AddCommand(reconcileCmd(open, logger))
	cmd.AddCommand(deleteRoomCmd(open, logger))
	return cmd
}

func reconcileCmd(open serviceFactory, logger func() zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Release beds whose occupancy has no matching active admission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := open(cmd.Context(), logger())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := svc.ReconcileBeds(cmd.Context())
			if result != nil {
				if perr := printJSON(cmd.OutOrStdout(), result); perr != nil && err == nil {
					err = perr
				}
			}
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			return nil
		},
	}
}

func deleteRoomCmd(open serviceFactory, logger func() zerolog.Logger) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-room <room-id>",
		Short: "Delete a room with its beds and their admissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete room %s without --yes", args[0])
			}
			svc, closeFn, err := open(cmd.Context(), logger())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := svc.DeleteRoom(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("delete room %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}

// openService builds the service over the store named by DB_DRIVER. Locks
// are local to this process, so concurrent writers elsewhere are only
// guarded by the bed version check.
func openService(ctx context.Context, logger zerolog.Logger) (inpatientOps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	if cfg.Database.Driver == "memory" {
		store := memory.NewStore()
		return services.NewInpatientService(store.Rooms(), store.Beds(), store.Admissions(), services.NewBedLocker(), logger),
			func() {}, nil
	}

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	svc := services.NewInpatientService(
		database.NewRoomAdapter(pgClient),
		database.NewBedAdapter(pgClient),
		database.NewAdmissionAdapter(pgClient),
		services.NewBedLocker(),
		logger,
	)
	return svc, func() { _ = pgClient.Close() }, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"carrental/internal/app"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")

			d, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			if migrate {
				if err := d.store.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("failed to migrate: %w", err)
				}
			}

			server := wireServer(d)

			sweepCtx, stopSweeper := context.WithCancel(context.Background())
			sweeperDone := make(chan struct{})
			go func() {
				defer close(sweeperDone)
				d.services.Sweeper.Run(sweepCtx)
			}()

			// Start server in goroutine.
			serverErr := make(chan error, 1)
			go func() {
				log.Printf("Starting server on port %s", d.cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Graceful shutdown.
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-serverErr:
				stopSweeper()
				<-sweeperDone
				return fmt.Errorf("server error: %w", err)
			}
			log.Println("Shutting down server...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()

			stopSweeper()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			<-sweeperDone

			log.Println("Server exited")
			return nil
		},
	}

	cmd.Flags().Bool("migrate", false, "Apply the schema before serving")
	return cmd
}

// wireServer wires the handlers and returns the HTTP server.
func wireServer(d *deps) *http.Server {
	rentalHandler, paymentHandler := d.services.Handlers(d.cfg)

	router := app.NewRouter(app.RouterDeps{
		RentalHandler:  rentalHandler,
		PaymentHandler: paymentHandler,
		RedisClient:    d.redisClient,
		NewRelicApp:    d.nrApp,
	})

	return &http.Server{
		Addr:         ":" + d.cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  d.cfg.Server.ReadTimeout,
		WriteTimeout: d.cfg.Server.WriteTimeout,
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the rentals and vehicles tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			if err := d.store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}

			fmt.Println("Schema is up to date.")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release lapsed holds and repair drifted vehicles once",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			result, err := d.services.Sweeper.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			fmt.Printf("Released %d expired holds. Checked %d rentals, repaired %d, failed %d.\n",
				result.Released, result.Consistency.Checked, result.Consistency.Repaired, result.Consistency.Failed)
			return nil
		},
	}
}

func vehicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Manage vehicle rentability records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "register <vehicle-id>...",
		Short: "Register vehicles as free to reserve",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			for _, id := range args {
				if _, err := d.services.Reservations.RegisterVehicle(cmd.Context(), id); err != nil {
					return fmt.Errorf("failed to register vehicle %s: %w", id, err)
				}
				fmt.Printf("Registered vehicle %s\n", id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <vehicle-id>",
		Short: "Print a vehicle's rentability state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer d.close()

			v, err := d.services.Reservations.GetVehicle(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("id=%s status=%s isRented=%t isAvailable=%t rentedBy=%q rental=%q\n",
				v.ID, v.Status, v.IsRented, v.IsAvailable, v.RentedBy, v.RentalID)
			return nil
		},
	})

	return cmd
}

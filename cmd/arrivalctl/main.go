// Command arrivalctl is the arrival engine operator CLI.
//
// Usage:
//
//	arrivalctl simulate --scenario walk_in.yaml --speed 600
//	arrivalctl distance 40.7128 -74.0060 40.7580 -73.9855
//	arrivalctl pois
//	arrivalctl seed --scenario walk_in.yaml
//	arrivalctl decisions purge --older-than 720h
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/arrival/internal/arrival"
	"github.com/albapepper/arrival/internal/config"
	"github.com/albapepper/arrival/internal/db"
	"github.com/albapepper/arrival/internal/geo"
	"github.com/albapepper/arrival/internal/scenario"
	"github.com/albapepper/arrival/internal/seed"
	"github.com/albapepper/arrival/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arrivalctl",
		Short: "Arrival engine operator CLI",
	}
	root.AddCommand(simulateCmd())
	root.AddCommand(distanceCmd())
	root.AddCommand(poisCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(decisionsCmd())
	return root
}

// --------------------------------------------------------------------------
// simulate command
// --------------------------------------------------------------------------

func simulateCmd() *cobra.Command {
	var (
		path    string
		speed   float64
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a scripted scenario through a session and print its decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if speed < 1 {
				return fmt.Errorf("--speed must be at least 1")
			}
			s, err := scenario.Load(path)
			if err != nil {
				return err
			}
			cfg, err := config.LoadEngine()
			if err != nil {
				return err
			}

			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			if verbose {
				log = logger
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			start := time.Now()
			res, err := scenario.Replay(ctx, s, cfg, speed, nil, log)
			if err != nil {
				return fmt.Errorf("replay %s: %w", path, err)
			}
			logger.Info("Scenario replayed",
				"scenario", s.Name,
				"decisions", len(res.Decisions),
				"duration", time.Since(start).Round(time.Millisecond))

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printDecisions(out, res.Decisions)
		},
	}
	cmd.Flags().StringVar(&path, "scenario", "", "Scenario YAML file")
	cmd.Flags().Float64Var(&speed, "speed", 60, "Clock acceleration factor")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log session activity to stderr")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func printDecisions(w io.Writer, ds []arrival.Decision) error {
	if len(ds) == 0 {
		_, err := fmt.Fprintln(w, "no decisions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPOIS\tRESERVATION")
	for _, d := range ds {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Kind, strings.Join(d.POIs(), ","), d.ReservationID)
	}
	return tw.Flush()
}

// --------------------------------------------------------------------------
// distance command
// --------------------------------------------------------------------------

func distanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distance LAT1 LON1 LAT2 LON2",
		Short: "Great-circle distance between two coordinates, in meters",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v [4]float64
			for i, a := range args {
				f, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				v[i] = f
			}
			a := geo.Coordinate{Latitude: v[0], Longitude: v[1]}
			b := geo.Coordinate{Latitude: v[2], Longitude: v[3]}
			if !a.Valid() || !b.Valid() {
				return fmt.Errorf("coordinates out of range")
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", geo.Distance(a, b))
			return err
		},
	}
}

// --------------------------------------------------------------------------
// database commands
// --------------------------------------------------------------------------

func poisCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pois",
		Short: "List every restaurant and valet location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				pois, err := store.NewPOIStore(pool).AllPointsOfInterest(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tNAME\tLAT\tLON")
				for _, p := range pois {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.6f\t%.6f\n", p.ID, p.Kind, p.Name, p.Latitude, p.Longitude)
				}
				return tw.Flush()
			})
		},
	}
}

func seedCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upsert a scenario's POIs, reservations and waitlist into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := scenario.Load(path)
			if err != nil {
				return err
			}
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				start := time.Now()
				result := seed.Scenario(ctx, pool, s, start, cfg.Engine.Orchestrator.Location, logger)
				logger.Info("Seed finished", "duration", time.Since(start).Round(time.Millisecond), "summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("seed error", "error", e)
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("%d rows failed", len(result.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&path, "scenario", "", "Scenario YAML file")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func decisionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Manage the decision log",
	}

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete logged decisions older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDB(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				retention := olderThan
				if retention <= 0 {
					retention = cfg.DecisionRetention
				}
				n, err := store.NewDecisionLog(pool).Purge(ctx, time.Now().Add(-retention))
				if err != nil {
					return err
				}
				logger.Info("Decisions purged", "deleted", n, "retention", retention)
				return nil
			})
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "Retention window (defaults to DECISION_RETENTION)")
	cmd.AddCommand(purge)
	return cmd
}

// runDB loads config, connects to the database, and runs fn.
func runDB(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

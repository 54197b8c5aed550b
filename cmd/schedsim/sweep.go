package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmguard/schedsim/internal/batch"
	"github.com/swarmguard/schedsim/internal/store"
)

func newSweepCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "register, run, and schedule scenario sweeps across schedulers",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "schedsim.db", "BoltDB path for scenarios and results")

	cmd.AddCommand(
		newSweepRegisterCmd(&dbPath),
		newSweepOnceCmd(&dbPath),
		newSweepStartCmd(&dbPath),
		newSweepResultsCmd(&dbPath),
	)
	return cmd
}

func newSweepRegisterCmd(dbPath *string) *cobra.Command {
	var sc store.Scenario
	var graphPath string

	cmd := &cobra.Command{
		Use:   "register NAME",
		Short: "store a named scenario for later sweeps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc.Name = args[0]
			data, err := os.ReadFile(graphPath)
			if err != nil {
				return err
			}
			sc.GraphJSON = data

			st, err := store.Open(*dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.PutScenario(sc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scenario %s registered\n", sc.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&graphPath, "graph", "", "task graph JSON file (required)")
	cmd.Flags().IntVar(&sc.Workers, "workers", 2, "worker count")
	cmd.Flags().IntVar(&sc.WorkerCPUs, "cpus", 1, "CPUs per worker")
	cmd.Flags().StringVar(&sc.NetModel, "net", "maxmin", "instant|simple|maxmin")
	cmd.Flags().Float64Var(&sc.Bandwidth, "bandwidth", 100, "announced per-pair bandwidth")
	cmd.Flags().StringSliceVar(&sc.Schedulers, "schedulers", []string{"dls", "etf", "mcp", "last", "k1h"}, "schedulers to sweep")
	cmd.MarkFlagRequired("graph")
	return cmd
}

func newSweepOnceCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once NAME",
		Short: "run a stored scenario across its schedulers now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(*dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			batch.NewSweeper(st).SweepOnce(cmd.Context(), args[0])
			return nil
		},
	}
}

func newSweepStartCmd(dbPath *string) *cobra.Command {
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "start NAME",
		Short: "keep re-running a stored scenario on a cron schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(*dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			sweeper := batch.NewSweeper(st)
			if err := sweeper.Add(cronExpr, args[0]); err != nil {
				return err
			}
			sweeper.Start()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return sweeper.Stop(stopCtx)
		},
	}

	cmd.Flags().StringVar(&cronExpr, "cron", "0 */5 * * * *", "cron expression with seconds precision")
	return cmd
}

func newSweepResultsCmd(dbPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "results NAME",
		Short: "list persisted run records for a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(*dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			runs, err := st.ListRuns(args[0], limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-12s  makespan=%-12g  %s\n",
					r.StartedAt.Format(time.RFC3339), r.Scheduler, r.Makespan, r.RunID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "max records to list")
	return cmd
}

// Command schedsim is the driver around the simulation core: it loads or
// generates a task graph, runs it under a chosen scheduler and network
// model, and reports the makespan, with optional tracing, persistence, and
// recurring sweeps.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/swarmguard/schedsim/internal/telemetry"
)

func main() {
	telemetry.InitLogging("schedsim")
	ctx := context.Background()
	shutdownTraces := telemetry.InitTracer(ctx, "schedsim")
	shutdownMetrics := telemetry.InitMetrics(ctx, "schedsim")
	defer telemetry.Flush(ctx, shutdownTraces)
	defer telemetry.Flush(ctx, shutdownMetrics)

	root := &cobra.Command{
		Use:           "schedsim",
		Short:         "discrete-event simulator for task-graph scheduling on worker clusters",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newGenerateCmd(), newSweepCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

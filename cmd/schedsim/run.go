package main

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	nats "github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/swarmguard/schedsim/internal/generator"
	"github.com/swarmguard/schedsim/internal/kernel"
	"github.com/swarmguard/schedsim/internal/network"
	"github.com/swarmguard/schedsim/internal/runtime"
	"github.com/swarmguard/schedsim/internal/scheduler"
	"github.com/swarmguard/schedsim/internal/serialize"
	"github.com/swarmguard/schedsim/internal/taskgraph"
	"github.com/swarmguard/schedsim/internal/trace"
	"github.com/swarmguard/schedsim/internal/worker"
)

func newRunCmd() *cobra.Command {
	var (
		graphPath   string
		daxPath     string
		genSpec     string
		workers     int
		cpus        int
		policyName  string
		netKind     string
		bandwidth   float64
		enableTrace bool
		htmlOut     string
		natsURL     string
		natsSubject string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "run one simulation and print the makespan",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			graph, err := loadGraph(graphPath, daxPath, genSpec)
			if err != nil {
				return err
			}
			policy, err := scheduler.New(policyName)
			if err != nil {
				return err
			}
			net, err := network.New(netKind, bandwidth)
			if err != nil {
				return err
			}

			pool := make([]kernel.Worker, workers)
			for i := range pool {
				pool[i] = worker.New(cpus)
			}

			var opts []kernel.Option
			if enableTrace || htmlOut != "" {
				opts = append(opts, kernel.WithTrace())
			}
			if natsURL != "" {
				nc, err := nats.Connect(natsURL)
				if err != nil {
					return fmt.Errorf("connect nats: %w", err)
				}
				defer nc.Drain()
				opts = append(opts, kernel.WithTraceBus(trace.NewBus(nc, natsSubject)))
			}

			// The one boundary that must not crash: invariant panics
			// from a misbehaving policy become exit errors here.
			defer func() {
				if r := recover(); r != nil {
					if inv, ok := r.(*runtime.ErrInvariant); ok {
						err = inv
						return
					}
					panic(r)
				}
			}()

			sim := kernel.New(graph, pool, policy, net, opts...)
			makespan := sim.Run(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "makespan: %g\n", makespan)

			if htmlOut != "" {
				f, err := os.Create(htmlOut)
				if err != nil {
					return fmt.Errorf("create report: %w", err)
				}
				defer f.Close()
				if err := trace.WriteHTML(sim.TraceEvents(), f); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&graphPath, "graph", "", "task graph JSON file")
	cmd.Flags().StringVar(&daxPath, "dax", "", "task graph Pegasus DAX file")
	cmd.Flags().StringVar(&genSpec, "gen", "", "generate a graph, e.g. forkjoin:20, triplets:10, merge:30, random-deps:50:0.2:1, random-levels:1")
	cmd.Flags().IntVar(&workers, "workers", 2, "worker count")
	cmd.Flags().IntVar(&cpus, "cpus", 1, "CPUs per worker")
	cmd.Flags().StringVar(&policyName, "scheduler", "dls", strings.Join(scheduler.Names(), "|"))
	cmd.Flags().StringVar(&netKind, "net", "maxmin", "instant|simple|maxmin")
	cmd.Flags().Float64Var(&bandwidth, "bandwidth", 100, "announced per-pair bandwidth")
	cmd.Flags().BoolVar(&enableTrace, "trace", false, "record the event journal")
	cmd.Flags().StringVar(&htmlOut, "html", "", "write an HTML trace report (implies --trace)")
	cmd.Flags().StringVar(&natsURL, "nats", "", "publish trace events to this NATS server")
	cmd.Flags().StringVar(&natsSubject, "nats-subject", "schedsim.trace", "NATS subject for trace events")
	return cmd
}

func loadGraph(graphPath, daxPath, genSpec string) (*taskgraph.Graph, error) {
	set := 0
	for _, s := range []string{graphPath, daxPath, genSpec} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of --graph, --dax, --gen is required")
	}
	switch {
	case graphPath != "":
		data, err := os.ReadFile(graphPath)
		if err != nil {
			return nil, err
		}
		return serialize.UnmarshalJSON(data)
	case daxPath != "":
		f, err := os.Open(daxPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return serialize.UnmarshalDAX(f)
	default:
		return generateGraph(genSpec)
	}
}

// generateGraph parses "kind:arg[:arg...]" generator specs.
func generateGraph(spec string) (*taskgraph.Graph, error) {
	parts := strings.Split(spec, ":")
	kind := parts[0]
	argInt := func(i, def int) int {
		if len(parts) <= i {
			return def
		}
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			return def
		}
		return v
	}
	argFloat := func(i int, def float64) float64 {
		if len(parts) <= i {
			return def
		}
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return def
		}
		return v
	}

	switch kind {
	case "forkjoin":
		return generator.ForkJoin(argInt(1, 10), argFloat(2, 1), argFloat(3, 1))
	case "triplets":
		return generator.Triplets(argInt(1, 10))
	case "merge":
		return generator.Merge(argInt(1, 10), argFloat(2, 1), argFloat(3, 1))
	case "random-deps":
		rng := rand.New(rand.NewSource(int64(argInt(3, 1))))
		return generator.RandomDependencies(argInt(1, 10), argFloat(2, 0.2), rng)
	case "random-levels":
		rng := rand.New(rand.NewSource(int64(argInt(1, 1))))
		return generator.RandomLevels([]int{3, 10, 5, 1}, []int{0, 3, 2, 3}, rng)
	default:
		return nil, fmt.Errorf("unknown generator %q", kind)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/phasegate/internal/debuglog"
	"github.com/ShayCichocki/phasegate/internal/gates"
	"github.com/ShayCichocki/phasegate/internal/metrics"
)

var (
	gateName      string
	gateAll       bool
	gateIteration string
	gateTaskID    string
	gateMetrics   string
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate a quality gate",
	Long: `Evaluate one quality gate, or all eight in order.

Gates:
  gate_0  environment ready
  gate_1  requirement spec present
  gate_2  task plan structurally valid
  gate_3  task acceptance script passes (needs --task-id)
  gate_4  no regression against the baseline
  gate_5  integration, mock compliance and lint
  gate_6  code review verdicts
  gate_7  final gate

Each gate prints one line per check and finishes with its verdict.
SKIP exits 0; FAIL exits 1.

With --metrics-dir (or metrics.textfile_dir) each verdict is also written
as phasegate_<gate>.prom for a Prometheus textfile collector.`,
	Example: `  phasegate gate --gate gate_4
  phasegate gate --gate gate_3 --iteration-id iter-2 --task-id CR-001
  phasegate gate --all --iteration-id iter-2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if gateAll == (gateName != "") {
			return fmt.Errorf("specify exactly one of --gate or --all")
		}
		ctx, cancel := signalContext()
		defer cancel()

		rec, closeJournal := env.recorder()
		defer closeJournal()
		var opts []gates.Option
		if rec != nil {
			opts = append(opts, gates.WithJournal(rec))
		}
		engine := gates.NewEngine(env.projectDir, env.cfg, env.runner, env.rep, opts...)
		req := gates.Request{Iteration: gateIteration, TaskID: gateTaskID}

		if gateAll {
			ok, verdicts, err := engine.RunAll(ctx, req)
			exportGateMetrics(req.Iteration, verdicts)
			if err != nil {
				return err
			}
			if !ok {
				return exitWith(exitFail)
			}
			return nil
		}

		g, err := gates.ParseGate(gateName)
		if err != nil {
			return err
		}
		res, err := engine.Run(ctx, g, req)
		if err != nil {
			return err
		}
		exportGateMetrics(req.Iteration, []gates.Verdict{{Gate: g, Result: res}})
		if res == gates.Fail {
			return exitWith(exitFail)
		}
		return nil
	},
}

func init() {
	gateCmd.Flags().StringVar(&gateName, "gate", "", "Gate to evaluate (gate_0 .. gate_7)")
	gateCmd.Flags().BoolVar(&gateAll, "all", false, "Evaluate every gate in order")
	gateCmd.Flags().StringVar(&gateIteration, "iteration-id", "", "Iteration id (defaults to the session's current iteration)")
	gateCmd.Flags().StringVar(&gateTaskID, "task-id", "", "Task id for gate_3 and to narrow gate_6")
	gateCmd.Flags().StringVar(&gateMetrics, "metrics-dir", "", "Write verdicts as Prometheus textfiles into this directory")
}

// exportGateMetrics writes one textfile per verdict. Export failures are
// logged and never change the gate's exit code.
func exportGateMetrics(iteration string, verdicts []gates.Verdict) {
	dir := gateMetrics
	if dir == "" {
		dir = env.cfg.Metrics.TextfileDir
	}
	if dir == "" || len(verdicts) == 0 {
		return
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(env.projectDir, dir)
	}

	now := env.store.Now()
	for _, v := range verdicts {
		exp := metrics.NewGateExporter()
		exp.Observe(string(v.Gate), iteration, v.Result.String(), now)
		path, err := exp.WriteTextfile(dir, "phasegate_"+string(v.Gate))
		if err != nil {
			log.Printf("[gate] warning: %v", err)
			continue
		}
		debuglog.Printf("gate metrics written: %s", path)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aictl/itaccess/internal/config"
	"github.com/aictl/itaccess/internal/provider"
	"github.com/aictl/itaccess/internal/scenario"
	"github.com/aictl/itaccess/internal/tui"
)

func newScenarioCmd() *cobra.Command {
	var transcriptDir string

	cmd := &cobra.Command{
		Use:   "scenario <file.yaml>...",
		Short: "Replay scripted conversations offline and check their outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}
			if transcriptDir != "" {
				if err := os.MkdirAll(transcriptDir, 0o755); err != nil {
					return err
				}
			}
			ctx, cancel := signalContext()
			defer cancel()

			failed := 0
			for _, path := range args {
				if err := runScenario(ctx, cmd.OutOrStdout(), *cfg, path, transcriptDir); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s\n%v\n", path, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "PASS %s\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&transcriptDir, "transcripts", "", "write each conversation as JSON into this directory")
	return cmd
}

// runScenario replays one scenario. cfg is a copy so a per-scenario
// snapshot does not leak into the next one.
func runScenario(ctx context.Context, out io.Writer, cfg config.Config, path, transcriptDir string) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if sc.Snapshot != "" {
		snap := sc.Snapshot
		if !filepath.IsAbs(snap) {
			snap = filepath.Join(filepath.Dir(path), snap)
		}
		cfg.Store.Snapshot = snap
	}

	rt, err := buildRuntime(&cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	p := provider.NewScriptedProvider(sc.Turns...)
	ui := tui.NewBufferIO()
	a := rt.newAgent(p, ui)
	if err := a.RunOnce(ctx, sc.Prompt); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	snap, err := rt.store.Snapshot()
	if err != nil {
		return err
	}
	outcome := &scenario.Outcome{Tools: ui.Tools(), Output: ui.Output(), Snapshot: snap}

	fmt.Fprintf(out, "--- %s: %s\n", sc.Name, sc.Prompt)
	for _, t := range outcome.Tools {
		status := "ok"
		if t.IsError {
			status = "error"
		}
		fmt.Fprintf(out, "  [%s] %s %s -> %s: %s\n", t.ID, t.Name, t.Params, status, truncateLine(t.Result, 100))
	}
	if outcome.Output != "" {
		fmt.Fprintf(out, "  model: %s\n", truncateLine(outcome.Output, 200))
	}
	fmt.Fprintf(out, "  state hash: %s\n", snap.Hash())

	if transcriptDir != "" {
		name := sc.Name
		if name == "" {
			name = filepath.Base(path)
		}
		if err := a.Session().SaveTranscript(filepath.Join(transcriptDir, name+".json")); err != nil {
			return err
		}
	}

	var errs []error
	if n := p.Remaining(); n > 0 {
		errs = append(errs, fmt.Errorf("script has %d unused turns", n))
	}
	if err := sc.Expect.Check(outcome); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func truncateLine(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

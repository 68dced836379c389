package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aictl/itaccess/internal/tui"
)

func newRunCmd() *cobra.Command {
	var prompt, transcript string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a single request non-interactively",
		Example: `  itaccess run -P "give user_001 read access to res_001" --auto-approve
  itaccess run --prompt "what can user_002 access?" --transcript out.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt / -P is required")
			}
			return runOnce(cmd, prompt, transcript)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the request to execute")
	cmd.Flags().StringVar(&transcript, "transcript", "", "write the conversation as JSON to this file")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

// runOnce executes a single prompt and exits.
func runOnce(cmd *cobra.Command, prompt, transcript string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	p, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()
	rt.serveMetrics(ctx)

	ui := tui.NewPlainIOWith(os.Stdin, cmd.OutOrStdout(), cmd.ErrOrStderr())
	a := rt.newAgent(p, ui)
	runErr := a.RunOnce(ctx, prompt)
	fmt.Fprintln(cmd.OutOrStdout())

	if transcript != "" {
		if err := a.Session().SaveTranscript(transcript); err != nil {
			return err
		}
	}
	return runErr
}

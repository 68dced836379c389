package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aictl/itaccess/internal/tui"
)

// runChat starts the interactive chat (REPL) mode.
func runChat(cmd *cobra.Command) error {
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
	ui.SystemMessage("itaccess: type a request, /help for commands, /quit to exit.")
	return rt.newAgent(p, ui).Run(ctx)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aictl/itaccess/internal/provider"
	"github.com/aictl/itaccess/internal/session"
	"github.com/aictl/itaccess/internal/tui"
)

func newToolCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tool <name> [json-arguments]",
		Short: "Invoke one access tool directly, with policy checks and verification",
		Example: `  itaccess tool get_user_info '{"user_id":"user_001"}'
  itaccess tool grant_access '{"user_id":"user_001","resource_id":"res_001","access_level":"read"}' --auto-approve`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "{}"
			if len(args) == 2 {
				input = args[1]
			}
			return runTool(cmd, args[0], input)
		},
	}
}

func runTool(cmd *cobra.Command, name, input string) error {
	if !json.Valid([]byte(input)) {
		return fmt.Errorf("arguments must be a JSON object, got %q", input)
	}
	cfg, err := initConfig()
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

	out := cmd.OutOrStdout()
	ui := tui.NewPlainIOWith(os.Stdin, out, cmd.ErrOrStderr())
	rt.executor.SetConfirmer(ui)

	sess := session.New()
	call := &provider.ToolCallRequest{ID: "call_cli", Name: name, Input: json.RawMessage(input)}
	sess.AddMessage(provider.ToolUseMessage("", call))

	res := rt.executor.Execute(ctx, call.Name, call.Input)
	results := provider.ToolResultMessage(provider.Content{
		Type:       provider.ContentTypeToolResult,
		ToolUseID:  call.ID,
		ToolResult: res.Content,
		IsError:    res.IsError,
	})
	if res.IsError {
		return fmt.Errorf("%s: %s", name, res.Content)
	}
	fmt.Fprintln(out, res.Content)

	if rt.gate == nil {
		return nil
	}
	d := rt.gate.Review(sess, results)
	for d.Intercepted() {
		var verified []provider.Content
		for _, call := range d.Verify {
			v := rt.executor.Execute(ctx, call.Name, call.Input)
			fmt.Fprintf(out, "verified by %s %s: %s\n", call.Name, call.Input, v.Content)
			verified = append(verified, provider.Content{
				Type:       provider.ContentTypeToolResult,
				ToolUseID:  call.ID,
				ToolResult: v.Content,
				IsError:    v.IsError,
			})
		}
		d = rt.gate.Review(sess, provider.ToolResultMessage(verified...))
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aictl/itaccess/internal/agent"
)

func newStateCmd() *cobra.Command {
	var userID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print the initial access state and its hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initConfig()
			if err != nil {
				return err
			}
			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			snap, err := rt.store.Snapshot()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintln(out, agent.FormatState(snap, userID))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only list this user's permissions")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full snapshot as JSON")
	return cmd
}

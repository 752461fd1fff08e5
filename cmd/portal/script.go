package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dise/partnerportal/internal/provisioning"
)

func newScriptCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "script",
		Short: "Print or save the ChromeOS provisioning script",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" || output == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), provisioning.Script)
				return err
			}
			if err := os.WriteFile(output, []byte(provisioning.Script), 0o755); err != nil {
				return fmt.Errorf("writing script: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout, e.g. "+provisioning.Filename)
	return cmd
}

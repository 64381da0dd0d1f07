package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/chatrelay/signature"
)

func secretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a signing secret for delivery.secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), signature.GenerateSecret())
			return nil
		},
	}
}

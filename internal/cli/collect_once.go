package cli

import (
	"github.com/spf13/cobra"
)

var collectOnceCmd = &cobra.Command{
	Use:   "collect-once",
	Short: "Ensure the schema and store a single observation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CollectOnce(cmd.Context())
	},
}

package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "btrace",
	Short: "Branch trace reconstruction",
	Long: `btrace reconstructs function-call traces from recorded hardware
branch trace and prints them.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		log.SetLevel(level)
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warning",
		"log level (trace, debug, info, warning, error)")

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(confCmd)
}

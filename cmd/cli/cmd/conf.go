package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keurnel/btrace/internal/btrace"
)

var confCmd = &cobra.Command{
	Use:   "conf <file>",
	Short: "Decode and print a btrace-conf record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		conf, err := btrace.ParseConf(raw)
		if err != nil {
			return err
		}

		fmt.Printf("format: %s\n", conf.Format)
		if conf.Format == btrace.FormatBTS {
			if conf.BTS.Size != 0 {
				fmt.Printf("buffer size: %d\n", conf.BTS.Size)
			} else {
				fmt.Println("buffer size: producer's choice")
			}
		}

		return nil
	},
}

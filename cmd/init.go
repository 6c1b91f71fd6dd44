package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/spigell/freelance-pipeline/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default config file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		path := app + ".yaml"
		switch {
		case len(args) == 1:
			path = args[0]
		case cfgFile != "":
			path = cfgFile
		}

		if err := config.WriteDefault(path); err != nil {
			if errors.Is(err, config.ErrExists) {
				log.Fatalf("%s already exists, remove it first", path)
			}
			log.Fatalf("writing default config: %v", err)
		}

		fmt.Printf("default config written to %s\n", path)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

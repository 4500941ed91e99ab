package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/prettymuchbryce/calltrace/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultPath()
		if len(args) == 1 {
			path = args[0]
		}

		written, created, err := config.WriteExample(afero.NewOsFs(), path)
		if err != nil {
			return err
		}
		if !created {
			fmt.Println("Config already exists: " + dimStyle.Render(written))
			return nil
		}
		fmt.Println("Created example config: " + dimStyle.Render(written))
		fmt.Println("Replay a script with " + boldStyle.Render("calltrace replay <script.yaml>") + ".")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"formvm/vm"
)

var scriptsCmd = &cobra.Command{
	Use:   "scripts <file>",
	Short: "List decoded script names",
	Args:  cobra.ExactArgs(1),
	RunE:  runScripts,
}

func init() {
	rootCmd.AddCommand(scriptsCmd)
}

func runScripts(cmd *cobra.Command, args []string) error {
	path := args[0]

	src, err := vm.NewMappedSource(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	form, err := vm.Decode(src, log.Logger)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for i, s := range form.Scripts {
		fmt.Printf("%4d  %-32s  %4d blocks\n", i, s.Name, len(s.Code))
	}
	return nil
}

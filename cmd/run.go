package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"formvm/vm"
)

var runCmd = &cobra.Command{
	Use:   "run <file> [script names...]",
	Short: "Decode a form file and run its scripts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]
	names := args[1:]

	src, err := vm.NewMappedSource(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	form, err := vm.Decode(src, log.Logger)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	if len(names) == 0 {
		for _, s := range form.Scripts {
			names = append(names, s.Name)
		}
	}

	for _, name := range names {
		idx, ok := form.ScriptByName(name)
		if !ok {
			return fmt.Errorf("no such script: %s", name)
		}
		script := &form.Scripts[idx]

		machine := vm.NewVM(form)
		if debugFlag {
			machine.SetLogger(log.Logger)
		}
		machine.StepBudget = stepBudgetFlag

		ctx := context.Background()
		if err := machine.Run(ctx, script); err != nil {
			return fmt.Errorf("running %s: %w", name, err)
		}
		fmt.Println(machine.PrintStackFrame())
	}
	return nil
}

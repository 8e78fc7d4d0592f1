package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"formvm/vm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <file> <script>",
	Short: "Print the decoded block stream of one script",
	Args:  cobra.ExactArgs(2),
	RunE:  runDisasm,
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}

func runDisasm(cmd *cobra.Command, args []string) error {
	path, name := args[0], args[1]

	src, err := vm.NewMappedSource(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	form, err := vm.Decode(src, log.Logger)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	idx, ok := form.ScriptByName(name)
	if !ok {
		return fmt.Errorf("no such script: %s", name)
	}
	script := form.Scripts[idx]

	for pc, block := range script.Code {
		d := vm.DecodeBlock(block)
		fmt.Printf("%4d  %-10s t1=%-4s t2=%-4s imm16=%-6d imm24=%-6d\n",
			pc, d.Opcode, d.T1, d.T2, d.Imm16, d.Imm24)
	}
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pboyd/detour/internal/x86"
)

func newDisasmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm HEX...",
		Short: "Disassemble machine code",
		Example: `
# Disassemble a prologue
detour disasm 55 48 89 e5 48 83 ec 20 c3

# 32-bit code at a given address
detour disasm --bitness 32 --addr 0x08049000 5589e5c3
  `,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ca, err := parseCodeArgs(cmd, args)
			if err != nil {
				return err
			}

			code := ca.code
			if trim, _ := cmd.Flags().GetBool("trim"); trim {
				code = x86.TrimPadding(code)
			}

			out, err := x86.Disassemble(code, ca.addr, ca.bitness)
			fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().Bool("trim", false, "drop trailing INT3 padding")
	return cmd
}

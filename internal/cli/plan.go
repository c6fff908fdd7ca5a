package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pboyd/detour/internal/x86"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan HEX...",
		Short: "Show which instructions a detour would overwrite",
		Example: `
# Plan a jump to a nearby detour
detour plan --detour 0x402000 55 48 89 e5 48 83 ec 20 c3
  `,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ca, err := parseCodeArgs(cmd, args)
			if err != nil {
				return err
			}
			dest, err := addressFlag(cmd, "detour")
			if err != nil {
				return err
			}

			kind := x86.SelectJump(ca.addr, dest, ca.bitness)
			region, err := x86.Plan(ca.code, ca.addr, ca.bitness, kind.Len())
			if err != nil {
				return err
			}

			patch, err := x86.EncodePatch(ca.addr, dest, kind, ca.bitness, region.Len())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "jump: %s (%d bytes)\n", kind, kind.Len())
			fmt.Fprintf(w, "region: %d bytes, %d instructions\n", region.Len(), len(region.Instructions))
			printInstructions(w, region.Instructions)
			fmt.Fprintf(w, "patch: % x\n", patch)
			return nil
		},
	}
	cmd.Flags().String("detour", "0x402000", "address of the replacement function")
	return cmd
}

func printInstructions(w io.Writer, insts []x86.Instruction) {
	for _, inst := range insts {
		fmt.Fprintf(w, "  0x%08x\t%-20x\t%-16s\t%s\n", inst.Address, inst.Bytes, inst.Mode, inst)
	}
}

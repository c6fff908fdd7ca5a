package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pboyd/detour/internal/x86"
)

func newRelocateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relocate HEX...",
		Short: "Build the trampoline a detour would use",
		Example: `
# Move a RIP-relative load 1MiB away
detour relocate --base 0x501000 48 8b 05 10 00 00 00 c3
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
			base, err := addressFlag(cmd, "base")
			if err != nil {
				return err
			}

			kind := x86.SelectJump(ca.addr, dest, ca.bitness)
			region, err := x86.Plan(ca.code, ca.addr, ca.bitness, kind.Len())
			if err != nil {
				return err
			}

			tramp, err := x86.Relocate(region, base, ca.bitness)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "trampoline: %d bytes at 0x%x\n", len(tramp.Code), tramp.Base)
			if tramp.ContinuationOffset >= 0 {
				fmt.Fprintf(w, "continuation: %s jump to 0x%x at offset %d\n",
					tramp.Continuation, region.End(), tramp.ContinuationOffset)
			}

			out, err := x86.Disassemble(tramp.Code, tramp.Base, ca.bitness)
			fmt.Fprint(w, out)
			return err
		},
	}
	cmd.Flags().String("detour", "0x402000", "address of the replacement function")
	cmd.Flags().String("base", "0x500000", "address the trampoline will run from")
	return cmd
}

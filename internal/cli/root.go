// Package cli implements the detour command, which shows how the detour
// engine sees a piece of machine code without patching anything.
package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/pboyd/detour"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "detour",
		Short: "Inspect how functions would be detoured",
		Long: `Decode, plan and relocate x86 machine code the same way the detour
engine does, without patching anything. Code is given as hex bytes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := detour.LoadConfig()
			if err != nil {
				return err
			}
			detour.SetLogger(detour.NewLogger(cmd.ErrOrStderr(), cfg))
			return nil
		},
	}

	root.PersistentFlags().String("addr", "0x401000", "address of the first byte")
	root.PersistentFlags().Int("bitness", strconv.IntSize, "decoder mode, 32 or 64")

	root.AddCommand(
		newDisasmCommand(),
		newPlanCommand(),
		newRelocateCommand(),
		newProvidersCommand(),
		newConfigCommand(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		log.Error("detour failed", "err", err)
		os.Exit(1)
	}
}

type codeArgs struct {
	code    []byte
	addr    uintptr
	bitness int
}

func parseCodeArgs(cmd *cobra.Command, args []string) (codeArgs, error) {
	var ca codeArgs

	code, err := parseHex(strings.Join(args, ""))
	if err != nil {
		return ca, err
	}
	if len(code) == 0 {
		return ca, fmt.Errorf("no machine code given")
	}
	ca.code = code

	ca.addr, err = addressFlag(cmd, "addr")
	if err != nil {
		return ca, err
	}

	ca.bitness, err = cmd.Flags().GetInt("bitness")
	return ca, err
}

// parseHex accepts bytes written as "55 48 89 e5", "554889e5",
// "0x55,0x48" or "\x55\x48".
func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer("0x", "", "0X", "", `\x`, "", ",", "", " ", "", "\t", "", "\n", "").Replace(s)
	code, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid machine code: %w", err)
	}
	return code, nil
}

func addressFlag(cmd *cobra.Command, name string) (uintptr, error) {
	s, err := cmd.Flags().GetString(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return uintptr(v), nil
}

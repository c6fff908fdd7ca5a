package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pboyd/detour"
)

func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the patching backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, name := range detour.Providers() {
				status := "available"
				if name == detour.GohookName && !detour.GohookSupported() {
					status = "unsupported"
				}
				fmt.Fprintf(w, "%s\t%s\n", name, status)
			}
			return nil
		},
	}
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the configuration read from the environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := detour.LoadConfig()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "backend:    %s\n", cfg.Backend)
			fmt.Fprintf(w, "log level:  %s\n", cfg.LogLevel)
			fmt.Fprintf(w, "log prefix: %q\n", cfg.LogPrefix)
			fmt.Fprintf(w, "scan limit: %d\n", cfg.ScanLimit)
			return nil
		},
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/mockfleet/pkg/cli/internal/output"
	"github.com/getmockd/mockfleet/pkg/config"
	"github.com/getmockd/mockfleet/pkg/definition"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate service definitions without starting them",
		Long: `Load every .yaml/.yml definition below dir (default: the configured
services directory) and report the result per file. Exits 1 when any
definition fails to load.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.DefaultServicesDir
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(cmd, dir)
		},
	}
}

func runValidate(cmd *cobra.Command, dir string) error {
	out := cmd.OutOrStdout()
	res, err := definition.NewStore(dir).Load()
	if err != nil {
		return err
	}

	for _, def := range res.Definitions {
		fmt.Fprintf(out, "ok %s (%d endpoints)\n", def.Name, len(def.Endpoints))
		for _, w := range definition.Lint(def) {
			fmt.Fprintf(out, "warn %s: %s\n", def.Name, w)
		}
	}
	for _, le := range res.Errors {
		fmt.Fprintf(out, "error %v\n", le)
	}
	if len(res.Errors) > 0 {
		return errReported
	}
	if len(res.Definitions) == 0 {
		output.Warn(cmd.ErrOrStderr(), "no definitions found in %s", dir)
	}
	return nil
}

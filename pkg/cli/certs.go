package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	devcert "github.com/getmockd/mockfleet/pkg/tls"
)

func newCertsCommand() *cobra.Command {
	var (
		dir   string
		hosts []string
		days  int
		force bool
	)
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Write a self-signed certificate for TLS services",
		Long: `Write server.crt and server.key to the output directory. Reference them
from a definition with server.cert and server.key to serve it over HTTPS.
Existing files are kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := devcert.DefaultOptions()
			opts.Hosts = hosts
			opts.ValidFor = time.Duration(days) * 24 * time.Hour

			certPath := filepath.Join(dir, "server.crt")
			keyPath := filepath.Join(dir, "server.key")

			var (
				pair    *devcert.Pair
				created = true
				err     error
			)
			if force {
				pair, err = devcert.GenerateAndSave(opts, certPath, keyPath)
			} else {
				pair, created, err = devcert.Ensure(opts, certPath, keyPath)
			}
			if err != nil {
				return err
			}

			verb := "kept existing"
			if created {
				verb = "wrote"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s and %s (valid until %s)\n",
				verb, certPath, keyPath, pair.Certificate.NotAfter.Format("2006-01-02"))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&dir, "out", "o", "certs", "output directory")
	fl.StringSliceVar(&hosts, "host", devcert.DefaultOptions().Hosts, "DNS names and IPs the certificate is valid for")
	fl.IntVar(&days, "days", 365, "validity in days")
	fl.BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"allenchat/internal/auth"
	"allenchat/internal/server"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var overridePort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy server and page shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if overridePort != 0 {
				if overridePort < 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}

			var verifier *auth.Verifier
			if cfg.Auth.RequireUser {
				v, err := auth.NewVerifier(cfg.Auth.Firebase.ProjectID, nil)
				if err != nil {
					return err
				}
				verifier = v
			}

			srv, err := server.New(cfg, verifier)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVarP(&overridePort, "port", "p", 0, "override server port from configuration")
	return cmd
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUsageCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show spending for the current month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, authCtx, err := signedInRouter(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			if authCtx != nil {
				defer authCtx.Close()
			}
			usage, err := rt.Usage(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Used $%.2f of $%.2f this month\n", usage.Used, usage.Total)
			return nil
		},
	}
}

func newModelsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the selected platform offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, authCtx, err := signedInRouter(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			if authCtx != nil {
				defer authCtx.Close()
			}
			list, err := rt.Models(cmd.Context())
			if err != nil {
				return err
			}

			for _, m := range list {
				marker := " "
				if m.Name == opts.cfg.Model.Model {
					marker = "*"
				}
				status := ""
				if !m.Available {
					status = " (unavailable)"
				}
				fmt.Printf("%s %-28s %s%s\n", marker, m.Name, m.Provider.ProviderName, status)
			}
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgorny/pkgcore/resolver"
)

func newUnmergeCommand() *cobra.Command {
	var eapi string
	cmd := &cobra.Command{
		Use:   "unmerge <token>",
		Short: "Remove an installed package, matched by atom or bare package name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			installed, err := loadVDB(global.vdbFile)
			if err != nil {
				return err
			}
			ops, err := resolver.Unmerge(installed, args[0], eapi)
			if err != nil {
				return err
			}
			for _, op := range ops {
				fmt.Fprintln(cmd.OutOrStdout(), op.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eapi, "eapi", "8", "EAPI to parse an atom-form token under")
	return cmd
}

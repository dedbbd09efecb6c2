package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgorny/pkgcore/updates"
)

func newListUpdatesCommand() *cobra.Command {
	var eapi string
	cmd := &cobra.Command{
		Use:   "list-updates <profiles-dir>",
		Short: "Print the move/slotmove directives found under a profiles/updates directory, chained",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ups, err := loadUpdates(args[0], eapi)
			if err != nil {
				return err
			}
			for _, u := range ups {
				switch u.Kind {
				case updates.Move:
					fmt.Fprintf(cmd.OutOrStdout(), "move %s -> %s\n", u.From, u.To)
				case updates.SlotMove:
					fmt.Fprintf(cmd.OutOrStdout(), "slotmove %s %s -> %s\n", u.From, u.OldSlot, u.NewSlot)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eapi, "eapi", "8", "EAPI updates files are parsed under")
	return cmd
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sctrl/eventstack/internal/es"
)

func newLogCommand(opts *options) *cobra.Command {
	var (
		from int64
		to   int64
	)

	cmd := &cobra.Command{
		Use:   "log <entity-type> <entity-id>",
		Short: "Print an entity's event log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			stack, err := s.GetStack(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			events, err := stack.Slice(cmd.Context(), from, to)
			if err != nil {
				return err
			}

			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, ev := range events {
					if err := enc.Encode(ev); err != nil {
						return err
					}
				}
				return nil
			}

			for _, ev := range events {
				payload, err := json.Marshal(ev.Payload)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-24s %s\n", ev.ID, ev.Type, payload)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "first event id to print")
	cmd.Flags().Int64Var(&to, "to", es.NoEventID, "last event id to print (default: tip)")
	return cmd
}

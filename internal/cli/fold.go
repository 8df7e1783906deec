package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sctrl/eventstack/internal/engine"
	"github.com/sctrl/eventstack/internal/es"
	"github.com/sctrl/eventstack/internal/flow"
)

func newFoldCommand(opts *options) *cobra.Command {
	var specPath string

	cmd := &cobra.Command{
		Use:   "fold <entity-type> <entity-id>",
		Short: "Fold a flow spec over an entity's events and print the state",
		Long: `Fold a declarative flow spec (YAML) over an entity's event log from the
beginning and print the resulting state. The fold is read-only and uncached.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(specPath)
			if err != nil {
				return fmt.Errorf("read spec: %w", err)
			}
			spec, err := flow.ParseSpec(data)
			if err != nil {
				return err
			}

			s, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			stack, err := s.GetStack(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			view := &es.ViewDefinition{
				Type:      specPath,
				StackType: args[0],
				Default:   es.State(flow.InitState(spec)),
				Flows:     []flow.Spec{spec},
			}
			state, err := engine.CompileView(cmd.Context(), stack, view, nil)
			if err != nil {
				return err
			}

			if opts.format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(state)
			}
			rendered, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(rendered))
			return nil
		},
	}

	cmd.Flags().StringVar(&specPath, "spec", "", "path to the flow spec YAML")
	cmd.MarkFlagRequired("spec")
	return cmd
}

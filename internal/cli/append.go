package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sctrl/eventstack/internal/engine"
	"github.com/sctrl/eventstack/internal/es"
)

func newAppendCommand(opts *options) *cobra.Command {
	var (
		payloadJSON string
		eventID     int64
	)

	cmd := &cobra.Command{
		Use:   "append <entity-type> <entity-id> <event-type>",
		Short: "Append an event to an entity's stack",
		Long: `Append an event to an entity's stack, creating the stack on first use.

Without --id the store assigns the next event id. With --id the append is
sequenced: it succeeds only if the id is exactly one past the current tail,
failing with a sequence conflict otherwise.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, entityID, eventType := args[0], args[1], args[2]

			payload := map[string]any{}
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					return fmt.Errorf("parse --payload: %w", err)
				}
			}

			s, closeStore, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			stack, err := s.GetOrCreateStack(cmd.Context(), entityType, entityID)
			if err != nil {
				return err
			}

			ev := es.Event{
				Type: eventType,
				Metadata: map[string]any{
					"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
					"uid":       engine.UUIDv7Generator{}.Generate(),
				},
				Payload: payload,
			}

			if eventID >= 0 {
				ev.ID = eventID
				err = stack.CommitEvent(cmd.Context(), ev)
			} else {
				err = stack.CommitAnonymousEvent(cmd.Context(), ev)
			}
			if err != nil {
				return err
			}

			slog.Debug("event appended", "namespace", stack.Namespace(), "type", eventType)
			if opts.format == "json" {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(ev)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "appended %s to %s\n", eventType, stack.Namespace())
			return nil
		},
	}

	cmd.Flags().StringVar(&payloadJSON, "payload", "", "event payload as a JSON object")
	cmd.Flags().Int64Var(&eventID, "id", -1, "explicit event id for a sequenced append")
	return cmd
}

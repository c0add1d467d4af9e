package cli

import (
	"fmt"
	"net/url"

	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/spf13/cobra"
)

func newAssignCmd() *cobra.Command {
	var kind, occupy, message string
	var bypass bool
	cmd := &cobra.Command{
		Use:   "assign <container_id> <customer_id>...",
		Short: "Place one customer or a group into a container (operator)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"customer_ids":   args[1:],
				"kind":           kind,
				"occupy_date":    occupy,
				"bypass":         bypass,
				"commit_message": message,
			}
			var as []models.Assignment
			if err := client.Post(cmd.Context(), "/api/containers/"+url.PathEscape(args[0])+"/assignments", body, &as); err != nil {
				return fmt.Errorf("assign: %w", err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), as)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned %d card(s)\n", len(as))
			printAssignments(cmd.OutOrStdout(), as)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", "", "SINGLE, COUPLE or FAMILY (default derived from the number of customers)")
	f.StringVar(&occupy, "occupy", "", "DIKSHA date to reserve (YYYY-MM-DD or BYPASS); MEETING only")
	f.BoolVar(&bypass, "bypass", false, "Skip the DIKSHA reservation; MEETING only")
	f.StringVarP(&message, "message", "m", "", "Commit message recorded in the audit trail")
	return cmd
}

// newTransitionCmd builds confirm/out/done, which share a shape.
func newTransitionCmd(name, short string, returnsCard bool) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   name + " <assignment_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/assignments/" + url.PathEscape(args[0]) + "/" + name
			body := map[string]any{"commit_message": message}
			if !returnsCard {
				if err := client.Post(cmd.Context(), path, body, nil); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Assignment %s: %s ok\n", args[0], name)
				return nil
			}
			var a models.Assignment
			if err := client.Post(cmd.Context(), path, body, &a); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), a)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assignment %s: %s\n", a.ID, a.CardStatus)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message recorded in the audit trail")
	return cmd
}

func newConfirmCmd() *cobra.Command {
	return newTransitionCmd("confirm", "Qualify a MEETING card and seat it on its DIKSHA date (operator)", true)
}

func newOutCmd() *cobra.Command {
	return newTransitionCmd("out", "Remove a card from its container (operator)", false)
}

func newDoneCmd() *cobra.Command {
	return newTransitionCmd("done", "Mark a DIKSHA card as completed (operator)", true)
}

func newRejectCmd() *cobra.Command {
	var action, message string
	cmd := &cobra.Command{
		Use:   "reject <assignment_id>",
		Short: "Reject a MEETING card (operator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"action": action, "commit_message": message}
			if err := client.Post(cmd.Context(), "/api/assignments/"+url.PathEscape(args[0])+"/reject", body, nil); err != nil {
				return fmt.Errorf("reject: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assignment %s rejected (%s)\n", args[0], action)
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", string(models.RejectTrash), "TRASH, PUSH_PENDING or APPROVE_FOR")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message recorded in the audit trail")
	return cmd
}

func newMoveCmd() *cobra.Command {
	var date, occupied, mode, reason, message string
	var ids []string
	var version int64
	cmd := &cobra.Command{
		Use:   "move <assignment_id>",
		Short: "Move a card (or part of its group) to another date (operator)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"members":           map[string]any{"mode": mode, "ids": ids},
				"new_date":          date,
				"new_occupied_date": occupied,
				"reason":            reason,
				"expected_version":  version,
				"commit_message":    message,
			}
			var as []models.Assignment
			if err := client.Post(cmd.Context(), "/api/assignments/"+url.PathEscape(args[0])+"/move", body, &as); err != nil {
				return fmt.Errorf("move: %w", err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), as)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %d card(s)\n", len(as))
			printAssignments(cmd.OutOrStdout(), as)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&date, "date", "", "New date (YYYY-MM-DD); blank keeps the current date")
	f.StringVar(&occupied, "occupied", "", "New DIKSHA date (YYYY-MM-DD or BYPASS); MEETING only")
	f.StringVar(&mode, "mode", "ALL", "Members to move: ALL, SINGLE or IDS")
	f.StringSliceVar(&ids, "ids", nil, "Assignment ids to move with --mode IDS")
	f.Int64Var(&version, "version", 0, "Card version last read (from 'assignments')")
	f.StringVar(&reason, "reason", "", "Reason recorded in the move history")
	f.StringVarP(&message, "message", "m", "", "Commit message recorded in the audit trail")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

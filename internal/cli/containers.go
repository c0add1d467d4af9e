package cli

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/dalemusser/dikshahub/internal/app/scheduling"
	"github.com/dalemusser/dikshahub/internal/domain/models"
	"github.com/spf13/cobra"
)

type containerView struct {
	models.Container
	Capacity scheduling.Capacity   `json:"capacity"`
	Lock     scheduling.LockStatus `json:"lock"`
}

func printCapacity(w io.Writer, cp scheduling.Capacity) {
	fmt.Fprintf(w, "Container: %s\n", cp.ContainerID)
	fmt.Fprintf(w, "  Date:      %s %s\n", cp.Stage, cp.Date)
	fmt.Fprintf(w, "  Limit:     %d\n", cp.Limit)
	fmt.Fprintf(w, "  Used:      %d (%d assigned, %d reserved)\n", cp.Used, cp.Assigned, cp.Reserved)
	fmt.Fprintf(w, "  Remaining: %d\n", cp.Remaining)
	fmt.Fprintf(w, "  Fill:      %.0f%% (%s)\n", cp.Percent, cp.Tier)
}

func printLock(w io.Writer, ls scheduling.LockStatus) {
	state := "open"
	switch {
	case ls.IsLocked:
		state = "LOCKED"
	case ls.IsUnlocked:
		state = "manually unlocked"
	}
	fmt.Fprintf(w, "  Lock:      %s\n", state)
	if ls.UnlockExpiresAt != nil {
		fmt.Fprintf(w, "  Unlock until: %s\n", ls.UnlockExpiresAt.Format(time.RFC3339))
	}
}

func printAssignments(w io.Writer, as []models.Assignment) {
	if len(as) == 0 {
		fmt.Fprintln(w, "No assignments found.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-14s  %-7s  %-9s  %-10s  %-7s  %s\n", "ID", "CUSTOMER", "KIND", "STATUS", "OCCUPIED", "VERSION", "PAIR")
	for _, a := range as {
		occ := a.OccupiedDate
		if a.Bypass {
			occ = models.BypassSentinel
		}
		fmt.Fprintf(w, "%-36s  %-14s  %-7s  %-9s  %-10s  %-7d  %s\n",
			a.ID, a.CustomerID, a.Kind, a.CardStatus, occ, a.Version, a.PairID)
	}
}

func newResolveCmd() *cobra.Command {
	var stage string
	cmd := &cobra.Command{
		Use:   "resolve <date>",
		Short: "Find (or create) the container for a date and stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"date": {args[0]}, "stage": {stage}}
			var c containerView
			if err := client.Get(cmd.Context(), "/api/containers/resolve?"+q.Encode(), &c); err != nil {
				return fmt.Errorf("resolve: %w", err)
			}
			out := cmd.OutOrStdout()
			if flagJSON {
				return printJSON(out, c)
			}
			printCapacity(out, c.Capacity)
			printLock(out, c.Lock)
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "MEETING", "Stage: MEETING or DIKSHA")
	return cmd
}

func newCapacityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capacity <container_id>",
		Short: "Show a container's limit and live usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cp scheduling.Capacity
			if err := client.Get(cmd.Context(), "/api/containers/"+url.PathEscape(args[0])+"/capacity", &cp); err != nil {
				return fmt.Errorf("capacity: %w", err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), cp)
			}
			printCapacity(cmd.OutOrStdout(), cp)
			return nil
		},
	}
}

func newRangeCmd() *cobra.Command {
	var from, to, stage string
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Show capacity for every day in a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"from": {from}, "to": {to}, "stage": {stage}}
			var days map[string]scheduling.Capacity
			if err := client.Get(cmd.Context(), "/api/capacity?"+q.Encode(), &days); err != nil {
				return fmt.Errorf("capacity range: %w", err)
			}
			out := cmd.OutOrStdout()
			if flagJSON {
				return printJSON(out, days)
			}
			dates := make([]string, 0, len(days))
			for d := range days {
				dates = append(dates, d)
			}
			sort.Strings(dates)
			fmt.Fprintf(out, "%-10s  %5s  %5s  %9s  %s\n", "DATE", "LIMIT", "USED", "REMAINING", "TIER")
			for _, d := range dates {
				cp := days[d]
				fmt.Fprintf(out, "%-10s  %5d  %5d  %9d  %s\n", d, cp.Limit, cp.Used, cp.Remaining, cp.Tier)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&stage, "stage", "MEETING", "Stage: MEETING or DIKSHA")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newLockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock <container_id>",
		Short: "Show whether a container is locked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ls scheduling.LockStatus
			if err := client.Get(cmd.Context(), "/api/containers/"+url.PathEscape(args[0])+"/lock", &ls); err != nil {
				return fmt.Errorf("lock status: %w", err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), ls)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Container: %s\n", ls.ContainerID)
			printLock(cmd.OutOrStdout(), ls)
			return nil
		},
	}
}

func newUnlockCmd() *cobra.Command {
	var minutes int
	var message string
	cmd := &cobra.Command{
		Use:   "unlock <container_id>",
		Short: "Open a container past its limit for a number of minutes (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"minutes": minutes, "commit_message": message}
			var ls scheduling.LockStatus
			if err := client.Post(cmd.Context(), "/api/containers/"+url.PathEscape(args[0])+"/unlock", body, &ls); err != nil {
				return fmt.Errorf("unlock: %w", err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), ls)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Container %s unlocked\n", ls.ContainerID)
			printLock(cmd.OutOrStdout(), ls)
			return nil
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 30, "Unlock duration in minutes (1-1440)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message recorded in the audit trail")
	return cmd
}

func newSetLimitCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "set-limit <container_id> <limit>",
		Short: "Change a container's capacity (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("limit must be a whole number: %w", err)
			}
			body := map[string]any{"limit": limit, "commit_message": message}
			var cp scheduling.Capacity
			if err := client.Put(cmd.Context(), "/api/containers/"+url.PathEscape(args[0])+"/limit", body, &cp); err != nil {
				return fmt.Errorf("set limit: %w", err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), cp)
			}
			printCapacity(cmd.OutOrStdout(), cp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message recorded in the audit trail")
	return cmd
}

func newAssignmentsCmd() *cobra.Command {
	var reserved bool
	cmd := &cobra.Command{
		Use:   "assignments <container_id>",
		Short: "List the cards in a container (or the reservations holding its seats)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/containers/" + url.PathEscape(args[0]) + "/assignments"
			if reserved {
				path = "/api/containers/" + url.PathEscape(args[0]) + "/reserved"
			}
			var as []models.Assignment
			if err := client.Get(cmd.Context(), path, &as); err != nil {
				return fmt.Errorf("list assignments: %w", err)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), as)
			}
			printAssignments(cmd.OutOrStdout(), as)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reserved, "reserved", false, "List MEETING cards reserving seats on this DIKSHA container")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var date, stage string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List confirmed and rejected cards for a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"date": {date}, "stage": {stage}}
			var recs []models.HistoryRecord
			if err := client.Get(cmd.Context(), "/api/history?"+q.Encode(), &recs); err != nil {
				return fmt.Errorf("history: %w", err)
			}
			out := cmd.OutOrStdout()
			if flagJSON {
				return printJSON(out, recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No history found.")
				return nil
			}
			fmt.Fprintf(out, "%-20s  %-9s  %-14s  %-7s  %-12s  %-20s  %s\n", "AT", "EVENT", "CUSTOMER", "KIND", "DETAIL", "BY", "MESSAGE")
			for _, h := range recs {
				detail := h.OccupiedDate
				if h.Event == models.HistoryRejected {
					detail = string(h.RejectAction)
				} else if h.Bypass {
					detail = models.BypassSentinel
				}
				fmt.Fprintf(out, "%-20s  %-9s  %-14s  %-7s  %-12s  %-20s  %s\n",
					h.At.Format(time.RFC3339), h.Event, h.CustomerID, h.Kind, detail, h.ActorName, h.CommitMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&stage, "stage", "MEETING", "Stage: MEETING or DIKSHA")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Clear lapsed manual unlocks now (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res struct {
				Relocked int `json:"relocked"`
			}
			if err := client.Post(cmd.Context(), "/api/maintenance/sweep-unlocks", nil, &res); err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Relocked %d container(s)\n", res.Relocked)
			return nil
		},
	}
}

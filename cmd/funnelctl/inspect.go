package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"leadfunnel_backend/internal/booking"
	"leadfunnel_backend/internal/campus"
	"leadfunnel_backend/internal/objection"

	"github.com/spf13/cobra"
)

func advisorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advisors",
		Short: "Inspect the advisor roster",
	}
	cmd.AddCommand(advisorsListCmd())
	return cmd
}

func advisorsListCmd() *cobra.Command {
	var locationID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List advisors per location with their round-robin counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			registry, err := campus.Load(cfg.GetCampusConfigPath())
			if err != nil {
				return err
			}
			locations := registry.LocationIDs()
			if locationID != "" {
				if _, ok := registry.Get(locationID); !ok {
					return fmt.Errorf("unknown location %q", locationID)
				}
				locations = []string{locationID}
			}

			repo := booking.NewRepository(pool)
			var rows []booking.Advisor
			for _, id := range locations {
				items, err := repo.ListByLocation(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("list advisors for %s: %w", id, err)
				}
				rows = append(rows, items...)
			}
			return writeAdvisors(cmd.OutOrStdout(), registry, rows)
		},
	}
	cmd.Flags().StringVar(&locationID, "location", "", "only list this location id")
	return cmd
}

func writeAdvisors(out io.Writer, names interface{ Name(string) string }, advisors []booking.Advisor) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CAMPUS\tNAME\tACTIVE\tASSIGNED\tLAST ASSIGNED\tLINK")
	for _, a := range advisors {
		last := "-"
		if a.LastAssignedAt != nil {
			last = a.LastAssignedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\t%s\n", names.Name(a.LocationID), a.Name, a.Active, a.AssignedCount, last, a.BookingLink)
	}
	return w.Flush()
}

func objectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objections",
		Short: "Inspect the objection playbook",
	}
	cmd.AddCommand(objectionsListCmd())
	cmd.AddCommand(objectionsMatchCmd())
	return cmd
}

func objectionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Load the active playbook and print its categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d active entries\n%s\n", snap.Len(), snap.Summary())
			return nil
		},
	}
}

func objectionsMatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match <text>",
		Short: "Show the playbook answer a message would get",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := loadSnapshot(cmd)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			e, ok := snap.Match(text)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "no match")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "category: %s (priority %d)\n%s\n", e.Category, e.Priority, snap.Answer(text))
			return nil
		},
	}
}

// loadSnapshot refreshes a cache against the database, the same path the
// admin refresh endpoint takes.
func loadSnapshot(cmd *cobra.Command) (*objection.Snapshot, error) {
	_, pool, err := connect(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	return objection.NewCache(objection.NewRepository(pool), newLogger()).Refresh(cmd.Context())
}

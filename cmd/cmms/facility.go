package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cmms/internal/domain"
	"cmms/internal/engine"
	"cmms/internal/repo"
)

func facilityCmd() *cobra.Command {
	fc := &cobra.Command{Use: "facility", Short: "Register buildings, rooms, levels and outdoor areas"}
	fc.AddCommand(facilityAddCmd())
	fc.AddCommand(facilityListCmd())
	fc.AddCommand(facilityDeactivateCmd())
	return fc
}

func facilityAddCmd() *cobra.Command {
	var opts engine.FacilityCreateOptions
	cmd := &cobra.Command{
		Use:   "add <kind> <id>",
		Short: "Register a facility",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Kind = domain.FacilityType(args[0])
			opts.ID = args[1]
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.CreateFacility(ctx, opts)
				if err != nil {
					return err
				}
				return printResult(f, fmt.Sprintf("%s registered", f.Key()))
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.BuildingID, "building", "", "owning building (rooms and levels)")
	cmd.Flags().StringVar(&opts.Detail, "detail", "", "room type, food type or description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func facilityListCmd() *cobra.Command {
	var f repo.FacilityFilters
	var kind string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered facilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Kind = domain.FacilityType(kind)
			f.ActiveOnly = !all
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListFacilities(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Kind", "Building", "ID", "Name", "Detail", "Active")
				for _, it := range items {
					tw.AppendRow(table.Row{it.Kind, it.BuildingID, it.ID, it.Name, it.Detail, it.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "facility kind filter")
	cmd.Flags().StringVar(&f.BuildingID, "building", "", "building filter")
	cmd.Flags().BoolVar(&all, "all", false, "include retired facilities")
	return cmd
}

func facilityDeactivateCmd() *cobra.Command {
	var building string
	cmd := &cobra.Command{
		Use:   "deactivate <kind> <id>",
		Short: "Retire a facility",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := domain.FacilityKey{Kind: domain.FacilityType(args[0]), BuildingID: building, ID: args[1]}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				f, err := e.DeactivateFacility(ctx, key, actorID())
				if err != nil {
					return err
				}
				return printResult(f, fmt.Sprintf("%s deactivated", f.Key()))
			})
		},
	}
	cmd.Flags().StringVar(&building, "building", "", "owning building (rooms and levels)")
	return cmd
}

func reportCmd() *cobra.Command {
	rp := &cobra.Command{Use: "report", Short: "Scheduling and staffing reports"}
	rp.AddCommand(reportActivitiesCmd())
	rp.AddCommand(reportWorkersCmd())
	return rp
}

// windowFlags parses --from/--to into q.
func windowFlags(from, to string, q *engine.ActivityQuery) error {
	var err error
	if q.From, err = optionalTimestamp(from); err != nil {
		return err
	}
	q.To, err = optionalTimestamp(to)
	return err
}

func reportActivitiesCmd() *cobra.Command {
	var from, to, building string
	var types []string
	cmd := &cobra.Command{
		Use:   "activities",
		Short: "Active activities of the given types in a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := engine.ActivityQuery{BuildingID: building}
			if err := windowFlags(from, to, &q); err != nil {
				return err
			}
			for _, t := range types {
				q.Types = append(q.Types, domain.ActivityType(t))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.QueryActivities(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Scheduled", "ID", "Type", "Status", "Facility", "Title")
				for _, a := range items {
					tw.AppendRow(table.Row{a.ScheduledAt.Format(time.RFC3339), a.ID, a.Type, a.Status, facilityLabel(a.Facility), a.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "RFC3339 window start")
	cmd.Flags().StringVar(&to, "to", "", "RFC3339 window end")
	cmd.Flags().StringVar(&building, "building", "", "building filter")
	cmd.Flags().StringSliceVar(&types, "type", []string{string(domain.ActivityCleaning)}, "activity types")
	return cmd
}

func reportWorkersCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Staff on completed activities per type and area",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q engine.ActivityQuery
			if err := windowFlags(from, to, &q); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.WorkerCounts(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable("Type", "Area", "Workers")
				for _, r := range rows {
					tw.AppendRow(table.Row{r.ActivityType, r.Area, r.Workers})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "RFC3339 window start")
	cmd.Flags().StringVar(&to, "to", "", "RFC3339 window end")
	return cmd
}

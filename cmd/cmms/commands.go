package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cmms/internal/domain"
	"cmms/internal/engine"
	"cmms/internal/engine/auth"
	"cmms/internal/repo"
)

func repoEventFilters(evtType, entityKind, entityID string) repo.EventFilters {
	return repo.EventFilters{Type: evtType, EntityKind: entityKind, EntityID: entityID}
}

func staffCmd() *cobra.Command {
	st := &cobra.Command{Use: "staff", Short: "Manage staff members"}
	st.AddCommand(staffAddCmd())
	st.AddCommand(staffListCmd())
	st.AddCommand(staffShowCmd())
	st.AddCommand(staffRoleCmd())
	st.AddCommand(staffDeactivateCmd())
	return st
}

func staffAddCmd() *cobra.Command {
	var opts engine.StaffCreateOptions
	var level int
	var hired string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			hireDate, err := optionalDate(hired)
			if err != nil {
				return err
			}
			opts.HireDate = hireDate
			opts.RoleLevel = domain.RoleLevel(level)
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.CreateStaff(ctx, opts)
				if err != nil {
					return err
				}
				return printResult(st, fmt.Sprintf("staff %s (%s) created as %s", st.ID, st.FullName(), st.RoleLevel))
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "staff id (generated when empty)")
	cmd.Flags().StringVar(&opts.StaffNumber, "number", "", "staff number")
	cmd.Flags().StringVar(&opts.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&opts.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().IntVar(&level, "level", 3, "role level (1 executive, 2 manager, 3 worker)")
	cmd.Flags().StringVar(&hired, "hire-date", "", "hire date YYYY-MM-DD")
	return cmd
}

func staffListCmd() *cobra.Command {
	var level int
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staff",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListStaff(ctx, repo.StaffFilters{RoleLevel: domain.RoleLevel(level), ActiveOnly: !all})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Number", "Name", "Role", "Active")
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.StaffNumber, s.FullName(), s.RoleLevel, s.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "role level filter")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive staff")
	return cmd
}

func staffShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <staff-id>",
		Short: "Show a staff member with current supervision edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.Repo.GetStaff(ctx, args[0])
				if err != nil {
					return err
				}
				sups, err := e.Supervisors(ctx, st.ID, e.Today())
				if err != nil {
					return err
				}
				subs, err := e.Subordinates(ctx, st.ID, e.Today())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"staff": st, "supervisors": sups, "subordinates": subs})
				}
				fmt.Printf("%s  %s  %s  active=%v\n", st.ID, st.FullName(), st.RoleLevel, st.Active)
				for _, s := range sups {
					fmt.Printf("  reports to %s since %s\n", s.SupervisorStaffID, s.StartDate.Format(domain.DateLayout))
				}
				for _, s := range subs {
					fmt.Printf("  supervises %s since %s\n", s.SubordinateStaffID, s.StartDate.Format(domain.DateLayout))
				}
				return nil
			})
		},
	}
}

func staffRoleCmd() *cobra.Command {
	var level int
	cmd := &cobra.Command{
		Use:   "role <staff-id>",
		Short: "Change a staff member's role level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.ChangeStaffRole(ctx, args[0], domain.RoleLevel(level), actorID())
				if err != nil {
					return err
				}
				return printResult(st, fmt.Sprintf("staff %s is now %s", st.ID, st.RoleLevel))
			})
		},
	}
	cmd.Flags().IntVar(&level, "level", 0, "new role level")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func staffDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <staff-id>",
		Short: "Deactivate a staff member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				st, err := e.DeactivateStaff(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printResult(st, fmt.Sprintf("staff %s deactivated", st.ID))
			})
		},
	}
}

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Manage maintenance activities"}
	act.AddCommand(activityCreateCmd())
	act.AddCommand(activityListCmd())
	act.AddCommand(activityShowCmd())
	act.AddCommand(activityTransitionCmd())
	act.AddCommand(activityDeactivateCmd())
	act.AddCommand(activityStatsCmd())
	return act
}

// facilityFlags binds --facility and one flag per facility id.
func facilityFlags(cmd *cobra.Command, f *domain.FacilityRef, typ *string) {
	cmd.Flags().StringVar(typ, "facility", "", "facility type (building, room, level, square, gate, canteen, area, none)")
	cmd.Flags().StringVar(&f.BuildingID, "building", "", "building id")
	cmd.Flags().StringVar(&f.RoomID, "room", "", "room id")
	cmd.Flags().StringVar(&f.LevelID, "level", "", "level id")
	cmd.Flags().StringVar(&f.SquareID, "square", "", "square id")
	cmd.Flags().StringVar(&f.GateID, "gate", "", "gate id")
	cmd.Flags().StringVar(&f.CanteenID, "canteen", "", "canteen id")
	cmd.Flags().StringVar(&f.AreaID, "area", "", "area id")
}

func activityCreateCmd() *cobra.Command {
	var opts engine.ActivityCreateOptions
	var typ, priority, hazard, scheduled, facilityType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Plan a maintenance activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := optionalTimestamp(scheduled)
			if err != nil {
				return err
			}
			if at == nil {
				return fmt.Errorf("--scheduled-at required")
			}
			opts.ScheduledAt = *at
			opts.Type = domain.ActivityType(typ)
			opts.Priority = domain.Level(priority)
			opts.HazardLevel = domain.Level(hazard)
			opts.Facility.Type = domain.FacilityType(facilityType)
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printResult(a, fmt.Sprintf("activity %s planned for %s", a.ID, a.ScheduledAt.Format(time.RFC3339)))
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "activity id (generated when empty)")
	cmd.Flags().StringVar(&typ, "type", "", "cleaning, repair or weather_response")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	cmd.Flags().StringVar(&hazard, "hazard", "", "low, medium or high")
	cmd.Flags().StringVar(&scheduled, "scheduled-at", "", "RFC3339 start time")
	cmd.Flags().Float64Var(&opts.ExpectedDowntimeHours, "downtime-hours", 0, "expected downtime in hours")
	cmd.Flags().StringVar(&opts.CreatedByStaffID, "created-by", "", "creating staff id")
	facilityFlags(cmd, &opts.Facility, &facilityType)
	_ = cmd.MarkFlagRequired("created-by")
	return cmd
}

func activityListCmd() *cobra.Command {
	var f repo.ActivityFilters
	var status, typ, facility string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Status = domain.ActivityStatus(status)
			f.Type = domain.ActivityType(typ)
			f.FacilityType = domain.FacilityType(facility)
			f.ActiveOnly = !all
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListActivities(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Type", "Status", "Priority", "Scheduled", "Facility", "Title")
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Type, a.Status, a.Priority, a.ScheduledAt.Format(time.RFC3339), facilityLabel(a.Facility), a.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&typ, "type", "", "activity type filter")
	cmd.Flags().StringVar(&facility, "facility", "", "facility type filter")
	cmd.Flags().StringVar(&f.CreatedBy, "created-by", "", "creator filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum rows")
	cmd.Flags().BoolVar(&all, "all", false, "include deactivated activities")
	return cmd
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <activity-id>",
		Short: "Show an activity with its active assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetActivity(ctx, args[0])
				if err != nil {
					return err
				}
				assigned, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{ActivityID: a.ID, ActiveOnly: true})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"activity": a, "assignments": assigned})
				}
				fmt.Printf("%s  %s  %s  %s\n", a.ID, a.Type, a.Status, facilityLabel(a.Facility))
				if a.Title != "" {
					fmt.Println(a.Title)
				}
				fmt.Printf("scheduled %s, hazard %s, priority %s\n", a.ScheduledAt.Format(time.RFC3339), a.HazardLevel, a.Priority)
				if a.ActualCompletionAt != nil {
					fmt.Printf("completed %s\n", a.ActualCompletionAt.Format(time.RFC3339))
				}
				for _, w := range assigned {
					fmt.Printf("  %s  %s\n", w.StaffID, w.Responsibility)
				}
				return nil
			})
		},
	}
}

func activityTransitionCmd() *cobra.Command {
	var completed string
	cmd := &cobra.Command{
		Use:   "transition <activity-id> <status>",
		Short: "Move an activity to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := optionalTimestamp(completed)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.TransitionActivity(ctx, engine.ActivityTransitionOptions{
					ID:          args[0],
					Status:      domain.ActivityStatus(args[1]),
					CompletedAt: at,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printResult(a, fmt.Sprintf("activity %s is %s", a.ID, a.Status))
			})
		},
	}
	cmd.Flags().StringVar(&completed, "completed-at", "", "RFC3339 completion time, required for completed")
	return cmd
}

func activityDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <activity-id>",
		Short: "Hide an activity from active listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.DeactivateActivity(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printResult(a, fmt.Sprintf("activity %s deactivated", a.ID))
			})
		},
	}
}

func activityStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count active activities by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountActivitiesByStatus(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := newTable("Status", "Count")
				for _, st := range []domain.ActivityStatus{domain.StatusPlanned, domain.StatusInProgress, domain.StatusCompleted, domain.StatusCancelled} {
					tw.AppendRow(table.Row{st, counts[string(st)]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func facilityLabel(f domain.FacilityRef) string {
	parts := []string{string(f.Type)}
	for _, field := range f.Fields() {
		if field.Value != "" {
			parts = append(parts, strings.TrimSuffix(field.Name, "_id")+"="+field.Value)
		}
	}
	return strings.Join(parts, " ")
}

func assignCmd() *cobra.Command {
	as := &cobra.Command{Use: "assign", Short: "Assign staff to activities"}
	as.AddCommand(assignAddCmd())
	as.AddCommand(assignBatchCmd())
	as.AddCommand(assignRemoveCmd())
	as.AddCommand(assignUpdateCmd())
	as.AddCommand(assignListCmd())
	return as
}

func assignAddCmd() *cobra.Command {
	var responsibility string
	cmd := &cobra.Command{
		Use:   "add <activity-id> <staff-id>",
		Short: "Assign a staff member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.AssignStaff(ctx, engine.AssignOptions{
					ActivityID:     args[0],
					StaffID:        args[1],
					Responsibility: responsibility,
					ActorID:        actorID(),
				})
				if err != nil {
					return err
				}
				return printResult(w, fmt.Sprintf("%s assigned to %s", w.StaffID, w.ActivityID))
			})
		},
	}
	cmd.Flags().StringVar(&responsibility, "responsibility", "", "responsibility on the activity")
	return cmd
}

func assignBatchCmd() *cobra.Command {
	var responsibility string
	cmd := &cobra.Command{
		Use:   "batch <activity-id> <staff-id>...",
		Short: "Assign several staff members; each succeeds or fails on its own",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.BatchAssign(ctx, engine.BatchAssignOptions{
					ActivityID:     args[0],
					StaffIDs:       args[1:],
					Responsibility: responsibility,
					ActorID:        actorID(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%d assigned, %d failed\n", res.Assigned, len(res.Failures))
				if len(res.Failures) > 0 {
					tw := newTable("Staff", "Code", "Error")
					for _, f := range res.Failures {
						tw.AppendRow(table.Row{f.StaffID, f.Code, f.Error})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&responsibility, "responsibility", "", "responsibility for every assignment")
	return cmd
}

func assignRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <activity-id> <staff-id>",
		Short: "End an active assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.UnassignStaff(ctx, args[1], args[0], actorID())
				if err != nil {
					return err
				}
				return printResult(w, fmt.Sprintf("%s removed from %s", w.StaffID, w.ActivityID))
			})
		},
	}
}

func assignUpdateCmd() *cobra.Command {
	var responsibility string
	cmd := &cobra.Command{
		Use:   "update <activity-id> <staff-id>",
		Short: "Change the responsibility on an active assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.UpdateResponsibility(ctx, args[1], args[0], responsibility, actorID())
				if err != nil {
					return err
				}
				return printResult(w, fmt.Sprintf("%s on %s: %s", w.StaffID, w.ActivityID, w.Responsibility))
			})
		},
	}
	cmd.Flags().StringVar(&responsibility, "responsibility", "", "new responsibility")
	_ = cmd.MarkFlagRequired("responsibility")
	return cmd
}

func assignListCmd() *cobra.Command {
	var f repo.AssignmentFilters
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assignments by activity or staff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.ActivityID == "" && f.StaffID == "" {
				return fmt.Errorf("--activity or --staff required")
			}
			f.ActiveOnly = !all
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAssignments(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Activity", "Staff", "Responsibility", "Assigned", "Active")
				for _, w := range items {
					tw.AppendRow(table.Row{w.ActivityID, w.StaffID, w.Responsibility, w.AssignedAt.Format(time.RFC3339), w.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ActivityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&f.StaffID, "staff", "", "staff id")
	cmd.Flags().BoolVar(&all, "all", false, "include ended assignments")
	return cmd
}

func superviseCmd() *cobra.Command {
	sv := &cobra.Command{Use: "supervise", Short: "Manage supervision edges"}
	sv.AddCommand(superviseAddCmd())
	sv.AddCommand(superviseCloseCmd())
	sv.AddCommand(superviseListCmd())
	return sv
}

func superviseAddCmd() *cobra.Command {
	var start, end, id string
	cmd := &cobra.Command{
		Use:   "add <supervisor-id> <subordinate-id>",
		Short: "Record that one staff member supervises another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := optionalDate(start)
			if err != nil {
				return err
			}
			endDate, err := optionalDate(end)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.SuperviseCreateOptions{
					ID:            id,
					SupervisorID:  args[0],
					SubordinateID: args[1],
					EndDate:       endDate,
					ActorID:       actorID(),
				}
				if startDate != nil {
					opts.StartDate = *startDate
				} else {
					opts.StartDate = e.Today()
				}
				s, err := e.CreateSupervise(ctx, opts)
				if err != nil {
					return err
				}
				return printResult(s, fmt.Sprintf("%s supervises %s from %s", s.SupervisorStaffID, s.SubordinateStaffID, s.StartDate.Format(domain.DateLayout)))
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "edge id (generated when empty)")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	return cmd
}

func superviseCloseCmd() *cobra.Command {
	var end string
	cmd := &cobra.Command{
		Use:   "close <edge-id>",
		Short: "Set the end date of a supervision edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endDate, err := optionalDate(end)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				day := e.Today()
				if endDate != nil {
					day = *endDate
				}
				s, err := e.CloseSupervise(ctx, args[0], day, actorID())
				if err != nil {
					return err
				}
				return printResult(s, fmt.Sprintf("edge %s ends %s", s.ID, day.Format(domain.DateLayout)))
			})
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD (default today)")
	return cmd
}

func superviseListCmd() *cobra.Command {
	var f repo.SuperviseFilters
	var on string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List supervision edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := optionalDate(on)
			if err != nil {
				return err
			}
			f.ActiveOn = day
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListSupervise(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Supervisor", "Subordinate", "Start", "End")
				for _, s := range items {
					endDate := ""
					if s.EndDate != nil {
						endDate = s.EndDate.Format(domain.DateLayout)
					}
					tw.AppendRow(table.Row{s.ID, s.SupervisorStaffID, s.SubordinateStaffID, s.StartDate.Format(domain.DateLayout), endDate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.SupervisorID, "supervisor", "", "supervisor staff id")
	cmd.Flags().StringVar(&f.SubordinateID, "subordinate", "", "subordinate staff id")
	cmd.Flags().StringVar(&on, "on", "", "only edges active on this date YYYY-MM-DD")
	return cmd
}

func rolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List role levels and their permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				roles, err := e.Repo.ListRoles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(roles)
				}
				tw := newTable("Level", "Role", "Permissions")
				for _, r := range roles {
					tw.AppendRow(table.Row{int(r.Level), r.Name, strings.Join(auth.PermissionsFor(r.Level), ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

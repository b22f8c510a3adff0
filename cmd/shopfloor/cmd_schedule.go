/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/shopfloor/internal/cascade"
	"github.com/friendsincode/shopfloor/internal/timeline"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Compute work schedules",
}

var scheduleComputeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Spread a duration over the working calendar",
	RunE:  runScheduleCompute,
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect and resolve placement conflicts",
}

var conflictsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether a placement collides, without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConflicts(cmd, true)
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Apply a placement and push later jobs forward",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConflicts(cmd, false)
	},
}

var (
	placeStart         string
	placeOffset        float64
	placeDuration      float64
	placeEquipment     string
	placeJob           string
	scheduleWithClosed bool
)

func init() {
	for _, c := range []*cobra.Command{scheduleComputeCmd, conflictsCheckCmd, conflictsResolveCmd} {
		c.Flags().StringVar(&placeStart, "start", "", "Start date (YYYY-MM-DD)")
		c.Flags().Float64Var(&placeOffset, "offset", 0, "Hour offset into the start date")
		c.Flags().Float64Var(&placeDuration, "duration", 0, "Duration in work hours")
		_ = c.MarkFlagRequired("start")
		_ = c.MarkFlagRequired("duration")
	}
	scheduleComputeCmd.Flags().BoolVar(&scheduleWithClosed, "with-closed-days", false, "List closed days inside the schedule")

	for _, c := range []*cobra.Command{conflictsCheckCmd, conflictsResolveCmd} {
		c.Flags().StringVar(&placeEquipment, "equipment", "", "Equipment ID")
		c.Flags().StringVar(&placeJob, "job", "", "Job ID excluded from the check")
		_ = c.MarkFlagRequired("equipment")
	}

	scheduleCmd.AddCommand(scheduleComputeCmd)
	conflictsCmd.AddCommand(conflictsCheckCmd, conflictsResolveCmd)
	rootCmd.AddCommand(scheduleCmd, conflictsCmd)
}

func placementStart() (worktime.Cursor, error) {
	date, err := worktime.ParseDate(placeStart)
	if err != nil {
		return worktime.Cursor{}, err
	}
	return worktime.NewCursor(date, placeOffset), nil
}

func runScheduleCompute(cmd *cobra.Command, args []string) error {
	start, err := placementStart()
	if err != nil {
		return err
	}

	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	calc := srv.Calculator()
	sched, err := calc.ComputeSchedule(ctx, start, placeDuration)
	if err != nil {
		return err
	}
	segments := sched.Segments
	if scheduleWithClosed {
		if segments, err = timeline.Extend(ctx, calc, sched); err != nil {
			return err
		}
	}

	fmt.Printf("Start:  %s\n", start)
	fmt.Printf("Finish: %s\n", sched.Finish())
	fmt.Printf("Hours:  %.2f\n\n", sched.TotalHours())
	for _, seg := range segments {
		fmt.Printf("  %s  from %5.2f  %5.2fh\n", worktime.FormatDate(seg.Date), seg.Offset, seg.Hours)
	}
	return nil
}

func runConflicts(cmd *cobra.Command, dryRun bool) error {
	start, err := placementStart()
	if err != nil {
		return err
	}

	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	out, err := srv.Rescheduler().ResolveAndCascade(cmd.Context(), cascade.Request{
		EquipmentID:   placeEquipment,
		JobID:         placeJob,
		Start:         start,
		DurationHours: placeDuration,
		DryRun:        dryRun,
	})
	if err != nil {
		return err
	}
	printOutcome(start.String(), out)
	return nil
}

func printOutcome(requested string, out cascade.Outcome) {
	if !out.Conflict {
		fmt.Printf("No conflict at %s\n", requested)
		return
	}

	fmt.Printf("Conflict at %s, earliest free start %s", requested, out.Available.Start)
	if out.Available.Degraded {
		fmt.Print(" (best effort)")
	}
	fmt.Println()
	if len(out.Available.ConflictingJobs) > 0 {
		fmt.Printf("Collided with: %v\n", out.Available.ConflictingJobs)
	}

	for _, m := range out.Moves {
		fmt.Printf("  moved %s: %s -> %s (finishes %s)\n", m.JobID, m.From, m.To, m.Finish)
	}
	if out.StoppedAt != "" {
		fmt.Printf("Cascade stopped at %s\n", out.StoppedAt)
	}
}

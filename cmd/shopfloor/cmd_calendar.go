/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/plan"
	"github.com/friendsincode/shopfloor/internal/recurrence"
	"github.com/friendsincode/shopfloor/internal/server"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "Inspect and edit the working calendar",
}

var calendarGetCmd = &cobra.Command{
	Use:   "get DATE",
	Short: "Print the work hours of a date",
	Args:  cobra.ExactArgs(1),
	RunE:  runCalendarGet,
}

var calendarSetCmd = &cobra.Command{
	Use:   "set DATE HOURS",
	Short: "Set the work hours of a date (0, 8, 12 or 24)",
	Args:  cobra.ExactArgs(2),
	RunE:  runCalendarSet,
}

var calendarWeekdayOffCmd = &cobra.Command{
	Use:   "weekday-off",
	Short: "Close every occurrence of a weekday in a month",
	RunE:  runCalendarWeekdayOff,
}

var calendarCloseRuleCmd = &cobra.Command{
	Use:   "close-rule RRULE",
	Short: "Close every date an RRULE falls on within a range",
	Example: `  shopfloor calendar close-rule "FREQ=YEARLY;BYMONTH=12;BYMONTHDAY=25" --from 2026-01-01 --until 2028-12-31
  shopfloor calendar close-rule "FREQ=MONTHLY;BYDAY=+1SA" --until 2026-12-31`,
	Args: cobra.ExactArgs(1),
	RunE: runCalendarCloseRule,
}

var (
	closeRuleFrom  string
	closeRuleUntil string
)

var (
	weekdayOffYear  int
	weekdayOffMonth int
	weekdayOffDay   string
)

func init() {
	now := time.Now()
	calendarWeekdayOffCmd.Flags().IntVar(&weekdayOffYear, "year", now.Year(), "Year")
	calendarWeekdayOffCmd.Flags().IntVar(&weekdayOffMonth, "month", int(now.Month()), "Month (1-12)")
	calendarWeekdayOffCmd.Flags().StringVar(&weekdayOffDay, "weekday", "sunday", "Weekday to close")

	calendarCloseRuleCmd.Flags().StringVar(&closeRuleFrom, "from", worktime.FormatDate(now), "First date (YYYY-MM-DD)")
	calendarCloseRuleCmd.Flags().StringVar(&closeRuleUntil, "until", "", "Last date (YYYY-MM-DD)")
	_ = calendarCloseRuleCmd.MarkFlagRequired("until")

	calendarCmd.AddCommand(calendarGetCmd, calendarSetCmd, calendarWeekdayOffCmd, calendarCloseRuleCmd)
	rootCmd.AddCommand(calendarCmd)
}

func runCalendarGet(cmd *cobra.Command, args []string) error {
	date, err := worktime.ParseDate(args[0])
	if err != nil {
		return err
	}

	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	hours, err := srv.Calculator().Capacity(cmd.Context(), date)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d work hours\n", worktime.FormatDate(date), hours)
	return nil
}

func runCalendarSet(cmd *cobra.Command, args []string) error {
	date, err := worktime.ParseDate(args[0])
	if err != nil {
		return err
	}
	hours, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid hours %q: %w", args[1], err)
	}

	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	if err := srv.Store().SetCapacity(ctx, date, hours); err != nil {
		return err
	}
	calendarChanged(ctx, srv, date)

	fmt.Printf("%s set to %d work hours\n", worktime.FormatDate(date), hours)
	return nil
}

func runCalendarWeekdayOff(cmd *cobra.Command, args []string) error {
	if weekdayOffMonth < 1 || weekdayOffMonth > 12 {
		return fmt.Errorf("invalid month %d", weekdayOffMonth)
	}
	weekday, err := plan.ParseWeekday(weekdayOffDay)
	if err != nil {
		return err
	}

	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	dates, err := srv.Store().CloseWeekday(ctx, weekdayOffYear, time.Month(weekdayOffMonth), weekday)
	if err != nil {
		return err
	}
	calendarChanged(ctx, srv, dates...)

	fmt.Printf("Closed %d %s(s) in %d-%02d:\n", len(dates), weekday, weekdayOffYear, weekdayOffMonth)
	for _, d := range dates {
		fmt.Printf("  %s\n", worktime.FormatDate(d))
	}
	return nil
}

func runCalendarCloseRule(cmd *cobra.Command, args []string) error {
	rr, err := recurrence.Parse(args[0])
	if err != nil {
		return err
	}
	from, err := worktime.ParseDate(closeRuleFrom)
	if err != nil {
		return err
	}
	until, err := worktime.ParseDate(closeRuleUntil)
	if err != nil {
		return err
	}
	if until.Sub(from) > maxCloseRuleSpan {
		return fmt.Errorf("range %s..%s exceeds %d days", closeRuleFrom, closeRuleUntil, int(maxCloseRuleSpan.Hours()/24))
	}

	dates := recurrence.Occurrences(rr, from, until)
	if len(dates) == 0 {
		fmt.Println("Rule has no occurrences in range")
		return nil
	}

	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	for _, d := range dates {
		if err := srv.Store().SetCapacity(ctx, d, 0); err != nil {
			return err
		}
	}
	calendarChanged(ctx, srv, dates...)

	fmt.Printf("Closed %d date(s):\n", len(dates))
	for _, d := range dates {
		fmt.Printf("  %s %s\n", worktime.FormatDate(d), d.Weekday())
	}
	return nil
}

// maxCloseRuleSpan bounds a single close-rule run to roughly ten years.
const maxCloseRuleSpan = 3660 * 24 * time.Hour

// calendarChanged drops cached capacities and tells running servers about the change.
func calendarChanged(ctx context.Context, srv *server.Server, dates ...time.Time) {
	if err := srv.Calendar().Invalidate(ctx, dates...); err != nil {
		logger.Warn().Err(err).Msg("calendar cache invalidation failed")
	}
	for _, d := range dates {
		hours, err := srv.Calculator().Capacity(ctx, d)
		if err != nil {
			continue
		}
		srv.Publisher().Publish(events.EventCalendarUpdated, events.Payload{
			"date":       worktime.FormatDate(d),
			"work_hours": hours,
		})
	}
}

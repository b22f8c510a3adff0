/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/friendsincode/shopfloor/internal/events"
	"github.com/friendsincode/shopfloor/internal/plan"
	"github.com/friendsincode/shopfloor/internal/worktime"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a YAML plan's calendar, equipment and jobs into the database",
	RunE:  runSeed,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a YAML plan's steps in memory and print the resulting timeline",
	RunE:  runSimulate,
}

var (
	planFile       string
	simulateEvents bool
)

func init() {
	for _, c := range []*cobra.Command{seedCmd, simulateCmd} {
		c.Flags().StringVarP(&planFile, "file", "f", "", "Plan file (YAML)")
		_ = c.MarkFlagRequired("file")
	}
	simulateCmd.Flags().BoolVar(&simulateEvents, "events", false, "Print the events the steps publish")

	rootCmd.AddCommand(seedCmd, simulateCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	p, err := plan.Load(planFile)
	if err != nil {
		return err
	}

	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	res, err := plan.Seed(cmd.Context(), srv.Store(), p)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	fmt.Printf("Seeded %d calendar day(s), %d equipment, %d job(s)\n", res.Days, len(res.Equipment), len(res.Jobs))
	for _, id := range sortedKeys(res.Jobs) {
		fmt.Printf("  job %-12s -> %s\n", id, res.Jobs[id])
	}
	if len(p.Calendar.ClosedWeekdays) > 0 {
		fmt.Printf("Closed weekdays %v are not stored; use 'shopfloor calendar weekday-off'\n", p.Calendar.ClosedWeekdays)
	}
	return nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	p, err := plan.Load(planFile)
	if err != nil {
		return err
	}

	var published eventLog
	var publisher events.Publisher
	if simulateEvents {
		publisher = &published
	}

	res, err := plan.Simulate(cmd.Context(), p, publisher, logger,
		worktime.WithMaxScanDays(cfg.ScheduleScanDays),
		worktime.WithWorkingDaySearchLimit(cfg.WorkingDaySearchLimit),
	)
	if err != nil {
		return err
	}

	for _, step := range res.Steps {
		fmt.Printf("Step %d (%s)\n", step.Step, step.JobID)
		if step.Err != nil {
			fmt.Printf("  rejected: %v\n", step.Err)
			continue
		}
		planned := p.Steps[step.Step-1]
		printOutcome(fmt.Sprintf("%s+%.2fh", planned.StartDate, planned.HourOffset), step.Outcome)
	}

	if simulateEvents {
		fmt.Println("\nEvents:")
		for _, e := range published {
			fmt.Printf("  %-18s %v\n", e.eventType, e.payload)
		}
	}

	fmt.Println("\nFinal timeline:")
	for _, job := range res.Final {
		fmt.Printf("  %-12s %-8s %s  %.2fh\n", job.ID, job.EquipmentID, job.Start, job.DurationHours)
	}
	return nil
}

type publishedEvent struct {
	eventType events.EventType
	payload   events.Payload
}

// eventLog keeps published events in order.
type eventLog []publishedEvent

func (l *eventLog) Publish(eventType events.EventType, payload events.Payload) {
	*l = append(*l, publishedEvent{eventType: eventType, payload: payload})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

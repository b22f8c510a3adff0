/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/shopfloor/internal/integrity"
)

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Scan stored placements for inconsistencies",
}

var integrityScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List orphaned, invalid, off-calendar and overlapping jobs",
	RunE:  runIntegrityScan,
}

var integrityRepairCmd = &cobra.Command{
	Use:   "repair TYPE JOB_ID",
	Short: "Repair one finding (closed_day_start or overlapping_jobs)",
	Args:  cobra.ExactArgs(2),
	RunE:  runIntegrityRepair,
}

var integrityRepairAll bool

func init() {
	integrityScanCmd.Flags().BoolVar(&integrityRepairAll, "repair", false, "Repair every repairable finding after scanning")

	integrityCmd.AddCommand(integrityScanCmd, integrityRepairCmd)
	rootCmd.AddCommand(integrityCmd)
}

func runIntegrityScan(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx := cmd.Context()
	report, err := srv.Integrity().Scan(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Integrity scan: %d finding(s)\n", report.Total)
	for _, f := range report.Findings {
		repairable := ""
		if f.Repairable {
			repairable = " [repairable]"
		}
		fmt.Printf("  %-6s %-18s %-36s %s%s\n", f.Severity, f.Type, f.ResourceID, f.Summary, repairable)
	}

	if !integrityRepairAll {
		return nil
	}
	for _, f := range report.Findings {
		if !f.Repairable {
			continue
		}
		result, err := srv.Integrity().Repair(ctx, integrity.RepairInput{Type: f.Type, ResourceID: f.ResourceID})
		if err != nil {
			fmt.Printf("  repair %s %s failed: %v\n", f.Type, f.ResourceID, err)
			continue
		}
		fmt.Printf("  repair %s %s: %s\n", f.Type, f.ResourceID, result.Message)
	}
	return nil
}

func runIntegrityRepair(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	result, err := srv.Integrity().Repair(cmd.Context(), integrity.RepairInput{
		Type:       integrity.FindingType(args[0]),
		ResourceID: args[1],
	})
	if err != nil {
		return err
	}

	fmt.Println(result.Message)
	for k, v := range result.Details {
		fmt.Printf("  %s: %v\n", k, v)
	}
	return nil
}

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/shopfloor/internal/audit"
	"github.com/friendsincode/shopfloor/internal/models"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recorded conflicts, moves and calendar changes",
	RunE:  runAudit,
}

var (
	auditEquipment string
	auditJob       string
	auditAction    string
	auditSince     time.Duration
	auditLimit     int
)

func init() {
	auditCmd.Flags().StringVar(&auditEquipment, "equipment", "", "Only entries for this equipment")
	auditCmd.Flags().StringVar(&auditJob, "job", "", "Only entries for this job")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "Only entries with this action (e.g. placement.moved)")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only entries newer than this (e.g. 24h)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to print")

	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	srv, err := openServer()
	if err != nil {
		return err
	}
	defer srv.Close()

	filters := audit.QueryFilters{Limit: auditLimit}
	if auditEquipment != "" {
		filters.EquipmentID = &auditEquipment
	}
	if auditJob != "" {
		filters.ResourceID = &auditJob
	}
	if auditAction != "" {
		action := models.AuditAction(auditAction)
		filters.Action = &action
	}
	if auditSince > 0 {
		since := time.Now().Add(-auditSince)
		filters.StartTime = &since
	}

	logs, total, err := srv.Audit().Query(cmd.Context(), filters)
	if err != nil {
		return err
	}

	fmt.Printf("%d of %d entries\n", len(logs), total)
	for _, l := range logs {
		fmt.Printf("  %s  %-18s %s/%s", l.Timestamp.Format(time.RFC3339), l.Action, l.ResourceType, l.ResourceID)
		if l.EquipmentID != nil {
			fmt.Printf(" on %s", *l.EquipmentID)
		}
		fmt.Println()
	}
	return nil
}

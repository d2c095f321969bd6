package cmd

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/guardian-iov/guardian/internal/triage"
)

func newIncidentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incidents [vin]",
		Short: "List incident records, or show one vehicle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showIncident(cmd, args[0])
			}
			return listIncidents(cmd)
		},
	}
	return cmd
}

func listIncidents(cmd *cobra.Command) error {
	var records []triage.IncidentRecord
	if err := apiGet("/incidents", nil, &records); err != nil {
		return err
	}

	if len(records) == 0 {
		cmd.Println("No incident records.")
		return nil
	}

	table := uitable.New()
	table.AddRow("VIN", "STATUS", "REASON", "LAST UPDATED", "EXPIRES", "VERSION")
	for _, rec := range records {
		table.AddRow(rec.VIN, string(rec.Status), rec.Reason,
			rec.LastUpdated.Format(time.RFC3339),
			formatDeadline(rec.ExpiryDeadline),
			fmt.Sprintf("%d", rec.Version))
	}
	cmd.Println(table.String())
	return nil
}

func showIncident(cmd *cobra.Command, vin string) error {
	var rec triage.IncidentRecord
	if err := apiGet("/incidents/"+url.PathEscape(vin), nil, &rec); err != nil {
		return err
	}

	table := uitable.New()
	table.AddRow("VIN:", rec.VIN)
	table.AddRow("Status:", string(rec.Status))
	table.AddRow("Reason:", rec.Reason)
	table.AddRow("Last updated:", rec.LastUpdated.Format(time.RFC3339))
	table.AddRow("Expires:", formatDeadline(rec.ExpiryDeadline))
	table.AddRow("Version:", fmt.Sprintf("%d", rec.Version))
	cmd.Println(table.String())
	return nil
}

func formatDeadline(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

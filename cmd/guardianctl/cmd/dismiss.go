package cmd

import (
	"net/url"

	"github.com/spf13/cobra"
)

func newDismissCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <vin>",
		Short: "Dismiss an active safety warning on behalf of the occupant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vin := args[0]
			if err := apiGet("/dismiss", url.Values{"vin": []string{vin}}, nil); err != nil {
				return err
			}
			cmd.Printf("Dismissal submitted for vehicle %s.\n", vin)
			return nil
		},
	}
}

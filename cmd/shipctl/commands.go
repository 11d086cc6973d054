package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type opener func(cmd *cobra.Command) (*deps, error)

func newTrackCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "track <shipmentId>",
		Short: "Show the carrier's current tracking for one shipment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(cmd)
			if err != nil {
				return err
			}
			defer d.close()
			return writeJSON(cmd.OutOrStdout(), d.tracking.TrackOne(cmd.Context(), args[0]))
		},
	}
}

func newReconcileCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <orderId>...",
		Short: "Pull tracking for orders and store their latest status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(cmd)
			if err != nil {
				return err
			}
			defer d.close()
			return writeJSON(cmd.OutOrStdout(), d.tracking.TrackMany(cmd.Context(), args))
		},
	}
}

func newShipCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "ship <orderId>",
		Short: "Create the carrier shipment for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(cmd)
			if err != nil {
				return err
			}
			defer d.close()
			ref, err := d.shipments.CreateShipmentByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("ship %s: %w", args[0], err)
			}
			return writeJSON(cmd.OutOrStdout(), ref)
		},
	}
}

func newCancelCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <orderId>",
		Short: "Cancel an order and, if possible, its carrier shipment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open(cmd)
			if err != nil {
				return err
			}
			defer d.close()
			res, err := d.shipments.CancelOrder(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("cancel %s: %w", args[0], err)
			}
			if res.CarrierError != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: carrier cancellation failed: %s\n", res.CarrierError)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

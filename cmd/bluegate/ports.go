package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Edgewaretech/edgeware-bluegate/internal/serialport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and mark the BleuIO radio",
	RunE:  runPorts,
}

var (
	portsFormat    string
	portsVendorID  string
	portsProductID string
)

func init() {
	defaults := serialport.DefaultOptions()
	portsCmd.Flags().StringVarP(&portsFormat, "format", "f", "table", "Output format (table, json)")
	portsCmd.Flags().StringVar(&portsVendorID, "vid", defaults.VendorID, "USB vendor ID of the radio")
	portsCmd.Flags().StringVar(&portsProductID, "pid", defaults.ProductID, "USB product ID of the radio")
}

func runPorts(cmd *cobra.Command, _ []string) error {
	if portsFormat != "table" && portsFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", portsFormat)
	}

	opts := serialport.DefaultOptions()
	opts.VendorID = portsVendorID
	opts.ProductID = portsProductID

	ports, err := serialport.List(opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if portsFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ports)
	}

	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tVID:PID\tSERIAL\tPRODUCT\tRADIO")
	for _, p := range ports {
		ids := "-"
		if p.USB {
			ids = p.VID + ":" + p.PID
		}
		radio := ""
		if p.Radio {
			radio = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, ids, orDash(p.Serial), orDash(p.Product), radio)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

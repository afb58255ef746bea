package main

import (
	"bufio"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Edgewaretech/edgeware-bluegate/internal/bleuio"
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Classify radio output read from stdin",
	Long: `Read radio output lines from stdin and print the event each one produces, one
JSON object per line. Lines are classified with the command grammar unless --scan
is given. Useful for checking captured serial logs.`,
	Example: `  printf 'handle_evt_gap_connected\r\n' | bluegate parse
  bluegate parse --scan < scan-capture.log`,
	RunE: runParse,
}

var parseScan bool

func init() {
	parseCmd.Flags().BoolVar(&parseScan, "scan", false, "Use the scan grammar")
}

type parsedLine struct {
	Line     string       `json:"line"`
	Event    string       `json:"event,omitempty"`
	Data     bleuio.Event `json:"data,omitempty"`
	Firmware string       `json:"firmware,omitempty"`
}

func runParse(cmd *cobra.Command, _ []string) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := enc.Encode(classify(line, parseScan)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func classify(line string, scan bool) parsedLine {
	out := parsedLine{Line: line}
	if fw, ok := bleuio.ParseFirmwareVersion(line); ok {
		out.Firmware = fw
	}

	var ev bleuio.Event
	if scan {
		ev = bleuio.ParseScanLine(line)
	} else {
		ev = bleuio.ParseCommandLine(line)
	}
	if ev == nil {
		return out
	}
	out.Event = ev.Kind()
	switch ev.(type) {
	case bleuio.AdvRssiData, bleuio.NotificationHexData, bleuio.AsciiData:
		out.Data = ev
	}
	return out
}

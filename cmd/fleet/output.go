package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fastfare/fleetlive/internal/geo"
	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/presence"
	"github.com/fastfare/fleetlive/internal/snapshot"
	"github.com/fastfare/fleetlive/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// printJSONLine writes v as a single JSON line, for streaming output.
func printJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printDriver(w io.Writer, d *model.DriverState, now time.Time) {
	fmt.Fprintf(w, "ID:           %s\n", d.ID)
	fmt.Fprintf(w, "Name:         %s\n", d.Name)
	fmt.Fprintf(w, "Position:     %.6f, %.6f\n", d.Lat, d.Lng)
	fmt.Fprintf(w, "Heading:      %.1f° %s\n", d.HeadingDegrees, geo.BearingToCompass(d.HeadingDegrees))
	fmt.Fprintf(w, "Speed:        %.1f km/h\n", d.SpeedEstimate)
	fmt.Fprintf(w, "State:        %s\n", ui.RenderLiveness(d.Offline))
	if d.Vehicle != "" {
		fmt.Fprintf(w, "Vehicle:      %s\n", d.Vehicle)
	}
	if d.Phone != "" {
		fmt.Fprintf(w, "Phone:        %s\n", d.Phone)
	}
	if d.FuelLevel != nil {
		fmt.Fprintf(w, "Fuel:         %.0f%%\n", *d.FuelLevel)
	}
	if !d.LastUpdated.IsZero() {
		fmt.Fprintf(w, "Last Update:  %s (%s ago)\n",
			d.LastUpdated.Local().Format("2006-01-02 15:04:05"), formatAge(now.Sub(d.LastUpdated)))
	}
}

func printDriverTable(w io.Writer, snap *snapshot.Snapshot, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLAT\tLNG\tHEADING\tDIR\tSPEED\tSTATE\tAGE")
	offline := 0
	for _, d := range snap.Drivers {
		if d.Offline {
			offline++
		}
		name := d.Name
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		age := "-"
		if !d.LastUpdated.IsZero() {
			age = formatAge(now.Sub(d.LastUpdated))
		}
		fmt.Fprintf(tw, "%s\t%s\t%.5f\t%.5f\t%.0f\t%s\t%.1f\t%s\t%s\n",
			d.ID,
			name,
			d.Lat,
			d.Lng,
			d.HeadingDegrees,
			geo.BearingToCompass(d.HeadingDegrees),
			d.SpeedEstimate,
			ui.RenderLiveness(d.Offline),
			age,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d drivers (%d offline)  %s\n", len(snap.Drivers), offline,
		ui.RenderMuted(fmt.Sprintf("seq %d, generation %s", snap.Seq, snap.Generation)))
}

func printStatus(w io.Writer, rep *model.StatusReport) {
	fmt.Fprintln(w, "Fleet Status")
	fmt.Fprintf(w, "  Connection:   %s\n", ui.RenderStatus(rep.Status))
	fmt.Fprintf(w, "  Drivers:      %d (%d offline)\n", rep.Drivers, rep.Offline)
	fmt.Fprintf(w, "  Snapshot:     seq %d, generation %s\n", rep.Seq, rep.Generation)
	if !rep.LastPublishedAt.IsZero() {
		fmt.Fprintf(w, "  Published:    %s ago\n", formatAge(time.Since(rep.LastPublishedAt)))
	}
	fmt.Fprintf(w, "  Subscribers:  %d\n", rep.Subscribers)
	fmt.Fprintf(w, "  Watchers:     %d\n", rep.Watchers)
	if rep.UptimeSecs > 0 {
		fmt.Fprintf(w, "  Uptime:       %s\n", formatAge(time.Duration(rep.UptimeSecs*float64(time.Second))))
	}
	if rep.Closed {
		fmt.Fprintf(w, "  %s\n", ui.RenderStatus(model.StatusDisconnected)+" (pipeline closed)")
	}
}

func printWatchers(w io.Writer, entries []presence.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No active watchers.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tTRANSPORT\tCLIENT\tCONNECTED\tLAST SEQ\tDELIVERED\tIDLE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			e.SessionID,
			e.Transport,
			e.Client,
			formatAge(time.Duration(e.ConnectedSecs*float64(time.Second))),
			e.LastSeq,
			e.Delivered,
			formatAge(time.Duration(e.IdleSecs*float64(time.Second))),
		)
	}
	tw.Flush()
}

// formatAge renders d compactly: "4s", "3m12s", "2h05m", "3d4h".
func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

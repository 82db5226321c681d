package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fastfare/fleetlive/internal/snapshot"
	"github.com/fastfare/fleetlive/internal/ui"
	"github.com/spf13/cobra"
)

// errWatchDone stops a watch after --once.
var errWatchDone = errors.New("watch done")

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream snapshots and connectivity changes as they are published",
	GroupID: "fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, _ := cmd.Flags().GetBool("table")
		once, _ := cmd.Flags().GetBool("once")
		retry, _ := cmd.Flags().GetDuration("retry")

		ctx := cmd.Context()
		r := &watchRenderer{out: cmd.OutOrStdout(), table: table, json: jsonOutput}

		for {
			err := fleetClient.Watch(ctx, func(ev snapshot.Event) error {
				if err := r.render(ev, time.Now()); err != nil {
					return err
				}
				if once && ev.Type == snapshot.EventSnapshot {
					return errWatchDone
				}
				return nil
			})
			switch {
			case errors.Is(err, errWatchDone), ctx.Err() != nil:
				return nil
			case retry <= 0:
				return err
			}
			fmt.Fprintf(os.Stderr, "watch: %v (retrying in %s)\n", err, retry)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retry):
			}
		}
	},
}

func init() {
	watchCmd.Flags().Bool("table", false, "redraw the full driver table on every snapshot")
	watchCmd.Flags().Bool("once", false, "print the current snapshot and exit")
	watchCmd.Flags().Duration("retry", 0, "reconnect after this delay when the stream drops (0 = exit)")
}

// watchRenderer prints watch events. It remembers the previous snapshot so
// summary lines can show what changed.
type watchRenderer struct {
	out   io.Writer
	table bool
	json  bool
	prev  *snapshot.Snapshot
}

func (r *watchRenderer) render(ev snapshot.Event, now time.Time) error {
	if r.json {
		return printJSONLine(r.out, ev)
	}
	switch ev.Type {
	case snapshot.EventStatus:
		fmt.Fprintf(r.out, "%s connection %s\n", ui.RenderMuted(now.Format("15:04:05")), ui.RenderStatus(ev.Status))
	case snapshot.EventSnapshot:
		if ev.Snapshot == nil {
			return nil
		}
		if r.table {
			ui.ClearScreen(r.out)
			printDriverTable(r.out, ev.Snapshot, now)
		} else {
			d := diffSnapshots(r.prev, ev.Snapshot)
			fmt.Fprintf(r.out, "%s seq %d  %d drivers  +%d -%d ~%d%s\n",
				ui.RenderMuted(now.Format("15:04:05")),
				ev.Snapshot.Seq,
				len(ev.Snapshot.Drivers),
				d.added, d.removed, d.moved,
				resyncMarker(r.prev, ev.Snapshot),
			)
		}
		r.prev = ev.Snapshot
	}
	return nil
}

func resyncMarker(prev, next *snapshot.Snapshot) string {
	if prev != nil && prev.Generation != next.Generation {
		return "  " + ui.RenderAccent("resync "+next.Generation)
	}
	return ""
}

type snapshotDiff struct {
	added, removed, moved int
}

// diffSnapshots counts drivers that appeared, disappeared or changed
// position between two snapshots. A nil prev counts everything as added.
func diffSnapshots(prev, next *snapshot.Snapshot) snapshotDiff {
	var d snapshotDiff
	before := make(map[string][2]float64)
	if prev != nil {
		for _, drv := range prev.Drivers {
			before[drv.ID] = [2]float64{drv.Lat, drv.Lng}
		}
	}
	for _, drv := range next.Drivers {
		pos, ok := before[drv.ID]
		switch {
		case !ok:
			d.added++
		case pos != [2]float64{drv.Lat, drv.Lng}:
			d.moved++
		}
		delete(before, drv.ID)
	}
	d.removed = len(before)
	return d
}

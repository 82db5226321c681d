package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fastfare/fleetlive/internal/events"
	"github.com/fastfare/fleetlive/internal/model"
	"github.com/spf13/cobra"
)

var emitCmd = &cobra.Command{
	Use:   "emit <driver-id> <lat> <lng>",
	Short: "Publish a position update, or a batch from a file",
	Long: `Publishes one driver position, or with --file a JSON array of positions.

The event goes to the fleet HTTP API by default. With --via=nats or
--via=kafka it is published straight onto the bus subjects the daemon
ingests from: fleet.positions.update for a single position,
fleet.positions.snapshot for a batch, fleet.positions.resync with --resync.`,
	GroupID: "fleet",
	Args: func(cmd *cobra.Command, args []string) error {
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(3)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		via, _ := cmd.Flags().GetString("via")
		file, _ := cmd.Flags().GetString("file")
		resync, _ := cmd.Flags().GetBool("resync")

		if file == "" {
			ev, err := eventFromArgs(cmd, args)
			if err != nil {
				return err
			}
			return emitOne(cmd, via, ev)
		}

		evs, bad, err := readBatch(file, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if bad > 0 {
			fmt.Fprintf(os.Stderr, "skipped %d undecodable positions\n", bad)
		}
		return emitBatch(cmd, via, evs, resync)
	},
}

func init() {
	emitCmd.Flags().String("via", "http", "delivery path: http, nats or kafka")
	emitCmd.Flags().String("nats-url", os.Getenv("FLEET_NATS_URL"), "NATS URL for --via=nats")
	emitCmd.Flags().String("kafka-brokers", os.Getenv("FLEET_KAFKA_BROKERS"), "comma-separated Kafka brokers for --via=kafka")
	emitCmd.Flags().String("name", "", "driver display name")
	emitCmd.Flags().String("phone", "", "driver phone")
	emitCmd.Flags().String("vehicle", "", "vehicle identifier")
	emitCmd.Flags().Float64("fuel", -1, "fuel level (omitted when negative)")
	emitCmd.Flags().String("timestamp", "", "event time: epoch milliseconds or ISO-8601 (default: ingestion time)")
	emitCmd.Flags().String("file", "", "JSON array of positions to send as a batch (- for stdin)")
	emitCmd.Flags().Bool("resync", false, "replace the registry with the --file batch")
}

// eventFromArgs builds a position event from positional args and flags
// and validates it before anything is sent.
func eventFromArgs(cmd *cobra.Command, args []string) (model.RawPositionEvent, error) {
	lat, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return model.RawPositionEvent{}, fmt.Errorf("invalid lat %q: %w", args[1], err)
	}
	lng, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return model.RawPositionEvent{}, fmt.Errorf("invalid lng %q: %w", args[2], err)
	}
	ev := model.NewPositionEvent(args[0], lat, lng)

	ev.DriverName, _ = cmd.Flags().GetString("name")
	ev.Phone, _ = cmd.Flags().GetString("phone")
	ev.Vehicle, _ = cmd.Flags().GetString("vehicle")
	if fuel, _ := cmd.Flags().GetFloat64("fuel"); fuel >= 0 {
		ev.FuelLevel = &fuel
	}
	if ts, _ := cmd.Flags().GetString("timestamp"); ts != "" {
		t, err := model.ParseEventTime(ts)
		if err != nil {
			return model.RawPositionEvent{}, err
		}
		ev.Timestamp = model.At(t)
	}

	if err := model.ValidateEvent(ev); err != nil {
		return model.RawPositionEvent{}, err
	}
	return ev, nil
}

func readBatch(file string, stdin io.Reader) ([]model.RawPositionEvent, int, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", file, err)
	}
	return model.DecodeBatch(data)
}

func emitOne(cmd *cobra.Command, via string, ev model.RawPositionEvent) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if via == "http" {
		c, err := httpClient()
		if err != nil {
			return err
		}
		d, err := c.PostPosition(ctx, ev)
		if err != nil {
			return fmt.Errorf("posting position: %w", err)
		}
		if jsonOutput {
			return printJSON(out, d)
		}
		fmt.Fprintf(out, "accepted %s at %.6f, %.6f (heading %.1f°, %.1f km/h)\n",
			d.ID, d.Lat, d.Lng, d.HeadingDegrees, d.SpeedEstimate)
		return nil
	}

	if err := publish(ctx, cmd, via, events.TopicPositionUpdate, ev); err != nil {
		return err
	}
	fmt.Fprintf(out, "published %s to %s via %s\n", ev.DriverID, events.TopicPositionUpdate, via)
	return nil
}

func emitBatch(cmd *cobra.Command, via string, evs []model.RawPositionEvent, resync bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if via == "http" {
		c, err := httpClient()
		if err != nil {
			return err
		}
		post := c.PostBatch
		if resync {
			post = c.Resync
		}
		res, err := post(ctx, evs)
		if err != nil {
			return fmt.Errorf("posting batch: %w", err)
		}
		if jsonOutput {
			return printJSON(out, res)
		}
		fmt.Fprintf(out, "accepted %d, rejected %d, published %t\n", res.Accepted, res.Rejected, res.Published)
		return nil
	}

	topic := events.TopicPositionSnapshot
	if resync {
		topic = events.TopicPositionResync
	}
	if evs == nil {
		evs = []model.RawPositionEvent{}
	}
	if err := publish(ctx, cmd, via, topic, evs); err != nil {
		return err
	}
	fmt.Fprintf(out, "published %d positions to %s via %s\n", len(evs), topic, via)
	return nil
}

// publish sends payload straight onto the bus.
func publish(ctx context.Context, cmd *cobra.Command, via, topic string, payload any) error {
	switch via {
	case "nats":
		url, _ := cmd.Flags().GetString("nats-url")
		if url == "" {
			return fmt.Errorf("--nats-url (or FLEET_NATS_URL) is required for --via=nats")
		}
		pub, err := events.NewNATSPublisher(url)
		if err != nil {
			return err
		}
		defer pub.Close()
		if err := pub.Publish(ctx, topic, payload); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
		return pub.Flush()

	case "kafka":
		brokers, _ := cmd.Flags().GetString("kafka-brokers")
		pub, err := events.NewKafkaPublisher(splitBrokers(brokers))
		if err != nil {
			return err
		}
		defer pub.Close()
		return pub.Publish(ctx, topic, payload)

	default:
		return fmt.Errorf("unknown --via %q (must be http, nats or kafka)", via)
	}
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastfare/fleetlive/internal/client"
	"github.com/fastfare/fleetlive/internal/ui"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	httpURL    string
	transport  string
	authToken  string
	jsonOutput bool

	fleetClient client.FleetClient
)

func envOrDefault(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

var rootCmd = &cobra.Command{
	Use:           "fleet <command>",
	Short:         "Live fleet location pipeline and operator CLI",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		fleetClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if fleetClient != nil {
			fleetClient.Close()
		}
	},
}

func newClient() (client.FleetClient, error) {
	switch transport {
	case "http":
		return client.NewHTTPClient(httpURL, authToken), nil
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, authToken)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
}

// httpClient returns the HTTP client for commands that only exist on the
// HTTP API (ingestion, watcher roster).
func httpClient() (*client.HTTPClient, error) {
	c, ok := fleetClient.(*client.HTTPClient)
	if !ok {
		return nil, fmt.Errorf("this command requires --transport=http")
	}
	return c, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", envOrDefault("FLEET_HTTP_URL", "http://localhost:8080"), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", envOrDefault("FLEET_SERVER", "localhost:9090"), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("FLEET_AUTH_TOKEN"), "bearer token for the fleet API")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "fleet", Title: "Fleet:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Fleet
	rootCmd.AddCommand(driversCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(emitCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchersCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/keepmind9/wirebot/internal/robot"
	"github.com/keepmind9/wirebot/pkg/constants"
	"github.com/spf13/cobra"
)

var statusURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wirebot status",
	Long:  "Query a running wirebot's HTTP router and show its connection state and uptime",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(cmd.Context(), constants.StatusRequestTimeout)
		defer cancel()

		health, err := fetchHealth(ctx, http.DefaultClient, statusURL)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "❌ wirebot is not reachable at %s: %v\n", statusURL, err)
			os.Exit(1)
		}
		printHealth(cmd.OutOrStdout(), health)
	},
}

func fetchHealth(ctx context.Context, client *http.Client, baseURL string) (*robot.Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/healthz", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var health robot.Health
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("invalid health response: %w", err)
	}
	return &health, nil
}

func printHealth(w io.Writer, health *robot.Health) {
	state := "❌ disconnected"
	if health.Connected {
		state = "✅ connected"
	}

	fmt.Fprintf(w, "%s status:\n", health.Name)
	fmt.Fprintf(w, "  - Adapter: %s (%s)\n", health.Adapter, state)
	if health.StartedAt.IsZero() {
		fmt.Fprintln(w, "  - Started: not yet")
	} else {
		fmt.Fprintf(w, "  - Started: %s\n", humanize.Time(health.StartedAt))
	}
	fmt.Fprintf(w, "  - Known users: %s\n", humanize.Comma(int64(health.Users)))
}

func init() {
	statusCmd.Flags().StringVar(&statusURL, "url", fmt.Sprintf("http://127.0.0.1:%d", constants.DefaultHTTPPort), "Base URL of the wirebot HTTP router")
}

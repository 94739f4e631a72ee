package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the relay answers on its status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := checkHealth(client, cfg.ServerURL)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}
}

// checkHealth calls the health endpoint and records the round trip
func checkHealth(c *Client, serverURL string) (HealthResult, error) {
	var result HealthResult
	start := time.Now()
	if err := c.Get("/api/v1/health", &result); err != nil {
		return HealthResult{}, fmt.Errorf("relay at %s: %w", serverURL, err)
	}
	result.Server = serverURL
	result.LatencyMS = time.Since(start).Milliseconds()
	return result, nil
}

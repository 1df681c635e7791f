/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/quote-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// quoteGatewayCmd represents the quote-gateway command
var quoteGatewayCmd = &cobra.Command{
	Use:   "quote-gateway",
	Short: "Quote gateway service",
	Long: `Quote Gateway keeps a retrieval session per tracked instrument, polls the
configured quote source on a fixed interval and broadcasts each batch of fresh
quotes to every connected websocket viewer.

This service:
- Tracks instruments added or removed at runtime over HTTP
- Caches quotes briefly to collapse duplicate retrievals
- Evicts viewers that stop answering heartbeats
- Optionally persists the tracked set, snapshots quotes to redis and publishes batches to jetstream`,
	Run: bootstrap.StartQuoteGateway,
}

func init() {
	rootCmd.AddCommand(quoteGatewayCmd)
}

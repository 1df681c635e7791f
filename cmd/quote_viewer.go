/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/quote-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// quoteViewerCmd represents the quote-viewer command
var quoteViewerCmd = &cobra.Command{
	Use:   "quote-viewer",
	Short: "Terminal quote viewer",
	Long: `Quote Viewer connects to a quote gateway, prints every price update and
reconnects with exponential backoff when the connection drops.

Type r to reconnect manually, d to disconnect, c to connect and q to quit.`,
	Run: bootstrap.StartQuoteViewer,
}

func init() {
	rootCmd.AddCommand(quoteViewerCmd)
	quoteViewerCmd.Flags().String("url", "", "gateway websocket url (default: quote_viewer.url)")
}

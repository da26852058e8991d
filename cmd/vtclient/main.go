// Command vtclient is a headless participant used to exercise the
// control-channel protocol and the P2P mesh end to end without a browser
// (spec expansion section 4.10). It is a test exerciser, not a production
// UI: it adds an outbound audio track but writes no samples to it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gamasenninn/ptt/internal/vtclient"
)

func main() {
	os.Exit(run())
}

func run() int {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "control-channel websocket URL")
	displayName := flag.String("name", "", "display name to present to other participants")
	flag.Parse()

	logger := slog.Default().With("component", "vtclient/main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := vtclient.New(*serverURL, *displayName, func(state, speakerID, speakerName string) {
		logger.Info("ptt state changed", "state", state, "speaker", speakerName)
	})

	if err := client.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vtclient: %v\n", err)
		return 1
	}
	defer client.Close()

	logger.Info("connected, running until interrupted")
	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Warn("connection ended", "err", err)
	}
	return 0
}

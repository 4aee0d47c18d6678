// botsim plays the bot side of decision cycles, for bench testing the
// server without hardware.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-binbot/pkg/botlink"
	"github.com/teslashibe/go-binbot/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7001", "Decision server address")
	imagePath := flag.String("image", "", "JPEG frame to send")
	status := flag.String("status", string(protocol.StatusPatrol), "Reported status")
	angle := flag.Float64("angle", 0, "Reported tread angle")
	distance := flag.Float64("distance", 0, "Reported tread distance")
	count := flag.Int("n", 1, "Number of cycles to run")
	timeout := flag.Duration("timeout", 10*time.Second, "Per-cycle timeout")
	flag.Parse()

	req := &protocol.Instruction{
		Status: protocol.Status(*status),
		Treads: []protocol.Movement{{Angle: *angle, Distance: *distance}},
	}
	if *imagePath != "" {
		img, err := os.ReadFile(*imagePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			os.Exit(1)
		}
		req.Image = img
	}

	for i := 0; i < *count; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		start := time.Now()
		resp, err := botlink.Exchange(ctx, *addr, req)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ cycle %d: %v\n", i+1, err)
			os.Exit(1)
		}

		fmt.Printf("%-8s treads=%v arms=%v (%v)\n",
			resp.Status, resp.Treads, resp.Arms, time.Since(start).Round(time.Millisecond))

		// Report back what we were told, as the bot would
		req.Status = resp.Status
		req.Treads = resp.Treads
	}
}

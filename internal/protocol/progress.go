package protocol

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ProgressLogger periodically logs throughput deltas until the context is
// cancelled. Debug level only: transfers through a diode are often long and
// otherwise silent.
func ProgressLogger(ctx context.Context, stats *Stats) {
	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	var lastSent uint64 = 0
	var lastRcvd uint64 = 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			sent := stats.GetBytesSent()
			rcvd := stats.GetBytesRcvd()

			diffSent := sent - lastSent
			diffRcvd := rcvd - lastRcvd
			lastSent = sent
			lastRcvd = rcvd

			if diffSent == 0 && diffRcvd == 0 {
				continue
			}

			evt := log.Debug()
			if diffSent > 0 {
				evt = evt.Uint64("sent_bytes", diffSent)
			}
			if diffRcvd > 0 {
				evt = evt.Uint64("rcvd_bytes", diffRcvd)
			}
			evt.Msg("Throughput stats")
		}
	}
}

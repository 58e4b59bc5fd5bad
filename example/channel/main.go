package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/vaamb/gaia"
)

func main() {
	flow, err := gaia.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp, events, closeEvents := gaia.NewChannelDispatcher("fanout", 32)
	defer closeEvents()

	commands := gaia.NewCommandFeed(8)
	go supervisor(events, commands)

	err = flow.
		Options(
			gaia.WithDispatcher(disp),
			gaia.WithCommandSource(commands),
		).
		Run(ctx)
	if err != nil {
		log.Fatalf("controller exited: %v", err)
	}
}

// supervisor plays the remote side: it consumes telemetry and pushes a
// target change when the first climate event arrives.
func supervisor(events <-chan gaia.Event, commands *gaia.CommandFeed) {
	adjusted := false
	for ev := range events {
		fmt.Printf("[supervisor] %s/%s status=%s at %s\n",
			ev.EcosystemID, ev.Unit, ev.Status, time.Now().Format(time.RFC3339))

		if !adjusted && ev.Unit == gaia.UnitClimate {
			adjusted = true
			commands.Send(gaia.Command{
				EcosystemID: ev.EcosystemID,
				Unit:        gaia.UnitClimate,
				Kind:        gaia.CommandSetTarget,
				Target: &gaia.Target{
					Quantity:   gaia.QuantityTemperature,
					Day:        23,
					Night:      19,
					Hysteresis: 0.5,
				},
			})
		}
	}
}

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

	callback := func(ev gaia.Event) error {
		fmt.Printf("%s %s/%s status=%s measurements=%d\n",
			ev.Timestamp.Format(time.RFC3339Nano),
			ev.EcosystemID,
			ev.Unit,
			ev.Status,
			len(ev.Measurements),
		)
		return nil
	}

	err = flow.
		Options(gaia.WithDispatcher(gaia.NewCallbackDispatcher("stdout", callback))).
		Run(ctx)
	if err != nil {
		log.Fatalf("controller exited: %v", err)
	}
}

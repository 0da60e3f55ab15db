// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command fivemguard-sim replays a PCAP capture through the packet
// pipeline offline, for manual and CI verification of the filter's
// scenarios without a live interface or NFQUEUE binding.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"grimm.is/fivemguard/internal/capture"
	"grimm.is/fivemguard/internal/fconfig"
	"grimm.is/fivemguard/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "", "Path to HCL config file")
	preset := flag.String("preset", "medium", "Preset to use when -config is not set")
	target := flag.String("target", "", "Protected server IPv4 address")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		log.Fatal("Usage: fivemguard-sim [-config path | -preset name -target ip] <pcap-file>")
	}
	pcapFile := args[0]

	cfg, err := loadConfig(*configPath, *preset, *target)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store := fconfig.NewStore(cfg)
	shared := pipeline.NewShared(store, nil)
	pl := shared.NewWorker(nil)

	replayer := capture.NewReplayer(pl)
	results, err := replayer.Replay(pcapFile)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	forward, drop, abort := capture.Summarize(results)
	fmt.Printf("Replayed %d packets from %s\n", len(results), pcapFile)
	fmt.Printf("  FORWARD: %d\n", forward)
	fmt.Printf("  DROP:    %d\n", drop)
	fmt.Printf("  ABORT:   %d\n", abort)

	counters := pl.Stats()
	fmt.Printf("Counters: dropped=%d passed=%d invalid_protocol=%d rate_limited=%d "+
		"token_violations=%d sequence_violations=%d state_violations=%d checksum_failures=%d\n",
		counters.Dropped, counters.Passed, counters.InvalidProtocol, counters.RateLimited,
		counters.TokenViolations, counters.SequenceViolations, counters.StateViolations, counters.ChecksumFailures)

	os.Exit(0)
}

func loadConfig(configPath, preset, target string) (fconfig.Config, error) {
	if configPath != "" {
		return fconfig.LoadFile(configPath)
	}
	cfg, err := fconfig.Preset(preset, target)
	if err != nil {
		return fconfig.Config{}, err
	}
	return cfg, fconfig.Validate(cfg)
}

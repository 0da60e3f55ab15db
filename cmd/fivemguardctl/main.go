// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command fivemguardctl seeds a running fivemguard daemon's
// configuration store over HTTP, posting a named preset against a
// control-plane endpoint.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"grimm.is/fivemguard/internal/fconfig"
)

const defaultEndpoint = "http://127.0.0.1:8777/config"

func printUsage(w io.Writer, programName string) {
	fmt.Fprintf(w, "Usage: %s <server_ip> <config_type> [endpoint]\n", programName)
	fmt.Fprintln(w, "Configuration types:")
	fmt.Fprintln(w, "  small  - Small server (up to 32 players)")
	fmt.Fprintln(w, "  medium - Medium server (32-128 players)")
	fmt.Fprintln(w, "  large  - Large server (128+ players)")
	fmt.Fprintln(w, "  dev    - Development server (permissive)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Example:")
	fmt.Fprintf(w, "  %s 192.168.1.100 medium http://127.0.0.1:8777/config\n", programName)
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 3 {
		printUsage(stderr, args[0])
		return 1
	}

	serverIP := args[1]
	configType := strings.ToLower(args[2])
	endpoint := defaultEndpoint
	if len(args) > 3 {
		endpoint = args[3]
	}

	cfg, err := fconfig.Preset(configType, serverIP)
	if err != nil {
		fmt.Fprintf(stderr, "Unknown configuration type: %s\n", configType)
		printUsage(stderr, args[0])
		return 1
	}

	if err := postConfig(endpoint, cfg); err != nil {
		fmt.Fprintf(stderr, "fivemguardctl: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Applied %s preset for %s via %s\n", configType, serverIP, endpoint)
	return 0
}

func postConfig(endpoint string, cfg fconfig.Config) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("control plane rejected config (status %d): %s", resp.StatusCode, msg)
	}
	return nil
}

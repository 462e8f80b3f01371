// Command concierge runs the real-estate voice concierge.
//
// Usage:
//
//	concierge serve              # HTTP API, credential proxy, history, UI events
//	concierge serve --voice      # also host voice sessions on local audio
//	concierge call               # one headless voice call over stdin/stdout PCM
//
// Configuration comes from the environment, optionally overlaid by the
// YAML file named in CONCIERGE_CONFIG.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

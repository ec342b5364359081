package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/runforge/runforge/internal/server"
)

// Version is set via ldflags at build time
var Version = "dev"

func main() {
	port := flag.Int("port", 0, "Port to run the server on (overrides config)")
	mode := flag.String("mode", "both", "Run mode: server (API only), worker (worker only), or both")
	flag.Parse()

	cfg := server.Config{
		Port:    *port,
		Mode:    *mode,
		Version: Version,
	}

	if err := server.RunWithSignalHandling(cfg); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

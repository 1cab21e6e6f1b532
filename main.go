package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/tphakala/fishnet-go/cmd"
	"github.com/tphakala/fishnet-go/internal/buildinfo"
)

// Set with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	build := buildinfo.NewContext(version, buildDate)
	if err := cmd.RootCommand(build).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Ninjtheturtle/YT-Spotify-Swap/pkg/swap"
)

// set by the build process via -ldflags
var (
	versionTag = "dev"
	gitCommit  string
)

func main() {
	verbose := flag.Bool("verbose", false, "show debug-level logs")
	flag.Parse()

	logger, err := swap.NewLogger(*verbose)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	version := versionTag
	if gitCommit != "" {
		version = fmt.Sprintf("%s (%s)", versionTag, gitCommit)
	}
	named.Infow("Starting YT-Spotify-Swap", "version", version)

	swapper, err := swap.NewSwapper(logger, *verbose)
	if err != nil {
		named.Fatalw("Failed to create swapper instance", "error", err)
	}

	swapper.SetVersion(version)

	if err := swapper.Initialize(); err != nil {
		named.Fatalw("Failed to initialize swapper", "error", err)
	}
}

package main

import (
	"flag"
	"fmt"
	"log"
	"maps"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/wildstyl3r/lpt/internal/config"
	"github.com/wildstyl3r/lpt/internal/logging"
	"github.com/wildstyl3r/lpt/internal/output"
)

func main() {
	dataFlags := output.NewDataFlags(flag.CommandLine)
	var configFileNamePointer = flag.String("input", "lpt", "run configuration in toml format")
	var verbose = flag.Bool("verbose", false, "print progress")
	var threads = flag.Int("threads", runtime.NumCPU(), "workers advancing the particles of every rank")
	var logLevel = flag.String("log", "", "log level: debug, info, warn or error (overrides LogLevel)")
	flag.Parse()

	startTime := time.Now()
	fmt.Printf("Current time: %s\n", startTime.UTC().Format(time.UnixDate))

	globalConfig, meta, err := config.LoadConfig(*configFileNamePointer)
	if err != nil {
		log.Fatalln(err)
	}
	if *logLevel != "" {
		globalConfig.LogLevel = *logLevel
	}
	logger := logging.NewLogger(globalConfig.LogLevel)

	runNames := slices.Sorted(maps.Keys(globalConfig.Runs))
	runs := make(map[string]*config.RunParameters, len(runNames))
	for _, runName := range runNames {
		parameters := globalConfig.Runs[runName]
		parameters.SetVerbosity(*verbose)
		if err := parameters.CheckAndUnify(runName, &globalConfig, &meta); err != nil {
			log.Fatalln(err)
		}
		runs[runName] = &parameters
	}

	if err := os.MkdirAll(globalConfig.OutputDir, 0750); err != nil {
		log.Fatalln(err)
	}
	dataFlags.SetOutputPath(globalConfig.OutputDir)

	failed := false
	for _, runName := range runNames {
		fmt.Println("\n" + runName)
		if err := run(runName, runs[runName], *threads, dataFlags, logger); err != nil {
			logger.Errorf("run %s: %v", runName, err)
			failed = true
		}
	}
	fmt.Printf("Elapsed time: %v\n", time.Since(startTime))
	if failed {
		os.Exit(1)
	}
}

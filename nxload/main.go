package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	nxload "github.com/jmbenlloch/nxload/pkg"
)

var configuration nxload.Configuration

var (
	logger         Logger
	VerbosityLevel int
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	handlerStdOut := NewHandler(os.Stdout, opts)
	handlerStdErr := slog.NewJSONHandler(os.Stderr, opts)
	logger = Logger{
		InfoLog:  slog.New(handlerStdOut),
		ErrorLog: slog.New(handlerStdErr),
	}
}

func main() {
	configFilename := flag.String("config", "", "Configuration file path (json or yaml)")
	fileIn := flag.String("file", "", "NeXus file to load, overrides file_in")
	root := flag.String("root", "", "Group to load from, overrides root")
	flag.Parse()

	var err error
	configuration, err = LoadConfiguration(*configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		os.Exit(1)
	}
	if *fileIn != "" {
		configuration.FileIn = *fileIn
	}
	if *root != "" {
		configuration.Root = *root
	}
	nxload.SetConfiguration(configuration)
	nxload.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", *configFilename)
		logger.Info(message, "main")
		printConfiguration(configuration, logger)
	}

	if configuration.FileIn == "" {
		logger.Error("No input file, use -file or file_in")
		os.Exit(1)
	}

	start := time.Now()
	result, diags, err := nxload.Load(configuration.FileIn, configuration.Root, configuration.Quiet)
	elapsed := time.Since(start)
	if err != nil {
		message := fmt.Errorf("Error loading %s: %w", configuration.FileIn, err)
		logger.Error(message.Error())
		os.Exit(1)
	}

	printSummary(result, diags)

	if !configuration.NoDB {
		if err := saveReport(result, diags, elapsed); err != nil {
			logger.Error(err.Error())
		}
	}

	if configuration.MetricsFile != "" {
		metrics := nxload.NewMetrics()
		metrics.Observe(result, diags, elapsed)
		if err := metrics.WriteTextfile(configuration.MetricsFile); err != nil {
			logger.Error(err.Error())
		}
	}

	fmt.Printf("Total time: %d ms\n", elapsed.Milliseconds())
}

func saveReport(result *nxload.Result, diags nxload.Diagnostics, elapsed time.Duration) error {
	dbConn, err := nxload.ConnectToDatabase(configuration.DBDriver, configuration.User,
		configuration.Passwd, configuration.Host, configuration.DBName)
	if err != nil {
		return fmt.Errorf("Error connection to database: %w", err)
	}
	defer dbConn.Close()

	store := nxload.NewReportStore(dbConn)
	if err := store.EnsureSchema(); err != nil {
		return err
	}
	report := nxload.NewLoadReport(configuration.FileIn, configuration.Root, result, diags, elapsed)
	return store.Save(report)
}

func printSummary(result *nxload.Result, diags nxload.Diagnostics) {
	if result == nil {
		fmt.Println("No event data, logs or metadata found")
	} else {
		if result.Detector != nil {
			fmt.Println("Banks: ", len(result.Detector.Banks))
			fmt.Println("Detector elements: ", result.Detector.NumElements())
			fmt.Println("Events: ", result.Detector.NumEvents())
			fmt.Println("Positions: ", result.Detector.HasPositions())
		}
		keys := make([]string, 0, len(result.Attrs))
		for key := range result.Attrs {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%s: %s\n", key, result.Attrs[key])
		}
		names := make([]string, 0, len(result.Logs))
		for name := range result.Logs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("Log %s: %d values\n", name, len(result.Logs[name].Values))
		}
	}
	fmt.Println("Diagnostics: ", len(diags))
	if VerbosityLevel > 0 {
		for _, diag := range diags {
			logger.Info(diag.String(), "main")
		}
	}
}

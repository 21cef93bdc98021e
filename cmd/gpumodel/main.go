package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/binzume/gpumodel/config"
	"github.com/binzume/gpumodel/importer"
	"github.com/binzume/gpumodel/internal/logger"
	"github.com/binzume/gpumodel/internal/parallel"
	"go.uber.org/zap"
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] input.glb\n", os.Args[0])
		flag.PrintDefaults()
	}
	confFile := flag.String("config", "", "config file (yaml)")
	options := flag.String("options", "", "import options, comma separated (default All)")
	logLevel := flag.String("loglevel", "", "debug, info, warn or error")
	logFile := flag.String("logfile", "", "log file path")
	summaryFormat := flag.String("summary", "", "text, yaml or none")
	workers := flag.Int("workers", -1, "worker count, 0:GOMAXPROCS")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return
	}
	input := flag.Arg(0)

	conf, err := loadConfig(*confFile)
	if err != nil {
		log.Fatal(err)
	}
	if *options != "" {
		conf.Import.SetOptions(*options)
	}
	if *logLevel != "" {
		conf.Logging.Level = *logLevel
	}
	if *logFile != "" {
		conf.Logging.File.Path = *logFile
	}
	if *summaryFormat != "" {
		conf.Import.Summary = *summaryFormat
	}
	if *workers >= 0 {
		conf.Import.Workers = *workers
	}
	if err := conf.Validate(); err != nil {
		log.Fatal(err)
	}
	opts, _ := conf.Import.ImportOptions()

	if err := logger.InitWithFileConfig(conf.Logging.Level, conf.Logging.File, true); err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pool := parallel.NewWorkerPool(conf.Import.Workers)
	defer pool.Close()

	logger.Debug("config", zap.String("file", *confFile), zap.String("loglevel", conf.Logging.Level),
		zap.String("logfile", conf.Logging.File.Path), zap.String("summary", conf.Import.Summary))
	logger.Info("import", zap.String("input", input), zap.Stringer("options", opts), zap.Int("workers", pool.Workers()))
	result, err := importer.ImportContext(ctx, input, opts, importer.WithPool(pool))
	if err != nil {
		logger.Error("import failed", zap.String("input", input), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	s := summarize(input, result)
	switch strings.ToLower(conf.Import.Summary) {
	case "yaml":
		err = s.writeYAML(os.Stdout)
	case "none":
	default:
		s.writeText(os.Stdout)
	}
	if err != nil {
		logger.Fatal("write summary", zap.Error(err))
	}
}

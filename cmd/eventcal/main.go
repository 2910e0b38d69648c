package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"eventcal/internal/config"
	"eventcal/internal/index"
	appLog "eventcal/internal/log"
	"eventcal/internal/pipeline"
)

const usage = `usage: eventcal [-config path] [-log-level level] <command> [args]

commands:
  validate <event-file>    validate one record file (object or array)
  build [-watch cron]      rebuild the merged dataset and calendars
  sync-index [files...]    refresh the index; also reads $CREATED
`

// globalFlags holds CLI flag values shared by all subcommands.
type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("eventcal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	var g globalFlags
	fs.StringVar(&g.configPath, "config", "eventcal.yaml", "Path to config file")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	// validate has no side effects beyond its report, so it never writes
	// a first-run config.
	load := config.Load
	if rest[0] == "validate" {
		load = config.Read
	}
	conf, err := load(g.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: load config %s: %v\n", g.configPath, err)
		return 1
	}
	level := conf.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "validate":
		return cmdValidate(conf, cmdArgs, stdout, stderr)
	case "build":
		return cmdBuild(conf, cmdArgs, stderr)
	case "sync-index":
		return cmdSyncIndex(conf, cmdArgs, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
}

func cmdBuild(conf *config.Config, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(stderr)
	watchSpec := fs.String("watch", "", "Cron schedule; rebuild on every tick until interrupted")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	p, err := pipeline.New(conf, nil)
	if err != nil {
		appLog.Error("failed to set up pipeline", err)
		return 1
	}

	appLog.Info("effective config",
		"data_dir", conf.DataDir,
		"index", conf.IndexFile,
		"home_offset", conf.HomeOffset,
		"supported_tags", len(conf.SupportedTags),
		"escaping", conf.Calendar.Escaping,
		"watch", *watchSpec,
	)

	if *watchSpec == "" {
		return buildOnce(p)
	}
	if err := watch(p, *watchSpec); err != nil {
		appLog.Error("watch failed", err, "schedule", *watchSpec)
		return 1
	}
	return 0
}

func buildOnce(p *pipeline.Pipeline) int {
	rep, err := p.Run()
	if err != nil {
		appLog.Error("build failed", err)
		return 1
	}
	if err := rep.Err(); err != nil {
		appLog.Error("build finished with rejected input", err,
			"accepted", rep.Accepted,
			"missing", len(rep.Missing),
		)
		return 1
	}
	appLog.Info("build finished", "accepted", rep.Accepted, "missing", len(rep.Missing), "skipped", rep.Skipped)
	return 0
}

// watch runs a build immediately and then on every cron tick until SIGINT
// or SIGTERM. A tick that fires while a build is still running is skipped.
func watch(p *pipeline.Pipeline, spec string) error {
	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(spec, func() { buildOnce(p) }); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	buildOnce(p)
	c.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLog.Info("signal received, shutting down", "signal", sig.String())

	<-c.Stop().Done()
	return nil
}

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

func cmdSyncIndex(conf *config.Config, args []string, stdout, stderr io.Writer) int {
	created := append(index.ParseCreated(os.Getenv("CREATED")), args...)
	files, err := index.Sync(conf.DataDir, conf.Path(conf.IndexFile), created)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s updated with %d files\n", conf.IndexFile, len(files))
	return 0
}

package main

import (
	"context"
	"ddnsguard/blocklist"
	"ddnsguard/config"
	"ddnsguard/ddns"
	"ddnsguard/log"
	"ddnsguard/metrics"
	"ddnsguard/publicip"
	"ddnsguard/selfupdate"
	"ddnsguard/updater"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	defaultRefreshRate = 60 * time.Second

	// exitRestart asks the service manager to start the updated binary.
	exitRestart = 75
)

var (
	configPath = flag.StringP("config", "c", "config.toml", "path to config file")
	envFile    = flag.String("env-file", ".env", "dotenv file with provider credentials")
	debug      = flag.Bool("debug", false, "enable debug output")
	once       = flag.Bool("once", false, "run a single cycle and exit")
	help       = flag.BoolP("help", "h", false, "Print help message")
)

var buildDate string

var conf config.Config

func init() {
	flag.Parse()
	if *help {
		fmt.Println(flag.CommandLine.FlagUsages())
		os.Exit(0)
	}
}

func getInitLogger() context.Context {
	var err error
	var logger *zap.Logger

	if *debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}

	if err != nil {
		fmt.Printf("Failed creating logger: %v\n", err)
		os.Exit(1)
	}

	return log.WithLogger(context.Background(), logger)
}

// getLogger builds the configured logger. The returned func flushes it and
// closes the log file, if any.
func getLogger(ctx context.Context) (context.Context, func()) {
	var logOption zap.Config
	if *debug {
		logOption = zap.NewDevelopmentConfig()
	} else {
		logOption = zap.NewProductionConfig()
	}

	if conf.Log.Level != nil {
		logOption.Level.SetLevel(*conf.Log.Level)
	}

	if conf.Log.Encoding != nil {
		logOption.Encoding = *conf.Log.Encoding
	}

	if conf.Log.InfoPath != nil {
		logOption.OutputPaths = *conf.Log.InfoPath
	}

	if conf.Log.ErrorPath != nil {
		logOption.ErrorOutputPaths = *conf.Log.ErrorPath
	}

	if conf.Service.Name != "" {
		logOption.InitialFields = map[string]interface{}{
			"node": conf.Service.Name,
		}
	}

	var opts []zap.Option
	closeFile := func() error { return nil }
	if conf.Log.File != nil && conf.Log.File.Path != "" {
		var tee zap.Option
		tee, closeFile = log.TeeFile(*conf.Log.File, logOption)
		opts = append(opts, tee)
	}

	logger, err := logOption.Build(opts...)
	if err != nil {
		log.S(ctx).Fatalw("cannot build real logger", zap.Error(err))
	}

	return log.WithLogger(context.Background(), logger), func() {
		_ = logger.Sync()
		_ = closeFile()
	}
}

func loadEnvFile(ctx context.Context) {
	err := godotenv.Load(*envFile)
	switch {
	case err == nil:
		log.S(ctx).Infow("loaded environment file", "path", *envFile)
	case errors.Is(err, fs.ErrNotExist) && !flag.CommandLine.Changed("env-file"):
		log.S(ctx).Debugw("no environment file", "path", *envFile)
	default:
		log.S(ctx).Fatalw("failed loading environment file", "path", *envFile, zap.Error(err))
	}
}

func refreshRate() time.Duration {
	if *once {
		return 0
	}
	if conf.Service.RefreshRate == nil {
		return defaultRefreshRate
	}
	return time.Duration(*conf.Service.RefreshRate)
}

func run(ctx context.Context) int {
	extra := make([]netip.Prefix, 0, len(conf.Resolver.ExtraBlocked))
	for _, c := range conf.Resolver.ExtraBlocked {
		extra = append(extra, c.Prefix)
	}

	blocks := blocklist.NewLoader(conf.Resolver.RangesURL,
		conf.Resolver.RangesTimeout.Or(blocklist.DefaultRangesTimeout), extra)
	m := metrics.New(conf.Metrics.Textfile)

	resolver, err := publicip.NewResolver(ctx, conf.Resolver, publicip.NewValidator(blocks))
	if err != nil {
		log.S(ctx).Errorw("cannot init resolver", zap.Error(err))
		return 1
	}
	resolver.OnReject(m.CandidateRejected)

	provider, err := ddns.New(ctx, conf.Provider)
	if err != nil {
		log.S(ctx).Errorw("cannot init provider", zap.Error(err))
		return 1
	}

	loop := &updater.Loop{
		Cycle:    updater.NewSyncer(resolver, provider),
		Interval: refreshRate(),
		AfterCycle: func(ctx context.Context, o updater.Outcome) {
			m.ObserveBlockList(blocks.Loaded())
			m.ObserveCycle(o)
			_ = m.Flush(ctx)
		},
	}

	if conf.AutoUpdate.Enabled {
		loop.BeforeCycle = selfupdate.New(conf.AutoUpdate).Check
	}

	log.S(ctx).Infow("ddnsguard running",
		"provider", conf.Provider.Type,
		"interval", loop.Interval,
		"endpoints", len(conf.Resolver.Endpoints),
		"auto_update", conf.AutoUpdate.Enabled,
		"auto_pull", conf.AutoUpdate.Pull,
		"metrics_textfile", conf.Metrics.Textfile)

	err = loop.Run(ctx)
	if errors.Is(err, updater.ErrRestartRequested) {
		return exitRestart
	}
	if err != nil {
		log.S(ctx).Errorw("loop stopped", zap.Error(err))
		return 1
	}

	return 0
}

func main() {
	ctx := getInitLogger()

	if buildDate != "" {
		log.S(ctx).Infow("ddnsguard starting", "variant", "release", "build_date", buildDate)
	} else {
		log.S(ctx).Infow("ddnsguard starting", "variant", "debug")
	}

	loadEnvFile(ctx)

	var err error
	conf, err = config.Load(*configPath)
	if err != nil {
		log.S(ctx).Fatalw("failed loading config", "path", *configPath, zap.Error(err))
	}

	if err := config.ApplyEnv(&conf, os.Environ()); err != nil {
		log.S(ctx).Fatalw("failed applying environment", zap.Error(err))
	}

	ctx, closeLogger := getLogger(ctx)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	code := run(ctx)
	stop()

	closeLogger()
	os.Exit(code)
}

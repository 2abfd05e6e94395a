// monitor runs the Ethereum block-monitoring and notification-dispatch
// service as a standalone process.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/luxfi/ethmonitor/internal/config"
	"github.com/luxfi/ethmonitor/internal/dispatch"
	"github.com/luxfi/ethmonitor/internal/metrics"
	"github.com/luxfi/ethmonitor/internal/monitor"
	"github.com/luxfi/ethmonitor/internal/pending"
	"github.com/luxfi/ethmonitor/internal/rpcclient"
	"github.com/luxfi/ethmonitor/internal/store"
	"github.com/luxfi/ethmonitor/log"
)

const clientIdentifier = "ethmonitor"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "Ethereum block monitor and notification dispatcher",
	Version: "1.0.0",
}

func init() {
	app.Commands = []*cli.Command{runCommand}
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "start the block monitor",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to a YAML config file"},
	},
	Action: runMonitor,
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMonitor(cctx *cli.Context) error {
	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpcPair, err := rpcclient.NewPair(cfg.NodeURL)
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}

	st, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	pt := pending.New(rdb)
	bus := dispatch.New(rdb)

	m := metrics.New()
	mon := monitor.New(monitor.Config{
		DefaultPollDelay: cfg.DefaultPollDelay,
		FilterTimeout:    cfg.FilterTimeout,
		SanityCallback:   cfg.SanityCallback,
		NewBlockTimeout:  cfg.NewBlockTimeout,
		PendingTxExpiry:  cfg.PendingTxExpiry,
		ReorgBatch:       cfg.ReorgBatch,
		ReorgMaxDepth:    cfg.ReorgMaxDepth,
		TransferTopic:    cfg.TransferTopic,
		DepositTopic:     cfg.DepositTopic,
		WithdrawalTopic:  cfg.WithdrawalTopic,
		WETHContract:     cfg.WETHContract,
	}, rpcPair, st, pt, bus, m)

	if err := mon.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap high-water mark: %w", err)
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: m.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server exited", "err", err)
		}
	}()

	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	<-ctx.Done()
	log.Info("shutdown signal received, draining in-flight work")
	mon.Shutdown()
	_ = metricsSrv.Close()
	return nil
}

// setupLogging wires the root logger to a terminal handler, or to a
// lumberjack-rotated JSON file sink when cfg.LogFile is set, filtered
// to cfg.LogLevel via the glog-style verbosity handler.
func setupLogging(cfg *config.Config) {
	level, err := log.LvlFromString(cfg.LogLevel)
	if err != nil {
		level = log.LevelInfo
	}

	var glog *log.GlogHandler
	if cfg.LogFile != "" {
		out := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		glog = log.NewGlogHandler(log.NewFileHandler(out))
	} else {
		glog = log.NewGlogHandler(log.NewTerminalHandler(os.Stderr, true))
	}
	glog.Verbosity(level)
	log.SetDefault(log.NewLogger(glog))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sanity-io/litter"

	"github.com/zeusync/boardsync/internal/config"
	"github.com/zeusync/boardsync/internal/core/observability/log"
	"github.com/zeusync/boardsync/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	listen := flag.String("listen", "", "listen address, overrides the config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}

	d, cleanup, err := injector.InitializeDeployment(cfg)
	if err != nil {
		fmt.Println("Error building server:", err)
		os.Exit(1)
	}
	defer cleanup()
	defer func() { _ = d.Logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = d.Server.Start(ctx); err != nil {
		d.Logger.Error("Error starting server", log.Error(err))
		return
	}
	d.Logger.Info("Board server listening", log.String("addr", d.Server.Addr()))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = d.Server.Stop(shutdownCtx); err != nil {
		d.Logger.Error("Error stopping server", log.Error(err))
	}
	if cfg.DumpState {
		dumpState(shutdownCtx, d)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		c := config.Default()
		return &c, nil
	}
	return config.LoadFile(path)
}

// dumpState prints every live record so a test deployment can be inspected
// after shutdown.
func dumpState(ctx context.Context, d *injector.Deployment) {
	boards, err := d.API.Boards.List(ctx, "")
	if err != nil {
		d.Logger.Warn("Dump failed", log.Error(err))
		return
	}
	columns, _ := d.API.Columns.List(ctx, "")
	tasks, _ := d.API.Tasks.List(ctx, "")

	sq := litter.Options{HidePrivateFields: true, HideZeroValues: true, Compact: false}
	fmt.Println(sq.Sdump(boards))
	fmt.Println(sq.Sdump(columns))
	fmt.Println(sq.Sdump(tasks))
	fmt.Println(litter.Sdump(d.Server.GetStats()))
}

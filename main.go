package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/reelforge/clip-engine/config"
	"github.com/reelforge/clip-engine/metrics"
	"github.com/reelforge/clip-engine/pipeline"
	"github.com/reelforge/clip-engine/pprof"
)

func main() {
	err := flag.Set("logtostderr", "true")
	if err != nil {
		glog.Fatal(err)
	}
	vFlag := flag.Lookup("v")

	cli, err := config.LoadConfig("clip-engine", os.Args[1:])
	if err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}
	err = flag.CommandLine.Parse(nil)
	if err != nil {
		glog.Fatal(err)
	}

	if cli.PrintVersion {
		fmt.Printf("clip-engine version: %s\n", config.Version)
		return
	}

	if cli.Verbosity != "" {
		err = vFlag.Value.Set(cli.Verbosity)
		if err != nil {
			glog.Fatal(err)
		}
	}

	go func() {
		log.Println(pprof.ListenAndServe(cli.PprofPort))
	}()

	engine, err := pipeline.New(cli)
	if err != nil {
		glog.Fatalf("error creating analysis engine: %v", err)
	}
	engine.Start()

	// Root context; cancelling it prompts every component to shut down cleanly
	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		return metrics.ListenAndServe(cli.MetricsPort)
	})

	err = group.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if shutdownErr := engine.Shutdown(shutdownCtx); shutdownErr != nil {
		glog.Errorf("engine shutdown incomplete: %v", shutdownErr)
	}
	glog.Infof("Shutdown complete. Reason for shutdown: %s", err)
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case s := <-c:
			glog.Errorf("caught signal=%v, attempting clean shutdown", s)
			return fmt.Errorf("caught signal=%v", s)
		case <-ctx.Done():
			return nil
		}
	}
}

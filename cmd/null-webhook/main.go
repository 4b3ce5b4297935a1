package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/sigmon"

	"github.com/joshp123/null-webhook/internal/config"
	"github.com/joshp123/null-webhook/internal/readiness"
	"github.com/joshp123/null-webhook/internal/server"
)

var version = "dev"

const withdrawTimeout = 2 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stdout, os.Stderr))
}

func run(args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	errLog := log.New(stderr, "", 0)

	cfg, err := config.Load(args, getenv)
	if errors.Is(err, flag.ErrHelp) {
		config.PrintUsage(stdout)
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "null-webhook: %v\n\n", err)
		config.PrintUsage(stderr)
		return 2
	}
	if cfg.ShowVersion {
		fmt.Fprintf(stdout, "null-webhook %s\n", version)
		return 0
	}

	announcers, err := buildAnnouncers(cfg, errLog)
	if err != nil {
		return fatal(errLog, "readiness", err)
	}

	ready := make(chan server.Ready, 1)
	ctx, cancel := context.WithCancel(context.Background())
	announced := make(chan struct{})
	go func() {
		defer close(announced)
		readiness.Announce(ctx, ready, errLog, announcers...)
	}()

	runner := server.Runner(cfg.Server, server.RunnerOptions{
		Options: server.Options{
			Ready:  ready,
			Stdout: log.New(stdout, "", 0),
			Stderr: errLog,
		},
		OnSignal: func(os.Signal) { errLog.Print("user requested shutdown...") },
	})
	process := ifrit.Invoke(sigmon.New(runner, os.Interrupt, syscall.SIGTERM))
	serveErr := <-process.Wait()

	cancel()
	<-announced

	withdrawCtx, cancelWithdraw := context.WithTimeout(context.Background(), withdrawTimeout)
	defer cancelWithdraw()
	readiness.Withdraw(withdrawCtx, errLog, announcers...)

	if serveErr != nil {
		return fatal(errLog, "serve", serveErr)
	}
	return 0
}

// buildAnnouncers binds the health endpoint last so no earlier failure can
// leave it serving.
func buildAnnouncers(cfg *config.Config, errLog *log.Logger) ([]readiness.Announcer, error) {
	var announcers []readiness.Announcer
	if cfg.SystemdNotify {
		announcers = append(announcers, readiness.Systemd{})
	}
	if cfg.MQTT.Broker != "" {
		m, err := readiness.NewMQTT(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		announcers = append(announcers, m)
	}
	if cfg.HealthAddr != "" {
		h, err := readiness.NewHealth(cfg.HealthAddr, readiness.DefaultHealthService)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := h.Serve(); err != nil {
				errLog.Printf("grpc health serve: %v", err)
			}
		}()
		announcers = append(announcers, h)
	}
	return announcers, nil
}

func fatal(errLog *log.Logger, action string, err error) int {
	errLog.Printf("%s: %v", action, err)
	return 1
}

// Command ipmimonitor opens a local OpenIPMI character device, drives
// discovery to completion, and serves the resulting BMC/satellite topology
// plus a live event feed over HTTP — a demonstration harness for the
// ipmicore packages, in the same spirit as the teacher's console-server
// main.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"ipmicore/discovery"
	"ipmicore/events"
	"ipmicore/internal/config"
	"ipmicore/internal/eventlog"
	"ipmicore/ipmi"
	"ipmicore/mc"
	"ipmicore/osdeps"
	"ipmicore/transport"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", "ipmimonitor.yaml", "path to config file")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("ipmimonitor: loading config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("ipmimonitor: shutting down")
		cancel()
	}()

	dev, err := transport.OpenCharDevice(cfg.Device.Number)
	if err != nil {
		log.Fatalf("ipmimonitor: opening character device: %v", err)
	}

	poller, err := osdeps.NewEpollPoller()
	if err != nil {
		log.Fatalf("ipmimonitor: creating poller: %v", err)
	}
	defer poller.Close()

	conn, err := transport.NewConnection(dev, poller, log.NewEntry(log.StandardLogger()))
	if err != nil {
		log.Fatalf("ipmimonitor: opening connection: %v", err)
	}

	bmc := mc.NewBMC(ipmi.SystemInterface(0), conn)

	eventWriter := eventlog.NewWriter(cfg.Events.Path, cfg.Events.RetentionDays)
	defer eventWriter.Close()

	hub := newHub()
	dispatcher := events.NewDispatcher(bmc)
	dispatcher.Subscribe(func(addr ipmi.Address, msg ipmi.Message) {
		line := fmt.Sprintf("event addr=%s netfn=%#x cmd=%#x data=% x", addr, msg.NetFn, msg.Cmd, msg.Data)
		hub.broadcast(line)
		if err := eventWriter.Write(addr.String(), line); err != nil {
			log.WithError(err).Warn("ipmimonitor: writing event log")
		}
	})
	conn.RegisterEventHandler(dispatcher.Dispatch)

	engine := discovery.NewEngine(bmc, conn, discovery.Config{
		DoBusScan:          cfg.Discovery.BusScan,
		NumChannelsToProbe: cfg.Discovery.NumChannelsToProbe,
		OnSetupError: func(err error) {
			log.WithError(err).Error("ipmimonitor: discovery failed")
			hub.broadcast(fmt.Sprintf("discovery error: %v", err))
		},
		NewMCHook: func(m *mc.MC) {
			line := fmt.Sprintf("discovered satellite %s (device_id=%#x manufacturer=%#x)", m.Addr, m.DeviceID.DeviceID, m.DeviceID.ManufacturerID)
			hub.broadcast(line)
			if err := eventWriter.Write("bmc", line); err != nil {
				log.WithError(err).Warn("ipmimonitor: writing event log")
			}
		},
	})

	if err := engine.Start(ctx); err != nil {
		log.Fatalf("ipmimonitor: starting discovery: %v", err)
	}

	go runPoller(ctx, poller)

	if cfg.Discovery.RescanInterval > 0 {
		go runPeriodicRescan(ctx, engine, cfg.Discovery.RescanInterval)
	}

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				eventWriter.Cleanup()
			}
		}
	}()

	srv := newServer(cfg.Server.Port, version, bmc, eventWriter, hub)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("ipmimonitor: server error: %v", err)
	}
}

func runPoller(ctx context.Context, poller osdeps.Poller) {
	for {
		if err := poller.RunOne(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("ipmimonitor: poller iteration failed")
		}
	}
}

func runPeriodicRescan(ctx context.Context, engine *discovery.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engine.Rescan(ctx)
		}
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/bridge"
	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/config"
	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/devices"
	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/lifecycle"
)

// cliPlatform stands in for the host's device chooser, which only exists in
// an embedding with a UI. The CLI drives the bridge path exclusively.
type cliPlatform struct{}

func (cliPlatform) RequestDevice(ctx context.Context) (lifecycle.USBDevice, error) {
	return nil, errors.New("direct connections need a device chooser; use the bridge path")
}

// cliCredentialStore holds no keys: bridge connections are authenticated by
// the bridge's own ADB server, so the CLI never needs key material.
type cliCredentialStore struct{}

func (cliCredentialStore) KeyMaterial(ctx context.Context) ([]byte, error) {
	return nil, errors.New("no credential store configured")
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	bridgeAddr := flag.String("bridge", "", "Bridge address override (host:port or URL)")
	serial := flag.String("serial", "", "Connect to this device once it appears")
	devMode := flag.Bool("dev", false, "Development mode (use the adb-killer companion)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *bridgeAddr != "" {
		cfg.Bridge.Address = *bridgeAddr
	}
	if *devMode {
		cfg.Companion.Enabled = true
	}

	ep := bridge.ResolveEndpoint(cfg.Bridge.Address)
	log.Printf("Bridge data endpoint: %s (local=%v)", ep.DataURL, ep.IsLocal)

	prober := bridge.NewProber(cfg.Bridge.ProbeTimeout.Std())
	connector := bridge.NewConnector(ep, cfg.Bridge.ConnectTimeout.Std())

	fetch := func(ctx context.Context) (devices.Snapshot, error) {
		sess, err := connector.Connect(ctx)
		if err != nil {
			return nil, err
		}
		client := bridge.NewClient(sess)
		defer client.Close()
		return client.ListDevices(ctx)
	}
	probe := func(ctx context.Context) bool {
		return prober.Probe(ctx, ep)
	}

	poller := devices.NewPoller(fetch, probe, cfg.Bridge.PollInterval.Std())
	orch := lifecycle.New(cfg, cliPlatform{}, cliCredentialStore{}, lifecycle.WrapConnector(connector))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	go poller.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			orch.Disconnect()
			return
		case err := <-poller.Errors():
			log.Printf("Device poll failed: %v", err)
		case snap := <-poller.Updates():
			printSnapshot(snap)
			if *serial == "" {
				continue
			}
			for _, rec := range snap {
				if rec.Serial != *serial || rec.State != devices.StateDevice {
					continue
				}
				if orch.State() != lifecycle.StateIdle {
					continue
				}
				sess, err := orch.ConnectBridge(ctx, rec)
				if err != nil {
					log.Printf("Connect failed: %v", err)
					continue
				}
				log.Printf("Connected to %s (legacy=%v); waiting for disconnect", sess.Serial(), orch.LegacyDevice())
				go func() {
					if err := orch.AwaitDisconnect(ctx); err == nil {
						log.Printf("Device %s gone", rec.Serial)
					}
				}()
			}
		}
	}
}

func printSnapshot(snap devices.Snapshot) {
	if len(snap) == 0 {
		log.Println("No devices")
		return
	}
	for _, rec := range snap {
		log.Printf("Device %s: %s", rec.Serial, rec.State)
	}
}

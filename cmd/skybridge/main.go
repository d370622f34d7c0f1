// Command skybridge bridges a flight simulator to a fleet of WebSocket and
// UDP consumers: radar contacts, the user aircraft, system state, and an
// avionics device channel, all driven from one 20ms real-time tick.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"skybridge/internal/cli"
	"skybridge/internal/clock"
	"skybridge/internal/config"
	"skybridge/internal/fanout"
	"skybridge/internal/metrics"
	"skybridge/internal/obslog"
	"skybridge/internal/version"
	"skybridge/pkg/bridge"
	"skybridge/pkg/devicesrv"
	"skybridge/pkg/radar"
	"skybridge/pkg/simlink"
	"skybridge/pkg/simlink/simconnect"
	"skybridge/pkg/simlink/simconnect/mock"
)

var configPath = flag.String("config", "configs/skybridge.yaml", "path to the configuration file")

func main() {
	flag.Parse()

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "skybridge: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := obslog.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("skybridge started", "version", version.Version)

	transport, err := newSimTransport(cfg.Sim)
	if err != nil {
		return fmt.Errorf("failed to build sim transport: %w", err)
	}

	link := simlink.NewLink(transport, slog.Default())

	userTracker := radar.NewUserTracker(link, slog.Default())
	contactRadar := radar.NewRadar(link, userTracker, slog.Default())

	radio := devicesrv.NewRadio(link, slog.Default())
	deviceManager := devicesrv.NewManager(radio, slog.Default())
	deviceServer := devicesrv.NewServer(deviceManager, cfg.Device.SlotCount, slog.Default())

	deviceHost, devicePort, err := splitHostPort(cfg.Device.ListenAddress)
	if err != nil {
		return fmt.Errorf("invalid device.listen_address: %w", err)
	}
	br := bridge.NewBridge(link, deviceServer, cfg.Sim.AppName, deviceHost, devicePort, slog.Default())

	reg := metrics.NewRegistry()
	hub := fanout.NewHub(slog.Default(), reg)
	br.Send = hub.Broadcast

	wireCallbacks(link, contactRadar, userTracker, deviceManager, deviceServer, br)

	rt := bridge.NewRealTimeThread()
	rt.PollSimLink = func() {
		for link.RunCallbacks() {
		}
	}
	rt.UpdateRadar = func() {
		contactRadar.Tick(clock.SteadyNowMS())
		reg.RadarTracks.Set(float64(contactRadar.Count()))
	}
	rt.PollDevices = func() {
		deviceServer.Poll()
		reg.DeviceSlots.Set(float64(deviceServer.ConnectionCount()))
	}
	rt.Tick = func() {
		br.CommitRx(contactRadar.Resync, userTracker.Resync, userTracker.Spawned)
		br.CommitTx()
	}
	rt.Start()
	defer rt.Stop()

	fanoutServer := fanout.NewServer(cfg.Server.Address, cfg.Server.StaticRoot, hub, br, slog.Default())

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = &http.Server{Addr: cfg.Metrics.Address, Handler: reg.Handler()}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	console := cli.NewConsole(os.Stdin, os.Stdout, deviceServer, slog.Default())
	console.Stop = func() { quit <- syscall.SIGTERM }
	go console.Run()

	if err := link.Initialize(cfg.Sim.AppName); err != nil {
		slog.Warn("initial simulator connection failed, will retry", "error", err)
	}

	return runServerLifecycle(ctx, fanoutServer, metricsServer, quit)
}

// splitHostPort splits a "host:port" listen address into the separate
// host and numeric port devicenet.Transport.Listen expects.
func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}

// newSimTransport selects the simulator transport per configuration:
// "simconnect" drives the real SimConnect.dll, "mock" drives an in-process
// physics simulator for development without a running flight simulator.
func newSimTransport(cfg config.SimConfig) (simlink.Transport, error) {
	switch cfg.Provider {
	case "mock":
		return mock.NewTransport(47.4502, -122.3088, 8), nil
	case "simconnect", "":
		return simconnect.NewAdapter(cfg.DLLPath, slog.Default())
	default:
		return nil, fmt.Errorf("unknown sim provider %q", cfg.Provider)
	}
}

// wireCallbacks connects every domain component's event hooks to the
// bridge, which is the sole place outbound wire messages are built.
func wireCallbacks(link *simlink.Link, contactRadar *radar.Radar, userTracker *radar.UserTracker, deviceManager *devicesrv.Manager, deviceServer *devicesrv.Server, br *bridge.Bridge) {
	link.OnConnect = func(info simlink.ConnectInfo) {
		br.HandleSimConnect(info.ApplicationName)
		if !contactRadar.Initialize() {
			slog.Error("radar initialization failed")
		}
		if !userTracker.RegisterModels() {
			slog.Error("user tracker model registration failed")
		}
	}
	link.OnDisconnect = func() { br.HandleSimDisconnect() }
	link.OnObjectAdded = func(objectID uint32, objType simlink.ObjectType) {
		contactRadar.HandleObjectAdded(objectID, objType)
	}
	link.OnObjectRemoved = func(objectID uint32, objType simlink.ObjectType) {
		contactRadar.HandleObjectRemoved(objectID, objType)
		if userTracker.ObjectID() == objectID {
			userTracker.Remove()
		}
	}

	contactRadar.OnPlaneAdd = br.OnPlaneAdd
	contactRadar.OnPlaneUpdate = br.OnPlaneUpdate
	contactRadar.OnPlaneRemove = br.OnPlaneRemove
	contactRadar.OnResync = br.OnRadarResync

	userTracker.OnAdd = br.OnUserAdd
	userTracker.OnUpdate = br.OnUserUpdate
	userTracker.OnRemove = br.OnUserRemove
	userTracker.OnResync = br.OnUserResync

	deviceManager.OnDeviceConnect = br.HandleDeviceConnect
	deviceManager.OnDeviceDisconnect = br.HandleDeviceDisconnect

	deviceServer.OnStart = br.HandleServerStart
	deviceServer.OnStop = br.HandleServerStop
}

// runServerLifecycle runs the fan-out HTTP server (and, if configured, the
// Prometheus metrics server) until a signal arrives, ctx is cancelled, or
// either server fails, then shuts both down concurrently with a bounded
// grace period.
func runServerLifecycle(ctx context.Context, srv *fanout.Server, metricsSrv *http.Server, quit chan os.Signal) error {
	serverErrors := make(chan error, 2)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("fanout server: %w", err)
		}
	}()
	if metricsSrv != nil {
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrors <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	select {
	case <-quit:
		slog.Info("shutting down")
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	case err := <-serverErrors:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error { return srv.Shutdown(shutdownCtx) })
	if metricsSrv != nil {
		eg.Go(func() error { return metricsSrv.Shutdown(shutdownCtx) })
	}
	return eg.Wait()
}

// Command passthrough-probe drives the pass-through camera core end to end:
// it opens a camera backend, runs a simulated compositor loop that pulls
// frames and computes their projections, and serves debug routes, a gRPC
// health service and a session journal while it runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/passthrough/internal/camera"
	"github.com/banshee-data/passthrough/internal/config"
	"github.com/banshee-data/passthrough/internal/monitoring"
	"github.com/banshee-data/passthrough/internal/passthrough"
	"github.com/banshee-data/passthrough/internal/sessionlog"
	"github.com/banshee-data/passthrough/internal/timeutil"
	"github.com/banshee-data/passthrough/internal/version"
	"github.com/banshee-data/passthrough/internal/xr"
	"github.com/banshee-data/passthrough/internal/xrmath"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	backend     = flag.String("backend", "mock", "Camera backend: mock, v4l2 or disabled")
	devicePath  = flag.String("device", "/dev/video0", "V4L2 device path (v4l2 backend)")
	v4l2Layout  = flag.String("v4l2-layout", "stereo_horizontal", "Packing of the V4L2 stereo frame")
	configPath  = flag.String("config", "", "JSON config file, reloaded when it changes")
	listen      = flag.String("listen", "localhost:8080", "Debug HTTP listen address")
	grpcListen  = flag.String("grpc-listen", "localhost:50051", "gRPC health listen address (empty disables)")
	journalPath = flag.String("journal", "passthrough-sessions.db", "Session journal database (empty disables)")
	renderHz    = flag.Float64("render-hz", 90, "Simulated compositor frame rate")
	duration    = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	sway        = flag.Bool("sway", false, "Animate the head pose to exercise reprojection")
	plotPath    = flag.String("plot", "", "Write a PNG of capture intervals here on exit")
	retry       = flag.Duration("retry", time.Second, "Delay between camera open attempts")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// standingHead is the head pose used until -sway moves it.
var standingHead = xrmath.Pose{Orientation: xrmath.IdentityPose().Orientation, Position: r3.Vec{Y: 1.6}}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *renderHz <= 0 {
		log.Fatal("render-hz must be positive")
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	provider := config.NewProvider(cfg)
	monitoring.SetDebug(*debug || cfg.GetDebug())
	log.Printf("passthrough-probe %s", version.String())

	tracker := xr.NewStaticTracker()
	tracker.SetHeadPose(standingHead)
	rt, mock, err := newRuntime(*backend, tracker)
	if err != nil {
		log.Fatalf("failed to create %s backend: %v", *backend, err)
	}
	if mock != nil {
		mock.SetPose(standingHead.Matrix(), true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	health := newHealthReporter()
	obs := observers{health}
	var journal *sessionlog.Journal
	if *journalPath != "" {
		journal, err = sessionlog.Open(*journalPath)
		if err != nil {
			log.Fatalf("failed to open session journal: %v", err)
		}
		defer journal.Close()
		obs = append(obs, journal)
	}

	mgr := passthrough.NewCameraManager(passthrough.Options{
		Runtime:  rt,
		Tracker:  tracker,
		Config:   provider,
		Observer: obs,
	})
	provider.Subscribe(func(*config.Config) {
		err := mgr.UpdateStaticCameraParameters()
		if err != nil && !errors.Is(err, passthrough.ErrCameraNotInitialized) {
			log.Printf("calibration refresh after config change: %v", err)
		}
	})

	var wg sync.WaitGroup

	if *configPath != "" {
		w, err := config.NewWatcher(*configPath, provider)
		if err != nil {
			log.Fatalf("failed to watch config: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("config watcher: %v", err)
			}
		}()
	}

	// HTTP debug server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux := http.NewServeMux()
		mgr.AttachAdminRoutes(mux)
		attachPlotRoute(mux, mgr)
		if journal != nil {
			if err := journal.AttachAdminRoutes(mux); err != nil {
				log.Printf("session journal routes: %v", err)
			}
		}
		serveHTTP(ctx, *listen, mux)
	}()

	if *grpcListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveHealth(ctx, *grpcListen, health); err != nil {
				log.Printf("gRPC health server: %v", err)
			}
		}()
	}

	if err := mgr.InitRuntime(); err != nil {
		log.Printf("pass-through unavailable: %v", err)
	} else if err := startCamera(ctx, mgr, *retry); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("failed to start camera: %v", err)
		}
	} else {
		r := newRenderer(mgr, tracker, mock, *sway)
		r.retry = *retry
		r.run(ctx, time.Duration(float64(time.Second) / *renderHz))
		log.Printf("render loop stopped: %d frames projected, %d with invalid projections, %d display frames without a new camera frame",
			r.projected, r.invalid, r.misses)
	}

	<-ctx.Done()
	if *plotPath != "" {
		if err := writeIntervalPlot(*plotPath, mgr.CaptureIntervals()); err != nil {
			log.Printf("failed to write interval plot: %v", err)
		} else {
			log.Printf("wrote capture interval plot to %s", *plotPath)
		}
	}
	mgr.DeinitRuntime()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func newRuntime(name string, tracker *xr.StaticTracker) (camera.Runtime, *camera.MockRuntime, error) {
	switch name {
	case "mock":
		m := camera.NewMockRuntime(camera.MockConfig{})
		return m, m, nil
	case "v4l2":
		layout, err := camera.ParseFrameLayout(*v4l2Layout)
		if err != nil {
			return nil, nil, err
		}
		pose := func() (xrmath.Mat4, bool) {
			return tracker.HeadPose().Matrix(), true
		}
		rt, err := camera.NewV4L2Runtime(camera.V4L2Options{DevicePath: *devicePath, Layout: layout}, pose)
		if err != nil {
			return nil, nil, err
		}
		return rt, nil, nil
	case "disabled":
		return camera.NewDisabledRuntime(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", name)
	}
}

// startCamera opens the camera, retrying while the headset reports no
// camera or the device is busy.
func startCamera(ctx context.Context, mgr *passthrough.CameraManager, delay time.Duration) error {
	for {
		err := mgr.InitCamera()
		if err == nil {
			return nil
		}
		if !errors.Is(err, passthrough.ErrCameraUnavailable) && !errors.Is(err, passthrough.ErrCameraOpenFailed) {
			return err
		}
		log.Printf("camera not ready, retrying in %s: %v", delay, err)
		if err := timeutil.Wait(ctx, timeutil.RealClock{}, delay); err != nil {
			return err
		}
	}
}

func serveHTTP(ctx context.Context, addr string, mux *http.ServeMux) {
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		log.Printf("debug server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}

// observers fans session events out to several observers.
type observers []passthrough.SessionObserver

func (o observers) SessionOpened(info passthrough.SessionInfo) {
	for _, ob := range o {
		ob.SessionOpened(info)
	}
}

func (o observers) SessionClosed(info passthrough.SessionInfo, summary passthrough.SessionSummary) {
	for _, ob := range o {
		ob.SessionClosed(info, summary)
	}
}

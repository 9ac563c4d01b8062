package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/limbcontrol/internal/classifier"
	"github.com/banshee-data/limbcontrol/internal/config"
	"github.com/banshee-data/limbcontrol/internal/db"
	"github.com/banshee-data/limbcontrol/internal/monitoring"
	"github.com/banshee-data/limbcontrol/internal/plant"
	"github.com/banshee-data/limbcontrol/internal/roc"
	"github.com/banshee-data/limbcontrol/internal/scenario"
	"github.com/banshee-data/limbcontrol/internal/serialmux"
	"github.com/banshee-data/limbcontrol/internal/signal"
	"github.com/banshee-data/limbcontrol/internal/sink"
	"github.com/banshee-data/limbcontrol/internal/trainer"
	"github.com/banshee-data/limbcontrol/internal/training"
	"github.com/banshee-data/limbcontrol/internal/version"
)

const defaultDBFile = "limb_training.db"

var (
	configFile  = flag.String("config", "", "Path to a YAML or JSON control config (built-in defaults when empty)")
	dbFile      = flag.String("db", defaultDBFile, "Path to the SQLite training database")
	listen      = flag.String("listen", ":8090", "HTTP listen address for /ws, /metrics and /debug/")
	grpcListen  = flag.String("grpc-listen", "localhost:50061", "gRPC health service address (empty disables)")
	sourceKind  = flag.String("source", "udp", "Signal source: udp, serial, sim or replay")
	udpAddr     = flag.String("udp", signal.DefaultMyoAddress, "Myo UDP stream address")
	serialPort  = flag.String("serial", "/dev/ttyACM0", "Serial EMG board device")
	serialBaud  = flag.Int("baud", serialmux.DefaultBaudRate, "Serial EMG board baud rate")
	channels    = flag.Int("channels", signal.MyoChannels, "Channel count for the serial and simulated sources")
	replayFile  = flag.String("replay", "", "pcap capture of Myo UDP traffic to replay")
	replaySpeed = flag.Float64("replay-speed", 1, "Replay speed multiplier")
	replayLoop  = flag.Bool("replay-loop", true, "Restart the replay at end of file")
	sinkAddr    = flag.String("sink", sink.DefaultUnityAddress, `Unity joint angle UDP address(es), comma separated, or "none"`)
	devMode     = flag.Bool("dev", false, "Use the simulated source, driven by the selected training class")
	showVersion = flag.Bool("version", false, "Print the version and exit")
	logDiag     = flag.Bool("log-diag", false, "Enable the diagnostic log stream")
	logTrace    = flag.Bool("log-trace", false, "Enable the per-tick trace log stream")
)

// healthService is the gRPC health service name reporting the control loop.
const healthService = "limb.ControlLoop"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("limb", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	configureLogging(*logDiag, *logTrace)
	log.Printf("limb %s", version.String())

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open training database: %v", err)
	}
	defer database.Close()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	var table *roc.Table
	if path := cfg.GetROCFile(); path != "" {
		if table, err = roc.Load(path); err != nil {
			log.Fatalf("Failed to load ROC table: %v", err)
		}
		log.Printf("Loaded %d ROC elements from %s", table.Len(), path)
	}
	lower, upper := cfg.GetJointLimits()
	limbPlant := plant.New(cfg.GetDt(), lower, upper, table)

	opts := sourceOptions{
		Kind:        *sourceKind,
		UDP:         *udpAddr,
		Serial:      *serialPort,
		Baud:        *serialBaud,
		Channels:    *channels,
		Replay:      *replayFile,
		ReplaySpeed: *replaySpeed,
		ReplayLoop:  *replayLoop,
	}
	if *devMode {
		opts.Kind = sourceSim
	}
	src, err := buildSource(opts, cfg)
	if err != nil {
		log.Fatalf("Failed to configure signal source: %v", err)
	}
	out, err := buildSink(*sinkAddr, metrics)
	if err != nil {
		log.Fatalf("Failed to open sink: %v", err)
	}

	store := training.NewStore(cfg.GetMotionNames(), src.ChannelCount(), nil)
	sc, err := scenario.New(scenario.Options{
		Config:     cfg,
		Sources:    []signal.Source{src},
		Store:      store,
		Classifier: classifier.New(),
		Plant:      limbPlant,
		Sink:       out,
		Persister:  database,
		Backuper:   database,
		Metrics:    metrics,
	})
	if err != nil {
		log.Fatalf("Failed to build control loop: %v", err)
	}
	defer sc.Close()

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sc.LoadTraining(ctx); err != nil {
		log.Printf("Training data not loaded: %v", err)
	}
	log.Printf("Classifier status: %s", sc.Status().Status)

	if err := src.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect %s source: %v", opts.Kind, err)
	}
	startSinks(ctx, out)
	if sim, ok := src.(*signal.SimulatedSource); ok {
		followTrainingClass(sc, sim)
	}

	var serialAdmin serialmux.SerialMuxInterface = serialmux.NewDisabledSerialMux(fmt.Sprintf("EMG source is %s", opts.Kind))
	if ss, ok := src.(*signal.SerialSource); ok && ss.Mux() != nil {
		serialAdmin = ss.Mux()
	}

	hub := trainer.NewHub(sc.SubmitString, metrics)
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)

	var wg sync.WaitGroup

	// Control loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
		if err := sc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Control loop error: %v", err)
		}
		healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
		log.Print("control loop routine terminated")
	}()

	// Trainer status publisher
	wg.Add(1)
	go func() {
		defer wg.Done()
		pub := &trainer.Publisher{
			RateHz:      cfg.GetStatusRateHz(),
			Status:      func() any { return sc.Status() },
			Out:         hub,
			OnlyChanges: true,
		}
		if err := pub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Status publisher error: %v", err)
		}
		log.Print("status publisher routine terminated")
	}()

	// gRPC health service
	if *grpcListen != "" {
		lis, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			log.Fatalf("Failed to listen on %s: %v", *grpcListen, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveHealth(ctx, lis, healthSrv); err != nil {
				log.Printf("gRPC health server error: %v", err)
			}
			log.Print("gRPC health routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux, err := newMux(routes{
			Trainer:  hub,
			Status:   func() any { return sc.Status() },
			Pose:     func() any { return poseOf(limbPlant.Snapshot()) },
			Database: database,
			Serial:   serialAdmin,
		})
		if err != nil {
			log.Fatalf("Failed to build HTTP routes: %v", err)
		}

		server := &http.Server{
			Addr:              *listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func configureLogging(diag, trace bool) {
	w := monitoring.LogWriters{Ops: os.Stderr}
	if diag {
		w.Diag = os.Stderr
	}
	if trace {
		w.Trace = os.Stderr
	}
	monitoring.SetLogWriters(w)
}

// followTrainingClass drives the simulated source with the pattern of the
// selected training class so the whole loop can be exercised without an
// armband.
func followTrainingClass(sc *scenario.Scenario, sim *signal.SimulatedSource) {
	apply := func() {
		st := sc.Status()
		id := slices.Index(st.ClassNames, st.TrainingMotion)
		sim.SetActivity(signal.PatternFor(id, sim.ChannelCount()))
	}
	apply()
	sc.OnStatusChange(apply)
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	path := fs.String("db", defaultDBFile, "Path to the SQLite training database")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: limb migrate [-db path] <action>")
		db.PrintMigrateHelp(fs.Output())
	}
	_ = fs.Parse(args)
	if err := db.RunMigrateCommand(fs.Args(), *path, os.Stdout); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

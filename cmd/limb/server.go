package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/limbcontrol/internal/httputil"
	"github.com/banshee-data/limbcontrol/internal/limb"
	"github.com/banshee-data/limbcontrol/internal/plant"
	"github.com/banshee-data/limbcontrol/internal/serialmux"
	"github.com/banshee-data/limbcontrol/internal/version"
)

// adminRouter is satisfied by *db.DB.
type adminRouter interface {
	AttachAdminRoutes(mux *http.ServeMux) error
}

type routes struct {
	Trainer  http.Handler
	Status   func() any
	Pose     func() any
	Database adminRouter
	Serial   serialmux.SerialMuxInterface
}

func newMux(r routes) (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.Handle("/ws", r.Trainer)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSONOK(w, map[string]string{
			"status":    "ok",
			"service":   "limb",
			"version":   version.Version,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSONOK(w, r.Status())
	})
	mux.HandleFunc("/api/pose", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSONOK(w, r.Pose())
	})

	if r.Serial != nil {
		r.Serial.AttachAdminRoutes(mux)
	}
	if r.Database != nil {
		if err := r.Database.AttachAdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("db admin routes: %w", err)
		}
	}
	return mux, nil
}

type jointAngle struct {
	Joint   string  `json:"joint"`
	Degrees float64 `json:"degrees"`
}

type pose struct {
	Joints        []jointAngle `json:"joints"`
	GraspID       string       `json:"graspId"`
	GraspPosition float64      `json:"graspPosition"`
	RocID         string       `json:"rocId"`
	RocPosition   float64      `json:"rocPosition"`
}

func poseOf(s plant.State) pose {
	p := pose{
		Joints:        make([]jointAngle, limb.NumJoints),
		GraspID:       s.GraspID,
		GraspPosition: s.GraspPosition,
		RocID:         s.RocID,
		RocPosition:   s.RocPosition,
	}
	for _, j := range limb.All() {
		p.Joints[j] = jointAngle{Joint: j.String(), Degrees: limb.RadToDeg(s.Position[j])}
	}
	return p
}

// serveHealth serves the gRPC health service on lis until ctx is done.
func serveHealth(ctx context.Context, lis net.Listener, hs *health.Server) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()
	if err := srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

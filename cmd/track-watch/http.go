package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/deliveries"
	"github.com/BearBump/TrackSync/internal/services/watch"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type watchHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	session *watch.Session
	mirror  *watch.Mirror
	clk     clockwork.Clock
}

// deliveryView is a delivery as the status API shows it.
type deliveryView struct {
	*models.Delivery
	ETALabel string `json:"etaLabel"`
}

func viewsOf(ds []*models.Delivery, now time.Time) []deliveryView {
	out := make([]deliveryView, 0, len(ds))
	for _, d := range ds {
		out = append(out, deliveryView{Delivery: d, ETALabel: deliveries.ETALabel(d.ETA, now)})
	}
	return out
}

type snapshotView struct {
	watch.Snapshot
	Deliveries []deliveryView `json:"deliveries"`
	Detail     *deliveryView  `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func newWatchRouter(opts watchHTTPOpts) http.Handler {
	s := opts.session
	clk := opts.clk
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if s.Connection().Mode == models.ModeDisabled {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/connection", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Connection())
	})

	r.Get("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap := s.Snapshot()
		now := clk.Now().UTC()
		out := snapshotView{Snapshot: snap, Deliveries: viewsOf(snap.Deliveries, now)}
		if snap.Detail != nil {
			out.Detail = &viewsOf([]*models.Delivery{snap.Detail}, now)[0]
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/deliveries", func(w http.ResponseWriter, r *http.Request) {
		snap := s.Snapshot()
		if snap.ListError != "" {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": snap.ListError, "retry": "POST /reload"})
			return
		}
		writeJSON(w, http.StatusOK, viewsOf(snap.Deliveries, clk.Now().UTC()))
	})

	r.Get("/deliveries/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		snap := s.Snapshot()
		if snap.Detail != nil && snap.Detail.ID == id {
			writeJSON(w, http.StatusOK, viewsOf([]*models.Delivery{snap.Detail}, clk.Now().UTC())[0])
			return
		}
		for _, d := range snap.Deliveries {
			if d.ID == id {
				writeJSON(w, http.StatusOK, viewsOf([]*models.Delivery{d}, clk.Now().UTC())[0])
				return
			}
		}
		writeError(w, http.StatusNotFound, "delivery not found")
	})

	r.Get("/couriers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Couriers())
	})

	r.Get("/filter", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Filter())
	})
	r.Post("/filter", func(w http.ResponseWriter, r *http.Request) {
		spec := models.ParseFilterSpec(r.URL.Query())
		if err := s.SetFilter(r.Context(), spec); err != nil {
			writeError(w, http.StatusBadGateway, watch.ListErrorMessage)
			return
		}
		writeJSON(w, http.StatusOK, s.Filter())
	})
	r.Delete("/filter", func(w http.ResponseWriter, r *http.Request) {
		if err := s.ClearFilter(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, watch.ListErrorMessage)
			return
		}
		writeJSON(w, http.StatusOK, s.Filter())
	})

	r.Post("/select/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Select(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"selected": chi.URLParam(r, "id"), "found": s.Snapshot().Detail != nil})
	})
	r.Delete("/select", func(w http.ResponseWriter, r *http.Request) {
		_ = s.Select(r.Context(), "")
		writeJSON(w, http.StatusOK, map[string]any{"selected": ""})
	})

	r.Post("/reload", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Reload(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, watch.ListErrorMessage)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reloaded": true})
	})

	r.Post("/poll", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"triggered": s.Selector().Trigger()})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{
			"sessionId": s.ID(),
			"transport": s.Selector().Stats(),
			"dispatch":  s.Dispatcher().Stats(),
		}
		if opts.mirror != nil {
			out["mirror"] = opts.mirror.Stats()
		}
		writeJSON(w, http.StatusOK, out)
	})

	if opts.swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	return r
}

func runWatchHTTPServer(ctx context.Context, opts watchHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8083"
	}
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
		}
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newWatchRouter(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP status API listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"delta-hedge-bot/internal/state"

	"go.uber.org/zap"
)

func (a *App) httpHandler() http.Handler {
	mux := http.NewServeMux()
	if a.prom != nil {
		mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	}
	mux.HandleFunc("/healthz", a.handleHealth)
	return mux
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, pending, err := state.LoadPendingOrder(r.Context(), a.store)
	resp := map[string]any{
		"paused":        a.isPaused(),
		"pendingOrder":  pending,
		"lastCycleUnix": int64(0),
	}
	if last := a.lastCycle(); !last.IsZero() {
		resp["lastCycleUnix"] = last.Unix()
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// startServer binds the metrics address and serves /healthz, plus metrics when
// enabled, until ctx is done. It returns the bound address.
func (a *App) startServer(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", a.cfg.Metrics.Address)
	if err != nil {
		return "", err
	}
	srv := &http.Server{
		Handler:           a.httpHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("http server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("http listening",
		zap.String("address", ln.Addr().String()),
		zap.Bool("metrics", a.prom != nil),
		zap.String("path", a.cfg.Metrics.Path),
	)
	return ln.Addr().String(), nil
}

// Package httpapi serves sweep progress and Prometheus metrics while the CLI
// is running.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/abbas-claw/dust-sweeper/internal/sweep"
	"github.com/abbas-claw/dust-sweeper/internal/token"
)

// StatusSource is the read side of the sweep status feed.
type StatusSource interface {
	Snapshot() []sweep.Status
	Get(key token.Key) (sweep.Status, bool)
}

type Server struct {
	statuses StatusSource
	http     *http.Server
	logger   *zap.Logger
}

type statusView struct {
	Key       string    `json:"key"`
	ChainID   uint64    `json:"chainId"`
	Address   string    `json:"address"`
	Symbol    string    `json:"symbol"`
	Chain     string    `json:"chain"`
	State     string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewServer(addr string, statuses StatusSource, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{statuses: statuses, logger: logger.Named("httpapi")}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/sweep/status", s.handleStatuses).Methods(http.MethodGet)
	r.HandleFunc("/sweep/status/{key}", s.handleStatus).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("http listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatuses(w http.ResponseWriter, _ *http.Request) {
	snap := s.statuses.Snapshot()
	out := make([]statusView, 0, len(snap))
	for _, st := range snap {
		out = append(out, toView(st))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	key, err := token.ParseKey(mux.Vars(r)["key"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	st, ok := s.statuses.Get(key)
	if !ok {
		http.Error(w, "unknown token", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, toView(st))
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

func toView(st sweep.Status) statusView {
	return statusView{
		Key:       st.Key.String(),
		ChainID:   st.Key.ChainID,
		Address:   st.Key.Address.Hex(),
		Symbol:    st.Symbol,
		Chain:     st.ChainName,
		State:     string(st.State),
		Message:   st.Message,
		TxHash:    st.TxHash,
		UpdatedAt: st.UpdatedAt,
	}
}

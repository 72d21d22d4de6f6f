package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// APIServer exposes a small read-only HTTP surface for inspecting the
// relay, mainly which peers are currently connected.
type APIServer struct {
	logger zerolog.Logger
	sw     *Switch
	*http.Server
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type APIConfig struct {
	Logger     *zerolog.Logger
	Switch     *Switch
	ListenAddr string
}

func NewAPIServer(cfg APIConfig) *APIServer {
	srv := &APIServer{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		sw:     cfg.Switch,
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /api/peers", srv.peers)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func (srv *APIServer) peers(w http.ResponseWriter, _ *http.Request) {
	b, err := json.Marshal(&GenericResponse{Data: srv.sw.Peers()})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusOK, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func (srv *APIServer) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}

// Package listener exposes the websocket transport: clients join a town over
// one socket that carries both their requests and the event stream pushed
// from the town's listener bus. A small HTTP surface manages town lifecycle.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pixil98/go-log"
	"github.com/pixil98/go-town/internal/messaging"
	"github.com/pixil98/go-town/internal/registry"
	"github.com/pixil98/go-town/internal/town"
)

type WsListener struct {
	port     uint16
	registry *registry.Registry
	broker   *messaging.NatsServer
	upgrader websocket.Upgrader
}

func NewWsListener(port uint16, reg *registry.Registry, broker *messaging.NatsServer) *WsListener {
	return &WsListener{
		port:     port,
		registry: reg,
		broker:   broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (l *WsListener) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", l.handleSocket)
	mux.HandleFunc("POST /towns", l.handleCreateTown)
	mux.HandleFunc("GET /towns", l.handleListTowns)
	mux.HandleFunc("DELETE /towns/{id}", l.handleDeleteTown)

	svr := &http.Server{
		Addr:        fmt.Sprintf(":%d", l.port),
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// done signals that Start is returning (either success or failure)
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := svr.Shutdown(shutdownCtx); err != nil {
				log.GetLogger(ctx).WithError(err).Error("shutting down websocket listener")
			}
		case <-done:
		}
	}()

	log.GetLogger(ctx).Infof("websocket listener on port %d", l.port)
	err := svr.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket on port %d: %w", l.port, err)
	}
	return nil
}

// handleSocket runs the join flow: resolve the town, upgrade the socket,
// register a session, and hand the connection to its client loop.
func (l *WsListener) handleSocket(w http.ResponseWriter, r *http.Request) {
	logger := log.GetLogger(r.Context())

	townID := r.URL.Query().Get("town")
	userName := r.URL.Query().Get("userName")
	if townID == "" || userName == "" {
		http.Error(w, "town and userName are required", http.StatusBadRequest)
		return
	}

	twn, err := l.registry.GetTown(townID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("upgrading websocket")
		return
	}

	c := newClient(conn, twn, l.broker)
	if err := c.run(r.Context(), userName); err != nil {
		logger.WithError(err).Debugf("client session ended")
	}
}

func (l *WsListener) handleCreateTown(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FriendlyName string `json:"friendlyName"`
		Public       bool   `json:"isPubliclyListed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	twn, err := l.registry.CreateTown(req.FriendlyName, req.Public)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"townId":       twn.Coordinator.ID(),
		"townPassword": twn.Coordinator.UpdatePassword(),
	})
}

func (l *WsListener) handleListTowns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, l.registry.ListPublic())
}

func (l *WsListener) handleDeleteTown(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	password := r.Header.Get("X-Town-Password")

	err := l.registry.DeleteTown(id, password)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, town.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, town.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing left to do but note it.
		slog.Warn("encoding http response", "error", err)
	}
}

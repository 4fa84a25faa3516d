// MeasureBoard Core
// Copyright (c) 2026 The MeasureBoard Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of MeasureBoard Core.
//
// MeasureBoard Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// MeasureBoard Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with MeasureBoard Core.  If not, see <http://www.gnu.org/licenses/>.

package outputs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/board"
	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// StatusFunc returns a JSON-encodable snapshot served at /status.
type StatusFunc func() any

// WebSocket broadcasts outputs to every client connected to /ws. It also
// serves the last output at /last and an optional status snapshot at
// /status.
type WebSocket struct {
	last    *board.Output
	melody  *melody.Melody
	status  StatusFunc
	handler http.Handler
	mu      syncutil.RWMutex
}

func NewWebSocket(status StatusFunc) *WebSocket {
	ws := &WebSocket{
		melody: melody.New(),
		status: status,
	}
	ws.melody.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	ws.melody.HandleConnect(func(s *melody.Session) {
		log.Debug().Str("remote", s.RemoteAddr().String()).Msg("websocket client connected")
		ws.mu.RLock()
		last := ws.last
		ws.mu.RUnlock()
		if last == nil {
			return
		}
		if data, err := json.Marshal(last); err == nil {
			if err := s.Write(data); err != nil {
				log.Debug().Err(err).Msg("failed to send last output to new client")
			}
		}
	})
	ws.melody.HandleDisconnect(func(s *melody.Session) {
		log.Debug().Str("remote", s.RemoteAddr().String()).Msg("websocket client disconnected")
	})
	ws.handler = ws.routes()
	return ws
}

func (ws *WebSocket) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
	}))

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := ws.melody.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})
	r.Get("/last", func(w http.ResponseWriter, _ *http.Request) {
		ws.mu.RLock()
		last := ws.last
		ws.mu.RUnlock()
		if last == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, last)
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		if ws.status == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, ws.status())
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write json response")
	}
}

// Handler returns the HTTP handler serving the sink's routes.
func (ws *WebSocket) Handler() http.Handler {
	return ws.handler
}

func (ws *WebSocket) Deliver(out board.Output) error {
	ws.mu.Lock()
	ws.last = &out
	ws.mu.Unlock()

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	if err := ws.melody.Broadcast(data); err != nil && !errors.Is(err, melody.ErrClosed) {
		return fmt.Errorf("failed to broadcast output: %w", err)
	}
	return nil
}

// Serve listens on addr until ctx is cancelled.
func (ws *WebSocket) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ws.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (ws *WebSocket) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           ws.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("websocket output listening")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("websocket server: %w", err)
	case <-ctx.Done():
	}

	if err := ws.melody.Close(); err != nil && !errors.Is(err, melody.ErrClosed) {
		log.Debug().Err(err).Msg("error closing websocket sessions")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("websocket server shutdown: %w", err)
	}
	return nil
}

// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

// Package web implements the HTTP status server of ot-daemon: Prometheus metrics, the daemon state as
// YAML, the diagnostic dump and a health check.
package web

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/openthread/ot-daemon/logger"
	"github.com/openthread/ot-daemon/otdaemon"
)

// StatusSource is the daemon as seen by the status server. *otdaemon.Server implements it.
type StatusSource interface {
	GetStatus(ctx context.Context) (otdaemon.Status, error)
	Dump(ctx context.Context, w io.Writer) error
}

type Config struct {
	// RequestLimit is the number of requests allowed per client IP in each Window.
	RequestLimit int
	Window       time.Duration
	// Timeout bounds the wait for the daemon task queue.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestLimit: 60,
		Window:       time.Minute,
		Timeout:      5 * time.Second,
	}
}

// NewHandler returns the router of the status server.
func NewHandler(src StatusSource, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.RequestLimit > 0 {
		r.Use(httprate.Limit(cfg.RequestLimit, cfg.Window, httprate.WithKeyFuncs(httprate.KeyByIP)))
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), cfg.Timeout)
		defer cancel()
		if _, err := src.GetStatus(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok\n")
	})

	r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), cfg.Timeout)
		defer cancel()
		st, err := src.GetStatus(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		data, err := yaml.Marshal(st)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(data)
	})

	r.Get("/dump", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), cfg.Timeout)
		defer cancel()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := src.Dump(ctx, w); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		}
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Server is the status HTTP server. It can be served at most once.
type Server struct {
	handler http.Handler
	log     *logger.TaggedLogger

	mu          sync.Mutex
	httpServer  *http.Server
	canServe    bool
	startedOnce sync.Once
	// Started is closed once Serve has started serving, or has given up.
	Started chan struct{}
}

func NewServer(src StatusSource, cfg Config) *Server {
	return &Server{
		handler:  NewHandler(src, cfg),
		log:      logger.Tagged("Web"),
		canServe: true,
		Started:  make(chan struct{}),
	}
}

// Serve serves on listenAddr until Stop is called.
func (s *Server) Serve(listenAddr string) error {
	defer s.log.Debugf("webserver exit.")

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		s.markStarted()
		return errors.Wrapf(err, "listen %s", listenAddr)
	}

	s.mu.Lock()
	if !s.canServe {
		s.mu.Unlock()
		_ = lis.Close()
		s.markStarted()
		return http.ErrServerClosed
	}
	s.httpServer = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	s.log.Infof("status server now serving on %s ...", lis.Addr())
	s.mu.Unlock()
	s.markStarted()

	err = s.httpServer.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) markStarted() {
	s.startedOnce.Do(func() { close(s.Started) })
}

// Stop closes the server. A later Serve returns immediately.
func (s *Server) Stop() {
	s.log.Debugf("requesting webserver to exit ...")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	s.canServe = false
}

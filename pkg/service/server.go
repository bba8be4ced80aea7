// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"github.com/livekit/protocol/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/urfave/negroni/v3"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/livekit/rtp-assembler/pkg/config"
	"github.com/livekit/rtp-assembler/pkg/session"
	"github.com/livekit/rtp-assembler/pkg/telemetry/prometheus"
	"github.com/livekit/rtp-assembler/pkg/utils"
)

const (
	// largest UDP payload
	maxDatagramSize = 65535
	shutdownTimeout = 5 * time.Second
)

type AssemblerServer struct {
	config     *config.Config
	nodeID     NodeID
	session    *session.Session
	monitor    *Monitor
	httpServer *http.Server

	lock  sync.Mutex
	conns []*net.UDPConn

	running atomic.Bool
	done    core.Fuse
	stopped core.Fuse
}

func NewAssemblerServer(
	conf *config.Config,
	nodeID NodeID,
	sess *session.Session,
	monitor *Monitor,
) (*AssemblerServer, error) {
	s := &AssemblerServer{
		config:  conf,
		nodeID:  nodeID,
		session: sess,
		monitor: monitor,
	}

	if conf.PrometheusPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/monitor", monitor)
		NewDebugHandler(nodeID, sess).SetupRoutes(mux)

		middlewares := []negroni.Handler{
			// always the first
			negroni.NewRecovery(),
		}
		if conf.Development {
			middlewares = append(middlewares, cors.AllowAll())
		} else {
			middlewares = append(middlewares, cors.New(cors.Options{
				AllowedMethods: []string{http.MethodGet},
			}))
		}

		s.httpServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.PrometheusPort),
			Handler: configureMiddlewares(mux, middlewares...),
		}
	}

	return s, nil
}

func (s *AssemblerServer) IsRunning() bool {
	return s.running.Load()
}

// UDPAddrs returns the addresses the server receives on, empty until it is running.
func (s *AssemblerServer) UDPAddrs() []net.Addr {
	s.lock.Lock()
	defer s.lock.Unlock()

	addrs := make([]net.Addr, 0, len(s.conns))
	for _, conn := range s.conns {
		addrs = append(addrs, conn.LocalAddr())
	}
	return addrs
}

func (s *AssemblerServer) Start() error {
	if s.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer func() {
		s.running.Store(false)
		s.stopped.Break()
	}()

	conns, err := s.listenUDP()
	if err != nil {
		s.session.Close()
		return err
	}

	var httpLn net.Listener
	if s.httpServer != nil {
		// ensure we could listen
		httpLn, err = net.Listen("tcp", s.httpServer.Addr)
		if err != nil {
			closeConns(conns)
			s.session.Close()
			return err
		}
	}

	s.lock.Lock()
	s.conns = conns
	s.lock.Unlock()

	g, ctx := errgroup.WithContext(context.Background())
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			return s.readWorker(conn)
		})
	}
	if httpLn != nil {
		g.Go(func() error {
			if err := s.httpServer.Serve(httpLn); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	if s.config.StatsInterval > 0 {
		g.Go(func() error {
			s.statsWorker(ctx)
			return nil
		})
	}

	logger.Infow("starting assembler server",
		"port", s.config.Port,
		"addresses", s.UDPAddrs(),
		"prometheusPort", s.config.PrometheusPort,
		"nodeID", s.nodeID,
	)

	select {
	case <-s.done.Watch():
	case <-ctx.Done():
	}

	// reading stops first so no packet reaches a closing session
	closeConns(conns)
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = s.httpServer.Shutdown(shutdownCtx)
		cancel()
	}
	s.done.Break()

	err = g.Wait()
	s.session.Close()
	s.monitor.Close()

	logger.Infow("assembler server stopped", "totals", prometheus.GetAssemblerStats())
	return err
}

// Stop ends Start. Without force, sources are drained before it returns.
func (s *AssemblerServer) Stop(force bool) {
	s.done.Break()
	if !force && s.running.Load() {
		<-s.stopped.Watch()
	}
}

func (s *AssemblerServer) listenUDP() ([]*net.UDPConn, error) {
	addresses, err := s.config.ListenAddresses()
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, ErrNoListenAddress
	}

	conns := make([]*net.UDPConn, 0, len(addresses))
	for _, addr := range addresses {
		conn, err := net.ListenUDP("udp", &net.UDPAddr{
			IP:   net.ParseIP(addr),
			Port: int(s.config.Port),
		})
		if err != nil {
			closeConns(conns)
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (s *AssemblerServer) readWorker(conn *net.UDPConn) error {
	lgr := logger.GetLogger().WithValues("local", conn.LocalAddr().String())
	rejectLogger := utils.NewExponentialLogger(lgr, utils.CountedLoggerLevelDebug, utils.ExponentialLoggerParams{Base: 10})

	buf := make([]byte, maxDatagramSize)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		if err := s.session.HandlePacket(buf[:n], time.Now()); err != nil {
			rejectLogger.Log("packet rejected", "remote", remote, "error", err)
		}
	}
}

func (s *AssemblerServer) statsWorker(ctx context.Context) {
	ticker := time.NewTicker(s.config.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done.Watch():
			return
		case <-ticker.C:
			s.logStats()
		}
	}
}

func (s *AssemblerServer) logStats() {
	totals := prometheus.GetAssemblerStats()
	values := []interface{}{
		"packets", totals.PacketsIn,
		"bytes", totals.BytesIn,
		"accessUnits", totals.AccessUnits,
		"packetsLost", totals.PacketsLost,
		"packetsMalformed", totals.PacketsMalformed,
		"packetsEvicted", totals.PacketsEvicted,
		"sources", totals.ActiveSources,
		"monitors", s.monitor.NumClients(),
	}

	nodeStats, err := prometheus.UpdateNodeStats()
	if err != nil {
		logger.Debugw("could not update node stats", "error", err)
	} else {
		values = append(values, "cpuLoad", nodeStats.CPULoad, "memoryLoad", nodeStats.MemoryLoad)
	}
	logger.Infow("assembler stats", values...)
}

func closeConns(conns []*net.UDPConn) {
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func configureMiddlewares(handler http.Handler, middlewares ...negroni.Handler) *negroni.Negroni {
	n := negroni.New()
	for _, m := range middlewares {
		n.Use(m)
	}
	n.UseHandler(handler)
	return n
}

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


// Package discovery advertises the WebSocket output server over mDNS so
// clients on the local network can find a running board bridge.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MeasureBoard/measureboard-core/pkg/helpers/syncutil"
	"github.com/grandcat/zeroconf"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ServiceType is the DNS-SD service type of the output server.
const ServiceType = "_measureboard._tcp"

const (
	serviceDomain = "local."
	defaultName   = "measureboard"
	retryEvery    = 30 * time.Second
	retryFor      = 5 * time.Minute
)

var (
	// ErrInvalidPort is returned by Start for a port outside 1-65535.
	ErrInvalidPort = errors.New("invalid advertised port")

	errNoInterfaces = errors.New("no usable network interfaces")
	errStopped      = errors.New("discovery stopped")
)

// container bridges, hypervisor links and tunnels
var virtualPrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

// advertisement is a published record that can be withdrawn.
type advertisement interface {
	Shutdown()
}

type registerFunc func(name string, port int, txt []string, ifaces []net.Interface) (advertisement, error)

func registerZeroconf(name string, port int, txt []string, ifaces []net.Interface) (advertisement, error) {
	srv, err := zeroconf.Register(name, ServiceType, serviceDomain, port, txt, ifaces)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by publish
	}
	return srv, nil
}

// Options describe what is advertised.
type Options struct {
	Clock        clockwork.Clock
	InstanceName string
	Version      string
	Device       string
	Port         int
}

// Service publishes one mDNS record for the output server.
type Service struct {
	clock      clockwork.Clock
	register   registerFunc
	interfaces func() ([]net.Interface, error)
	hostname   func() (string, error)
	adv        advertisement
	cancel     context.CancelFunc
	retrying   chan struct{}
	name       string
	opts       Options
	mu         syncutil.Mutex
	closed     bool
}

func New(opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		opts:       opts,
		clock:      clock,
		register:   registerZeroconf,
		interfaces: net.Interfaces,
		hostname:   os.Hostname,
	}
}

// Start publishes the record. A host whose network is not up yet is not an
// error: publishing is retried in the background until it works, ctx ends
// or retryFor has passed.
func (s *Service) Start(ctx context.Context) error {
	if s.opts.Port <= 0 || s.opts.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, s.opts.Port)
	}

	name := instanceName(s.opts.InstanceName, s.hostname)
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()

	err := s.publish()
	if err == nil || errors.Is(err, errStopped) {
		return nil
	}
	log.Info().Err(err).
		Dur("every", retryEvery).
		Dur("for", retryFor).
		Msg("mDNS not available yet, retrying in background")

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.cancel = cancel
	s.retrying = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.retry(ctx)
	}()
	return nil
}

func (s *Service) publish() error {
	all, err := s.interfaces()
	if err != nil {
		return fmt.Errorf("failed to list network interfaces: %w", err)
	}
	ifaces := usableInterfaces(all)
	if len(ifaces) == 0 {
		return errNoInterfaces
	}

	name := s.InstanceName()
	adv, err := s.register(name, s.opts.Port, s.txt(), ifaces)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", ServiceType, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		adv.Shutdown()
		return errStopped
	}
	s.adv = adv
	s.mu.Unlock()

	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		names = append(names, iface.Name)
	}
	log.Info().
		Str("instance", name).
		Str("type", ServiceType).
		Int("port", s.opts.Port).
		Strs("interfaces", names).
		Msg("advertising output server")
	return nil
}

func (s *Service) retry(ctx context.Context) {
	giveUp := s.clock.After(retryFor)
	ticker := s.clock.NewTicker(retryEvery)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-giveUp:
			log.Warn().Int("attempts", attempt-1).Msg("mDNS unavailable, output server will not be advertised")
			return
		case <-ticker.Chan():
		}

		err := s.publish()
		if err == nil || errors.Is(err, errStopped) {
			return
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("mDNS retry failed")
	}
}

// Stop withdraws the record and ends any background retry. Calling it
// again does nothing.
func (s *Service) Stop() {
	s.mu.Lock()
	s.closed = true
	cancel, adv, retrying := s.cancel, s.adv, s.retrying
	s.cancel, s.adv = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-retrying
	}
	if adv != nil {
		log.Debug().Msg("withdrawing mDNS advertisement")
		adv.Shutdown()
	}
}

// InstanceName returns the advertised instance name, empty before Start.
func (s *Service) InstanceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Service) txt() []string {
	records := []string{"path=/ws"}
	if s.opts.Version != "" {
		records = append(records, "version="+s.opts.Version)
	}
	if s.opts.Device != "" {
		records = append(records, "device="+s.opts.Device)
	}
	return records
}

// usableInterfaces keeps physical links that are up and can multicast.
func usableInterfaces(all []net.Interface) []net.Interface {
	const want = net.FlagUp | net.FlagMulticast
	out := make([]net.Interface, 0, len(all))
	for _, iface := range all {
		if iface.Flags&want != want || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if virtual(iface.Name) {
			continue
		}
		out = append(out, iface)
	}
	return out
}

func virtual(name string) bool {
	name = strings.ToLower(name)
	return slices.ContainsFunc(virtualPrefixes, func(p string) bool {
		return strings.HasPrefix(name, p)
	})
}

// instanceName uses the configured name, else measureboard-<short host>.
func instanceName(configured string, hostname func() (string, error)) string {
	if configured != "" {
		return configured
	}
	host, err := hostname()
	host, _, _ = strings.Cut(host, ".")
	if err != nil || host == "" {
		log.Warn().Err(err).Msg("no hostname for mDNS instance name, using default")
		return defaultName
	}
	return defaultName + "-" + host
}

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


package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdvert struct {
	withdrawn atomic.Bool
}

func (f *fakeAdvert) Shutdown() { f.withdrawn.Store(true) }

type fakeNetwork struct {
	ready   atomic.Bool
	lookups atomic.Int32
	mu    sync.Mutex
	ads   []*fakeAdvert
	names []string
	txt   []string
}

func (n *fakeNetwork) interfaces() ([]net.Interface, error) {
	n.lookups.Add(1)
	if !n.ready.Load() {
		return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback}}, nil
	}
	return []net.Interface{{Name: "eth0", Flags: net.FlagUp | net.FlagMulticast}}, nil
}

func (n *fakeNetwork) register(name string, _ int, txt []string, _ []net.Interface) (advertisement, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ad := &fakeAdvert{}
	n.ads = append(n.ads, ad)
	n.names = append(n.names, name)
	n.txt = txt
	return ad, nil
}

func (n *fakeNetwork) published() []*fakeAdvert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*fakeAdvert(nil), n.ads...)
}

func newTestService(opts Options, n *fakeNetwork) *Service {
	s := New(opts)
	s.interfaces = n.interfaces
	s.register = n.register
	s.hostname = func() (string, error) { return "bench.lan", nil }
	return s
}

func TestUsableInterfaces(t *testing.T) {
	t.Parallel()

	up := net.FlagUp | net.FlagMulticast
	ifaces := []net.Interface{
		{Name: "eth0", Flags: up},
		{Name: "lo", Flags: up | net.FlagLoopback},
		{Name: "wlan0", Flags: net.FlagMulticast},
		{Name: "docker0", Flags: up},
		{Name: "veth1234", Flags: up},
		{Name: "ppp0", Flags: net.FlagUp},
		{Name: "enp3s0", Flags: up},
	}

	got := usableInterfaces(ifaces)
	names := make([]string, len(got))
	for i, iface := range got {
		names[i] = iface.Name
	}
	assert.Equal(t, []string{"eth0", "enp3s0"}, names)
}

func TestVirtual(t *testing.T) {
	t.Parallel()

	assert.True(t, virtual("Docker0"))
	assert.True(t, virtual("wg0"))
	assert.False(t, virtual("eth0"))
}

func TestInstanceName(t *testing.T) {
	t.Parallel()

	host := func(name string, err error) func() (string, error) {
		return func() (string, error) { return name, err }
	}
	assert.Equal(t, "bench-1", instanceName("bench-1", host("ignored", nil)))
	assert.Equal(t, "measureboard-bench", instanceName("", host("bench.lan", nil)))
	assert.Equal(t, defaultName, instanceName("", host("", nil)))
	assert.Equal(t, defaultName, instanceName("", host("x", errors.New("no uts"))))
}

func TestTXT(t *testing.T) {
	t.Parallel()

	s := New(Options{Port: 7497, Version: "1.2.0", Device: "/dev/rfcomm0"})
	assert.Equal(t, []string{"path=/ws", "version=1.2.0", "device=/dev/rfcomm0"}, s.txt())
	assert.Equal(t, []string{"path=/ws"}, New(Options{Port: 1}).txt())
}

func TestStartRejectsInvalidPort(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, New(Options{}).Start(context.Background()), ErrInvalidPort)
	require.ErrorIs(t, New(Options{Port: 70000}).Start(context.Background()), ErrInvalidPort)
}

func TestStopIdempotent(t *testing.T) {
	t.Parallel()

	s := New(Options{Port: 7497})
	s.Stop()
	s.Stop()
	assert.Empty(t, s.InstanceName())
}

func TestStartPublishesAndStopWithdraws(t *testing.T) {
	t.Parallel()

	n := &fakeNetwork{}
	n.ready.Store(true)
	s := newTestService(Options{Port: 7497, Version: "1.2.0"}, n)

	require.NoError(t, s.Start(context.Background()))
	ads := n.published()
	require.Len(t, ads, 1)
	assert.Equal(t, []string{"measureboard-bench"}, n.names)
	assert.Equal(t, []string{"path=/ws", "version=1.2.0"}, n.txt)
	assert.Equal(t, "measureboard-bench", s.InstanceName())

	s.Stop()
	assert.True(t, ads[0].withdrawn.Load())
}

func TestStartRetriesUntilNetworkIsUp(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	n := &fakeNetwork{}
	s := newTestService(Options{Port: 7497, Clock: clock}, n)

	require.NoError(t, s.Start(ctx))
	assert.Empty(t, n.published())

	// deadline and ticker
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(retryEvery)
	require.Eventually(t, func() bool { return n.lookups.Load() == 2 }, time.Second, time.Millisecond)
	assert.Empty(t, n.published())

	n.ready.Store(true)
	clock.Advance(retryEvery)
	require.Eventually(t, func() bool { return len(n.published()) == 1 }, time.Second, time.Millisecond)

	s.Stop()
	assert.True(t, n.published()[0].withdrawn.Load())
}

func TestRetryGivesUp(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	n := &fakeNetwork{}
	s := newTestService(Options{Port: 7497, Clock: clock}, n)
	require.NoError(t, s.Start(ctx))

	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(retryFor)
	select {
	case <-s.retrying:
	case <-ctx.Done():
		t.Fatal("retry did not give up")
	}

	n.ready.Store(true)
	s.Stop()
	assert.Empty(t, n.published())
}

func TestStopEndsRetry(t *testing.T) {
	t.Parallel()

	n := &fakeNetwork{}
	s := newTestService(Options{Port: 7497, Clock: clockwork.NewFakeClock()}, n)
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	select {
	case <-s.retrying:
	default:
		t.Fatal("Stop returned while retry was still running")
	}
}

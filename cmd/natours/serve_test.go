// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/observability"
	"github.com/natours/natours/internal/tls"
	"github.com/natours/natours/pkg/errutil"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.HTTP.ShutdownTimeout = 5 * time.Second
	cfg.Metrics.Addr = ""
	cfg.Store.Kind = config.StoreMemory
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Auth.Argon2 = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
	return cfg
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeObservability struct {
	metrics  *observability.Metrics
	startErr error
	stopped  bool
}

func (f *fakeObservability) Start() (<-chan error, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return make(chan error), nil
}

func (f *fakeObservability) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeObservability) Addr() string { return "127.0.0.1:9100" }
func (f *fakeObservability) Metrics() *observability.Metrics { return f.metrics }

// serve runs runServe in the background and returns the bound address and
// a function that shuts the server down and returns its result.
func serve(t *testing.T, cfg config.Config, deps *ServeDeps) (string, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan string, 1)
	deps.Started = func(addr string) { started <- addr }

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg, discardLogger(), deps) }()

	select {
	case addr := <-started:
		return addr, func() error {
			cancel()
			return <-done
		}
	case err := <-done:
		cancel()
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not start")
	}
	return "", nil
}

func get(t *testing.T, url string) int {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func TestRunServe_ServesAPIUntilCancelled(t *testing.T) {
	obs := &fakeObservability{metrics: observability.NewMetrics(prometheus.NewRegistry())}
	cfg := testConfig()
	cfg.Metrics.Addr = "127.0.0.1:0"

	var readyFn observability.ReadinessChecker
	addr, stop := serve(t, cfg, &ServeDeps{
		ObservabilityServerFactory: func(_ string, ready observability.ReadinessChecker) ObservabilityServer {
			readyFn = ready
			return obs
		},
	})

	assert.Equal(t, http.StatusOK, get(t, "http://"+addr+"/api/v1/tours"))
	assert.Equal(t, http.StatusNotFound, get(t, "http://"+addr+"/api/v1/nothing"))
	assert.Equal(t, 2, testutil.CollectAndCount(obs.metrics.HTTPRequests))
	require.NotNil(t, readyFn)
	assert.True(t, readyFn(context.Background()))

	require.NoError(t, stop())
	assert.True(t, obs.stopped)

	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener should be closed after shutdown")
}

func TestRunServe_TLS(t *testing.T) {
	dir := t.TempDir()
	ca, err := tls.GenerateCA(time.Now().Add(-time.Minute))
	require.NoError(t, err)
	server, err := tls.GenerateServerCert(ca, time.Now().Add(-time.Minute), "127.0.0.1")
	require.NoError(t, err)
	require.NoError(t, tls.Save(dir, ca, server))

	cfg := testConfig()
	cfg.HTTP.TLSCert, cfg.HTTP.TLSKey = tls.ServerFiles(dir)
	addr, stop := serve(t, cfg, &ServeDeps{})

	roots := x509.NewCertPool()
	roots.AddCert(ca.Certificate)
	client := &http.Client{Timeout: 5 * time.Second, Transport: &http.Transport{
		DisableKeepAlives: true,
		TLSClientConfig:   &cryptotls.Config{RootCAs: roots, MinVersion: cryptotls.VersionTLS12},
	}}
	resp, err := client.Get("https://" + addr + "/api/v1/tours")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, stop())
}

func TestRunServe_Failures(t *testing.T) {
	t.Run("store", func(t *testing.T) {
		err := runServe(context.Background(), testConfig(), discardLogger(), &ServeDeps{
			BackendOpener: func(context.Context, config.StoreConfig, *slog.Logger) (*backend, error) {
				return nil, errors.New("connection refused")
			},
		})
		errutil.AssertErrorCode(t, err, "SERVE_STORE_FAILED")
	})

	t.Run("metrics", func(t *testing.T) {
		cfg := testConfig()
		cfg.Metrics.Addr = "127.0.0.1:0"
		err := runServe(context.Background(), cfg, discardLogger(), &ServeDeps{
			ObservabilityServerFactory: func(string, observability.ReadinessChecker) ObservabilityServer {
				return &fakeObservability{startErr: oops.Errorf("address in use")}
			},
		})
		errutil.AssertErrorCode(t, err, "SERVE_METRICS_FAILED")
	})

	t.Run("listen", func(t *testing.T) {
		err := runServe(context.Background(), testConfig(), discardLogger(), &ServeDeps{
			ListenerFactory: func(string, string) (net.Listener, error) {
				return nil, errors.New("permission denied")
			},
		})
		errutil.AssertErrorCode(t, err, "SERVE_LISTEN_FAILED")
	})
}

func TestOpenBackend_UnknownKind(t *testing.T) {
	_, err := openBackend(context.Background(), config.StoreConfig{Kind: "sqlite"}, discardLogger())
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestMonitorServerErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	errCh <- errors.New("boom")

	monitorServerErrors(ctx, cancel, errCh, "test", discardLogger())
	assert.Error(t, ctx.Err(), "server error should cancel the context")
}

// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package metrics exposes prometheus metrics about the sidechain ledger and
// the pool of unconfirmed objects.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/decred/scledger/scwire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scledger"

// Metrics houses the collectors of a node.  All observer methods are safe to
// call on a nil *Metrics, in which case nothing is recorded.
type Metrics struct {
	registry *prometheus.Registry

	blocksConnected       prometheus.Counter
	blocksDisconnected    prometheus.Counter
	blockConnectDuration  prometheus.Histogram
	certificatesConfirmed prometheus.Counter
	objectsAccepted       *prometheus.CounterVec
	objectsRejected       *prometheus.CounterVec
	objectsEvicted        *prometheus.CounterVec
	sidechains            prometheus.Gauge
	poolObjects           prometheus.Gauge
	tipHeight             prometheus.Gauge
}

// New returns metrics registered with a registry of their own.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		blocksConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "blocks_connected_total",
			Help:      "Number of blocks connected to the ledger",
		}),
		blocksDisconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "blocks_disconnected_total",
			Help:      "Number of blocks disconnected from the ledger",
		}),
		blockConnectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "block_connect_seconds",
			Help:      "Duration of connecting a block to the ledger",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		certificatesConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "certificates_confirmed_total",
			Help:      "Number of certificates confirmed by connected blocks",
		}),
		objectsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "objects_accepted_total",
			Help:      "Number of objects accepted into the pool",
		}, []string{"kind"}),
		objectsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "objects_rejected_total",
			Help:      "Number of objects rejected by the pool",
		}, []string{"kind", "reason"}),
		objectsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "objects_evicted_total",
			Help:      "Number of pooled objects evicted after becoming invalid",
		}, []string{"kind"}),
		sidechains: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sidechains",
			Help:      "Number of registered sidechains",
		}),
		poolObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "objects",
			Help:      "Number of objects in the pool",
		}),
		tipHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tip_height",
			Help:      "Height of the most recently connected block",
		}),
	}
	m.registry.MustRegister(m.blocksConnected, m.blocksDisconnected,
		m.blockConnectDuration, m.certificatesConfirmed, m.objectsAccepted,
		m.objectsRejected, m.objectsEvicted, m.sidechains, m.poolObjects,
		m.tipHeight)
	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve serves the metrics over http on the provided address until the
// context is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Metrics server listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// BlockConnected records a block connected at height.
func (m *Metrics) BlockConnected(height int64, numSidechains int, took time.Duration) {
	if m == nil {
		return
	}
	m.blocksConnected.Inc()
	m.blockConnectDuration.Observe(took.Seconds())
	m.tipHeight.Set(float64(height))
	m.sidechains.Set(float64(numSidechains))
}

// BlockDisconnected records the disconnection of the block at height.
func (m *Metrics) BlockDisconnected(height int64, numSidechains int) {
	if m == nil {
		return
	}
	m.blocksDisconnected.Inc()
	m.tipHeight.Set(float64(height - 1))
	m.sidechains.Set(float64(numSidechains))
}

// CertificatesConfirmed records certificates confirmed by a connected block.
func (m *Metrics) CertificatesConfirmed(n int) {
	if m == nil {
		return
	}
	m.certificatesConfirmed.Add(float64(n))
}

// ObjectAccepted records an object accepted into the pool.
func (m *Metrics) ObjectAccepted(kind scwire.ObjectKind, poolSize int) {
	if m == nil {
		return
	}
	m.objectsAccepted.WithLabelValues(kind.String()).Inc()
	m.poolObjects.Set(float64(poolSize))
}

// ObjectRejected records an object rejected by the pool for the provided
// reason.
func (m *Metrics) ObjectRejected(kind scwire.ObjectKind, reason string) {
	if m == nil {
		return
	}
	m.objectsRejected.WithLabelValues(kind.String(), reason).Inc()
}

// ObjectEvicted records a pooled object evicted after becoming invalid.
func (m *Metrics) ObjectEvicted(kind scwire.ObjectKind) {
	if m == nil {
		return
	}
	m.objectsEvicted.WithLabelValues(kind.String()).Inc()
}

// PoolSize records the number of pooled objects.
func (m *Metrics) PoolSize(n int) {
	if m == nil {
		return
	}
	m.poolObjects.Set(float64(n))
}

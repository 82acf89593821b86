// Package metrics instruments a db.Database with Prometheus metrics.
//
// Unlike db.Shared and db.Ref, the wrapper returned by Wrap hands out its
// own transaction values so that it can observe Commit and Abort.
package metrics

import (
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"txdb/internal/logging"
	"txdb/pkg/db"
	"txdb/pkg/db/internal/seal"
)

var logger = logging.For("db-metrics")

const (
	modeRead  = "read"
	modeWrite = "write"
)

// Options configures Wrap.
type Options struct {
	// Namespace prefixes every metric name. Empty uses "txdb".
	Namespace string
	// ConstLabels are attached to every metric, e.g. the backend name.
	ConstLabels prometheus.Labels
}

// Database is an instrumented db.Database and a prometheus.Collector.
type Database struct {
	seal.Marker

	inner db.Database

	opens     *prometheus.CounterVec
	finalized *prometheus.CounterVec
	active    *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
}

var (
	_ db.Database          = (*Database)(nil)
	_ prometheus.Collector = (*Database)(nil)
)

// Wrap instruments d. Register the result with a prometheus.Registerer to
// expose it.
func Wrap(d db.Database, opts Options) *Database {
	ns := opts.Namespace
	if ns == "" {
		ns = "txdb"
	}
	return &Database{
		inner: d,
		opens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "tx_open_total",
			Help:        "Transactions requested, by mode and result (ok, read_only, error).",
			ConstLabels: opts.ConstLabels,
		}, []string{"mode", "result"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Name:        "tx_finalize_total",
			Help:        "Transactions finalized, by mode and outcome (commit, commit_error, abort).",
			ConstLabels: opts.ConstLabels,
		}, []string{"mode", "outcome"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Name:        "tx_active",
			Help:        "Transactions currently open.",
			ConstLabels: opts.ConstLabels,
		}, []string{"mode"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "tx_duration_seconds",
			Help:        "Time from open to finalize.",
			ConstLabels: opts.ConstLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"mode"}),
	}
}

// Inner returns the instrumented database.
func (m *Database) Inner() db.Database { return m.inner }

func (m *Database) Tx() (db.DbTx, error) {
	tx, err := m.inner.Tx()
	if err != nil {
		m.openFailed(modeRead, err)
		return nil, err
	}
	return &readTx{DbTx: tx, probe: m.opened(modeRead)}, nil
}

func (m *Database) TxMut() (db.DbTxMut, error) {
	tx, err := m.inner.TxMut()
	if err != nil {
		m.openFailed(modeWrite, err)
		return nil, err
	}
	return &writeTx{DbTxMut: tx, probe: m.opened(modeWrite)}, nil
}

func (m *Database) openFailed(mode string, err error) {
	result := "error"
	if db.KindOf(err) == db.KindReadOnly {
		result = "read_only"
	}
	m.opens.WithLabelValues(mode, result).Inc()
	logger.Debug("tx open failed", "mode", mode, "err", err)
}

func (m *Database) opened(mode string) *probe {
	m.opens.WithLabelValues(mode, "ok").Inc()
	m.active.WithLabelValues(mode).Inc()
	p := &probe{m: m, mode: mode, id: uuid.New(), start: time.Now()}
	logger.Debug("tx opened", "mode", mode, "tx", p.id)
	return p
}

// Describe implements prometheus.Collector.
func (m *Database) Describe(ch chan<- *prometheus.Desc) {
	m.opens.Describe(ch)
	m.finalized.Describe(ch)
	m.active.Describe(ch)
	m.duration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Database) Collect(ch chan<- prometheus.Metric) {
	m.opens.Collect(ch)
	m.finalized.Collect(ch)
	m.active.Collect(ch)
	m.duration.Collect(ch)
}

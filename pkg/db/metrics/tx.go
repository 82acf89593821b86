package metrics

import (
	"time"

	"github.com/google/uuid"

	"txdb/pkg/db"
)

// probe records one transaction's finalization. Only the first call to
// finish counts.
type probe struct {
	m     *Database
	mode  string
	id    uuid.UUID
	start time.Time
	done  bool
}

func (p *probe) finish(outcome string, err error) {
	if p.done {
		return
	}
	p.done = true
	p.m.active.WithLabelValues(p.mode).Dec()
	p.m.finalized.WithLabelValues(p.mode, outcome).Inc()
	elapsed := time.Since(p.start)
	p.m.duration.WithLabelValues(p.mode).Observe(elapsed.Seconds())
	if err != nil {
		logger.Warn("tx commit failed", "mode", p.mode, "tx", p.id, "elapsed", elapsed, "err", err)
		return
	}
	logger.Debug("tx finalized", "mode", p.mode, "tx", p.id, "outcome", outcome, "elapsed", elapsed)
}

func (p *probe) commit(err error) error {
	if db.KindOf(err) == db.KindTxClosed {
		return err
	}
	if err != nil {
		p.finish("commit_error", err)
		return err
	}
	p.finish("commit", nil)
	return nil
}

type readTx struct {
	db.DbTx
	probe *probe
}

func (t *readTx) Commit() error { return t.probe.commit(t.DbTx.Commit()) }

func (t *readTx) Abort() {
	t.DbTx.Abort()
	t.probe.finish("abort", nil)
}

type writeTx struct {
	db.DbTxMut
	probe *probe
}

func (t *writeTx) Commit() error { return t.probe.commit(t.DbTxMut.Commit()) }

func (t *writeTx) Abort() {
	t.DbTxMut.Abort()
	t.probe.finish("abort", nil)
}


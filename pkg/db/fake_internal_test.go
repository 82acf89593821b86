package db

import (
	"errors"

	"txdb/pkg/db/internal/seal"
)

// fakeDB counts opens and hands out fakeTx values whose commit outcome is
// preset.
type fakeDB struct {
	seal.Marker

	readOnly  bool
	openErr   error
	commitErr error
	// beforeOpen runs at the start of Tx and TxMut.
	beforeOpen func()

	reads  int
	writes int
	closed int
	txs    []*fakeTx
}

func (d *fakeDB) Tx() (DbTx, error) {
	if d.beforeOpen != nil {
		d.beforeOpen()
	}
	if d.closed > 0 {
		return nil, NewError(KindInitTx, "fake.Tx", ErrClosed)
	}
	if d.openErr != nil {
		return nil, NewError(KindInitTx, "fake.Tx", d.openErr)
	}
	d.reads++
	tx := &fakeTx{commitErr: d.commitErr}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) TxMut() (DbTxMut, error) {
	if d.beforeOpen != nil {
		d.beforeOpen()
	}
	if d.closed > 0 {
		return nil, NewError(KindInitTx, "fake.TxMut", ErrClosed)
	}
	if d.readOnly {
		return nil, NewError(KindReadOnly, "fake.TxMut", ErrReadOnly)
	}
	if d.openErr != nil {
		return nil, NewError(KindInitTx, "fake.TxMut", d.openErr)
	}
	d.writes++
	tx := &fakeTx{commitErr: d.commitErr, writable: true}
	d.txs = append(d.txs, tx)
	return tx, nil
}

func (d *fakeDB) Close() error {
	d.closed++
	return nil
}

type fakeTx struct {
	writable  bool
	commitErr error
	commits   int
	aborts    int
	done      bool
	puts      int
}

var errFake = errors.New("fake: not supported")

func (tx *fakeTx) Get(Table, []byte) ([]byte, error) { return nil, nil }
func (tx *fakeTx) Cursor(Table) (Cursor, error)     { return nil, errFake }
func (tx *fakeTx) Entries(Table) (int, error)       { return 0, nil }
func (tx *fakeTx) Tables() ([]Table, error)         { return nil, nil }

func (tx *fakeTx) Put(Table, []byte, []byte) error {
	tx.puts++
	return nil
}

func (tx *fakeTx) Delete(Table, []byte) error     { return nil }
func (tx *fakeTx) ClearTable(Table) error         { return nil }
func (tx *fakeTx) ImportTable(Table, DbTx) error  { return errFake }

func (tx *fakeTx) Commit() error {
	if tx.done {
		return NewError(KindTxClosed, "fake.Commit", ErrTxClosed)
	}
	tx.done = true
	tx.commits++
	if tx.commitErr != nil {
		return NewError(KindCommit, "fake.Commit", tx.commitErr)
	}
	return nil
}

func (tx *fakeTx) Abort() {
	if tx.done {
		return
	}
	tx.done = true
	tx.aborts++
}

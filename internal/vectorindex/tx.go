package vectorindex

import (
	"context"

	"docqa/internal/domain"
)

// Tx is the view of the index handed to Update. It is only valid inside the callback.
type Tx struct {
	ctx context.Context
	st  *state
}

func (tx *Tx) Exists() bool    { return tx.st.exists }
func (tx *Tx) Len() int        { return len(tx.st.vectors) }
func (tx *Tx) Dimension() int  { return tx.st.dimension }
func (tx *Tx) Version() uint64 { return tx.st.version }

func (tx *Tx) Create(vectors [][]float32, meta []domain.Chunk) error {
	return tx.st.create(vectors, meta)
}

func (tx *Tx) Add(vectors [][]float32, meta []domain.Chunk) error {
	return tx.st.add(vectors, meta)
}

func (tx *Tx) Rebuild(dimension int, reason string) error {
	return tx.st.rebuild(tx.ctx, dimension, reason)
}

// Update runs fn as the single writer. When fn succeeds the index is saved before the
// lock is released; if fn or the save fails the in-memory state is rolled back.
func (x *Index) Update(ctx context.Context, fn func(tx *Tx) error) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	before := x.st
	// Slices are append-only inside a transaction, so capping them keeps the
	// snapshot unaffected by appends made through tx.
	before.vectors = before.vectors[:len(before.vectors):len(before.vectors)]
	before.meta = before.meta[:len(before.meta):len(before.meta)]
	x.st = before
	if err := fn(&Tx{ctx: ctx, st: &x.st}); err != nil {
		x.st = before
		return err
	}
	if x.dir == "" {
		return nil
	}
	if err := x.saveLocked(); err != nil {
		x.st = before
		return err
	}
	return nil
}

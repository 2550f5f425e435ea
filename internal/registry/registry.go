// Package registry owns the pool table and the per-pool operation locks.
package registry

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"amm_go/internal/domain"
)

// Persister writes pool state. then runs inside the write with a context
// scoped to it: if it returns an error the write must be rolled back and that
// error returned.
type Persister interface {
	SavePool(ctx context.Context, change domain.PoolChange, then func(ctx context.Context) error) error
}

type entry struct {
	op     *semaphore.Weighted // weight 1; holding it owns the pool
	exists atomic.Bool
	pool   domain.Pool // guarded by op
}

func newEntry() *entry {
	return &entry{op: semaphore.NewWeighted(1)}
}

func (e *entry) acquire(ctx context.Context) error {
	return e.op.Acquire(ctx, 1)
}

func (e *entry) release() {
	e.op.Release(1)
}

// Registry is the pool table. Pools are never removed once created.
type Registry struct {
	mu        sync.RWMutex
	pools     map[domain.PoolID]*entry
	sink      domain.EventSink
	persister Persister
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithEventSink sets the sink that receives PoolCreated.
func WithEventSink(sink domain.EventSink) Option {
	return func(r *Registry) { r.sink = sink }
}

// WithPersister makes every pool write durable.
func WithPersister(p Persister) Option {
	return func(r *Registry) { r.persister = p }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		pools:  make(map[domain.PoolID]*entry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreatePool registers the pair and returns its id.
func (r *Registry) CreatePool(ctx context.Context, a, b domain.AssetID) (domain.PoolID, error) {
	if a == b {
		return domain.PoolID{}, domain.ErrIdenticalAssets.Wrap(a.Hex())
	}
	if domain.IsNull(a) || domain.IsNull(b) {
		return domain.PoolID{}, domain.ErrInvalidAsset.Wrap("null asset identifier")
	}

	pool := domain.NewPool(a, b)
	if held(ctx, pool.ID) {
		return domain.PoolID{}, domain.ErrReentrancy.Wrapf("pool %s", pool.ID.Hex())
	}

	var e *entry
	for e == nil {
		r.mu.Lock()
		existing, ok := r.pools[pool.ID]
		if !ok {
			e = newEntry()
			e.op.TryAcquire(1)
			r.pools[pool.ID] = e
			r.mu.Unlock()
			break
		}
		r.mu.Unlock()

		if existing.exists.Load() {
			return domain.PoolID{}, domain.ErrPoolAlreadyExists.Wrap(pool.ID.Hex())
		}
		// Another creation of the same pair is in flight; wait for its outcome.
		if err := existing.acquire(ctx); err != nil {
			return domain.PoolID{}, err
		}
		existing.release()
	}

	gctx := withHeld(ctx, pool.ID)
	ev := domain.PoolCreated{AssetA: pool.AssetA, AssetB: pool.AssetB, Pool: pool.ID}
	err := r.save(gctx, domain.PoolChange{Pool: pool}, func(ctx context.Context) error { return r.emit(ctx, ev) })
	if err != nil {
		r.mu.Lock()
		delete(r.pools, pool.ID)
		r.mu.Unlock()
		e.release()
		return domain.PoolID{}, err
	}

	e.pool = pool
	e.exists.Store(true)
	e.release()

	r.logger.Info("Pool created",
		slog.String("pool", pool.ID.Hex()),
		slog.String("asset_a", pool.AssetA.Hex()),
		slog.String("asset_b", pool.AssetB.Hex()))
	return pool.ID, nil
}

// GetPool returns a snapshot of the pool. It waits for any in-flight operation
// on the pool so intermediate states are never observed.
func (r *Registry) GetPool(ctx context.Context, id domain.PoolID) (domain.Pool, error) {
	h, err := r.Lock(ctx, id)
	if err != nil {
		return domain.Pool{}, err
	}
	defer h.Release()
	return h.Pool(), nil
}

// PoolExists reports whether the pool has been created.
func (r *Registry) PoolExists(id domain.PoolID) bool {
	r.mu.RLock()
	e := r.pools[id]
	r.mu.RUnlock()
	return e != nil && e.exists.Load()
}

// Lookup resolves a pair to its pool id.
func (r *Registry) Lookup(a, b domain.AssetID) (domain.PoolID, bool) {
	id := domain.PairIdentifier(a, b)
	return id, r.PoolExists(id)
}

// Pools returns snapshots of every pool ordered by id.
func (r *Registry) Pools(ctx context.Context) ([]domain.Pool, error) {
	r.mu.RLock()
	ids := make([]domain.PoolID, 0, len(r.pools))
	for id, e := range r.pools {
		if e.exists.Load() {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	pools := make([]domain.Pool, 0, len(ids))
	for _, id := range ids {
		p, err := r.GetPool(ctx, id)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, nil
}

// Restore inserts previously persisted pools without persisting or emitting.
func (r *Registry) Restore(pools []domain.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range pools {
		if _, ok := r.pools[p.ID]; ok {
			return domain.ErrPoolAlreadyExists.Wrap(p.ID.Hex())
		}
		if p.ID != domain.PairIdentifier(p.AssetA, p.AssetB) {
			return domain.ErrInvalidAsset.Wrapf("pool %s does not match its pair", p.ID.Hex())
		}
		e := newEntry()
		e.pool = p
		e.pool.Exists = true
		e.exists.Store(true)
		r.pools[p.ID] = e
	}
	return nil
}

// Lock acquires exclusive use of a pool for one operation. The caller must
// Release the handle on every exit path.
func (r *Registry) Lock(ctx context.Context, id domain.PoolID) (*Handle, error) {
	if held(ctx, id) {
		return nil, domain.ErrReentrancy.Wrapf("pool %s", id.Hex())
	}

	r.mu.RLock()
	e := r.pools[id]
	r.mu.RUnlock()
	if e == nil {
		return nil, domain.ErrPoolNotFound.Wrap(id.Hex())
	}

	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	if !e.exists.Load() {
		e.release()
		return nil, domain.ErrPoolNotFound.Wrap(id.Hex())
	}
	return &Handle{r: r, e: e, ctx: withHeld(ctx, id)}, nil
}

func (r *Registry) save(ctx context.Context, change domain.PoolChange, then func(ctx context.Context) error) error {
	if r.persister == nil {
		return then(ctx)
	}
	return r.persister.SavePool(ctx, change, then)
}

func (r *Registry) emit(ctx context.Context, n domain.Notification) error {
	if r.sink == nil {
		return nil
	}
	return r.sink.Emit(ctx, n)
}

// Handle is the exclusive scope of one operation on one pool.
type Handle struct {
	r        *Registry
	e        *entry
	ctx      context.Context
	released bool
}

// Context returns ctx marked as holding this pool. Collaborators must be called
// with it so reentrant calls are rejected instead of deadlocking.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Pool returns a copy of the current pool state.
func (h *Handle) Pool() domain.Pool {
	return h.e.pool
}

// Commit persists change and publishes it as the pool's state. then runs inside
// the persistence write; on any error the pool is left unchanged.
func (h *Handle) Commit(change domain.PoolChange, then func(ctx context.Context) error) error {
	if then == nil {
		then = func(context.Context) error { return nil }
	}
	if err := h.r.save(h.ctx, change, then); err != nil {
		return err
	}
	h.e.pool = change.Pool
	return nil
}

// Release ends the operation. Safe to call more than once.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.e.release()
}

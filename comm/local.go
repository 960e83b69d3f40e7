package comm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LocalGroup runs a cluster of Size() ranks as goroutines sharing one address
// space. Each rank talks to the group through its Member.
type LocalGroup struct {
	size   int
	mu     sync.Mutex
	cur    *round
	broken bool
}

// round is one instance of a collective. done is closed once all members have
// contributed or the round is abandoned, after which sum and err are
// read-only.
type round struct {
	sum, arrived int
	err          error
	done         chan struct{}
}

func newRound() *round {
	return &round{done: make(chan struct{})}
}

func NewLocalGroup(size int) *LocalGroup {
	if size < 1 {
		panic(fmt.Sprintf("local group size must be >= 1, got %d", size))
	}
	return &LocalGroup{
		size: size,
		cur:  newRound(),
	}
}

func (lg *LocalGroup) Size() int { return lg.size }

// Member returns the view of the group held by one rank.
func (lg *LocalGroup) Member(rank int) ProcessGroup {
	if rank < 0 || rank >= lg.size {
		panic(fmt.Sprintf("rank %d out of range for group of size %d", rank, lg.size))
	}
	return &localMember{group: lg, rank: rank}
}

func (lg *LocalGroup) allReduceSum(ctx context.Context, local int) (sum int, err error) {
	lg.mu.Lock()
	if lg.broken {
		lg.mu.Unlock()
		return 0, ErrGroupBroken
	}
	r := lg.cur
	r.sum += local
	r.arrived++
	if r.arrived == lg.size {
		close(r.done)
		lg.cur = newRound()
	}
	lg.mu.Unlock()

	select {
	case <-r.done:
		return r.result()
	case <-ctx.Done():
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()
	// The round may have completed or been abandoned while we were waking up
	select {
	case <-r.done:
		return r.result()
	default:
	}
	lg.broken = true
	// Release the members already parked on this round
	r.err = fmt.Errorf("%w: all-reduce abandoned with %d of %d ranks arrived",
		ErrGroupBroken, r.arrived, lg.size)
	close(r.done)
	return 0, fmt.Errorf("all-reduce abandoned with %d of %d ranks arrived: %w",
		r.arrived, lg.size, ctx.Err())
}

func (r *round) result() (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.sum, nil
}

type localMember struct {
	group *LocalGroup
	rank  int
}

func (m *localMember) Rank() int { return m.rank }
func (m *localMember) Size() int { return m.group.size }

func (m *localMember) AllReduceSum(ctx context.Context, local int) (int, error) {
	return m.group.allReduceSum(ctx, local)
}

// Run executes fn once per rank of a new LocalGroup of the given size, each
// on its own goroutine, and returns the first error. A failing rank cancels
// the context handed to the others so that none of them waits forever in a
// collective.
func Run(ctx context.Context, size int, fn func(ctx context.Context, pg ProcessGroup) error) error {
	var (
		lg      = NewLocalGroup(size)
		g, gctx = errgroup.WithContext(ctx)
	)
	for rank := 0; rank < size; rank++ {
		member := lg.Member(rank)
		g.Go(func() error {
			if err := fn(gctx, member); err != nil {
				return fmt.Errorf("rank %d: %w", member.Rank(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

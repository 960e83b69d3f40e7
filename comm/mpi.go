//go:build mpi

package comm

import (
	"context"

	mpi "github.com/sbromberger/gompi"
)

const reduceTag = 27

// MPI is one rank of MPI_COMM_WORLD.
type MPI struct {
	c *mpi.Communicator
}

// NewWorld starts MPI. Close must be called before the process exits.
func NewWorld() (*MPI, error) {
	mpi.Start(true)
	return &MPI{c: mpi.NewCommunicator(nil)}, nil
}

func (m *MPI) Rank() int { return m.c.Rank() }
func (m *MPI) Size() int { return m.c.Size() }

// AllReduceSum reduces onto rank 0 along a binomial tree and broadcasts the
// sum, so no rank handles more than log2(size)+1 point to point messages.
//
// The context is only checked before entering the collective. MPI calls
// cannot be interrupted: a rank that returns early on a cancelled context
// leaves its peers blocked in Recv or Bcast until the job is killed, so
// callers must cancel every rank or none.
func (m *MPI) AllReduceSum(ctx context.Context, local int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var (
		buf            = []float64{float64(local)}
		children, dest = reduceSchedule(m.c.Rank(), m.c.Size())
	)
	for _, src := range children {
		vals, _ := m.c.RecvFloat64s(src, reduceTag)
		buf[0] += vals[0]
	}
	if dest >= 0 {
		m.c.SendFloat64s(buf, dest, reduceTag)
	}
	m.c.BcastFloat64s(buf, 0)
	return int(buf[0]), nil
}

func (m *MPI) Close() {
	mpi.Stop()
}

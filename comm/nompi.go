//go:build !mpi

package comm

import "context"

// MPI is unavailable in this build; NewWorld always fails.
type MPI struct{}

func NewWorld() (*MPI, error) {
	return nil, ErrMPIUnavailable
}

func (*MPI) Rank() int { return 0 }
func (*MPI) Size() int { return 1 }

func (*MPI) AllReduceSum(_ context.Context, _ int) (int, error) {
	return 0, ErrMPIUnavailable
}

func (*MPI) Close() {}

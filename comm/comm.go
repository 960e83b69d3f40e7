// Package comm provides the process groups used for the collective steps of
// problem generation. A ProcessGroup is passed into the generator, so a
// single-process run substitutes Serial for a real cluster without any other
// change.
//
// Three implementations exist:
//
//	Serial     - one process, every collective is the identity
//	LocalGroup - N goroutine ranks inside one OS process
//	MPI        - one rank per OS process, built with -tags mpi
//
// Collectives block until every member of the group has called them. A member
// that never arrives stalls the others.
package comm

import (
	"context"
	"errors"
)

var (
	ErrGroupBroken    = errors.New("process group is broken by an abandoned collective")
	ErrMPIUnavailable = errors.New("built without MPI support, rebuild with -tags mpi")
)

type ProcessGroup interface {
	Rank() int
	Size() int
	// AllReduceSum returns the sum of local over all members. Every member
	// receives the same value. Whether a cancelled ctx releases the other
	// members depends on the implementation: LocalGroup does, MPI does not.
	AllReduceSum(ctx context.Context, local int) (int, error)
}

// Serial is the group of one.
type Serial struct{}

func (Serial) Rank() int { return 0 }
func (Serial) Size() int { return 1 }

func (Serial) AllReduceSum(_ context.Context, local int) (int, error) {
	return local, nil
}

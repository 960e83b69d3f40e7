package problem

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Residual returns ||A*XExact - B||_2 over the local rows. XExact is one on
// every process, so off-process columns are taken as one without any
// communication. Storage is proportional to the local rows only. An exactly
// assembled problem gives 0.
func (p *Problem) Residual() (res float64, err error) {
	var (
		A = p.A
	)
	if len(p.B) != A.LocalNumberOfRows || len(p.XExact) != A.LocalNumberOfRows {
		err = fmt.Errorf("vector lengths %d, %d do not match %d local rows",
			len(p.B), len(p.XExact), A.LocalNumberOfRows)
		return
	}
	var (
		y   = mat.NewVecDense(A.LocalNumberOfRows, nil)
		xOf = func(globalCol int) float64 {
			if localRow, ok := A.GlobalToLocal[globalCol]; ok {
				return p.XExact[localRow]
			}
			return 1.0
		}
	)
	A.ToCSR().DoNonZero(func(i, j int, v float64) {
		y.SetVec(i, y.AtVec(i)+v*xOf(j))
	})
	y.SubVec(y, mat.NewVecDense(len(p.B), p.B))
	res = mat.Norm(y, 2)
	return
}

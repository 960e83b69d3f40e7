package problem

import (
	"github.com/james-bowman/sparse"
)

const (
	StencilSize      = 27
	DiagonalValue    = 27.0
	OffDiagonalValue = -1.0
)

// SparseRow is one matrix row in stencil order. Cols holds global row ids,
// Values the matching coefficients, and Diagonal the position of the row's
// own id within Cols.
type SparseRow struct {
	Cols     []int
	Values   []float64
	Diagonal int
}

func (r SparseRow) Nonzeros() int { return len(r.Cols) }

func (r SparseRow) DiagonalValue() float64 { return r.Values[r.Diagonal] }

// GlobalRow is the id of the row itself.
func (r SparseRow) GlobalRow() int { return r.Cols[r.Diagonal] }

// SparseMatrix holds the locally owned rows of the distributed matrix. Rows
// are indexed by local row id; column indices stay in the global namespace.
type SparseMatrix struct {
	Title string
	Rows  []SparseRow
	// GlobalToLocal maps every locally owned global row id to its local row.
	// Off-process columns have no entry.
	GlobalToLocal map[int]int

	TotalNumberOfRows     int
	TotalNumberOfNonzeros int
	LocalNumberOfRows     int
	LocalNumberOfColumns  int
	LocalNumberOfNonzeros int
}

// LocalRow resolves a global row id to a local one. ok is false for rows
// owned by another process.
func (A *SparseMatrix) LocalRow(globalRow int) (localRow int, ok bool) {
	localRow, ok = A.GlobalToLocal[globalRow]
	return
}

// ToCSR packs the rows into a LocalNumberOfRows x TotalNumberOfRows CSR
// matrix, columns in global numbering. Within a row the stencil order is kept.
func (A *SparseMatrix) ToCSR() *sparse.CSR {
	var (
		ia   = make([]int, A.LocalNumberOfRows+1)
		ja   = make([]int, 0, A.LocalNumberOfNonzeros)
		data = make([]float64, 0, A.LocalNumberOfNonzeros)
	)
	for i, row := range A.Rows {
		ja = append(ja, row.Cols...)
		data = append(data, row.Values...)
		ia[i+1] = len(ja)
	}
	return sparse.NewCSR(A.LocalNumberOfRows, A.TotalNumberOfRows, ia, ja, data)
}

type RowStats struct {
	MinNonzeros, MaxNonzeros int
	MeanNonzeros             float64
	Histogram                map[int]int // row width -> number of rows
}

func (A *SparseMatrix) Stats() (rs RowStats) {
	rs.Histogram = make(map[int]int)
	if len(A.Rows) == 0 {
		return
	}
	rs.MinNonzeros = StencilSize
	for _, row := range A.Rows {
		nnz := row.Nonzeros()
		rs.Histogram[nnz]++
		rs.MinNonzeros = min(rs.MinNonzeros, nnz)
		rs.MaxNonzeros = max(rs.MaxNonzeros, nnz)
	}
	rs.MeanNonzeros = float64(A.LocalNumberOfNonzeros) / float64(len(A.Rows))
	return
}

package problem

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/gohpcg/comm"
	"github.com/notargets/gohpcg/geometry"
	"github.com/notargets/gohpcg/utils"
)

var ErrGroupMismatch = errors.New("geometry does not match process group")

// Vectors are the dense local vectors that accompany the matrix: the initial
// guess X, the right hand side B and the exact solution XExact.
type Vectors struct {
	X, B, XExact []float64
}

type Problem struct {
	Geometry geometry.Geometry
	A        *SparseMatrix
	Vectors
}

type options struct {
	workers int
	logger  *zap.Logger
	title   string
}

type Option func(*options)

// WithWorkers assembles the local block with n goroutines, each owning a
// contiguous range of z-planes.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTitle(title string) Option {
	return func(o *options) { o.title = title }
}

// GenerateProblem builds this process's rows of the 27-point stencil matrix
// together with X, B and XExact, then sums the nonzero count over pg. Every
// member of pg must call GenerateProblem, since the nonzero reduction is a
// collective. On error no partial problem is returned.
func GenerateProblem(ctx context.Context, geom geometry.Geometry, pg comm.ProcessGroup,
	opts ...Option) (p *Problem, err error) {
	var (
		o = options{workers: 1, logger: zap.NewNop()}
	)
	for _, opt := range opts {
		opt(&o)
	}
	if err = geom.Validate(); err != nil {
		return nil, err
	}
	if geom.Size != pg.Size() || geom.Rank != pg.Rank() {
		return nil, fmt.Errorf("%w: geometry is rank %d of %d, group is rank %d of %d",
			ErrGroupMismatch, geom.Rank, geom.Size, pg.Rank(), pg.Size())
	}
	for _, w := range geom.Warnings() {
		o.logger.Warn(w, zap.Int("rank", geom.Rank))
	}

	var (
		nRows = geom.LocalRows()
		A     = &SparseMatrix{
			Title:                o.title,
			Rows:                 make([]SparseRow, nRows),
			LocalNumberOfRows:    nRows,
			LocalNumberOfColumns: nRows,
			TotalNumberOfRows:    geom.TotalRows(),
		}
		vec = Vectors{
			X:      make([]float64, nRows),
			B:      make([]float64, nRows),
			XExact: make([]float64, nRows),
		}
		asm = newAssembler(geom, A.Rows, vec)
	)
	if A.LocalNumberOfNonzeros, err = asm.assemble(ctx, o.workers); err != nil {
		return nil, err
	}
	if A.GlobalToLocal, err = buildGlobalToLocal(A.Rows); err != nil {
		return nil, err
	}
	o.logger.Debug("assembled local block",
		zap.Int("rank", geom.Rank),
		zap.Int("size", geom.Size),
		zap.Stringer("geometry", geom),
		zap.Int("rows", A.LocalNumberOfRows),
		zap.Int("nonzeros", A.LocalNumberOfNonzeros))

	if A.TotalNumberOfNonzeros, err = pg.AllReduceSum(ctx, A.LocalNumberOfNonzeros); err != nil {
		return nil, fmt.Errorf("reducing nonzero count: %w", err)
	}
	o.logger.Info("generated problem",
		zap.Int("rank", geom.Rank),
		zap.Int("totalRows", A.TotalNumberOfRows),
		zap.Int("totalNonzeros", A.TotalNumberOfNonzeros))

	p = &Problem{
		Geometry: geom,
		A:        A,
		Vectors:  vec,
	}
	return
}

// buildGlobalToLocal indexes the owned rows by their global id.
func buildGlobalToLocal(rows []SparseRow) (g2l map[int]int, err error) {
	g2l = make(map[int]int, len(rows))
	for localRow, row := range rows {
		globalRow := row.GlobalRow()
		if prev, exists := g2l[globalRow]; exists {
			return nil, fmt.Errorf("global row %d owned by local rows %d and %d",
				globalRow, prev, localRow)
		}
		g2l[globalRow] = localRow
	}
	return
}

type assembler struct {
	geom          geometry.Geometry
	gnx, gny, gnz int
	rows          []SparseRow
	vec           Vectors
	// Every row gets a StencilSize window of these, so workers never share
	// backing storage.
	colBuf []int
	valBuf []float64
}

func newAssembler(geom geometry.Geometry, rows []SparseRow, vec Vectors) (asm *assembler) {
	asm = &assembler{
		geom:   geom,
		rows:   rows,
		vec:    vec,
		colBuf: make([]int, len(rows)*StencilSize),
		valBuf: make([]float64, len(rows)*StencilSize),
	}
	asm.gnx, asm.gny, asm.gnz = geom.GlobalDims()
	return
}

// assemble fills every local row and returns the local nonzero count. Each
// worker sums its own planes; the partial sums are merged after all workers
// are done.
func (asm *assembler) assemble(ctx context.Context, workers int) (nnz int, err error) {
	var (
		pm      = utils.NewPartitionMap(workers, asm.geom.Nz)
		partial = make([]int, pm.ParallelDegree)
		g, gctx = errgroup.WithContext(ctx)
	)
	for bn := 0; bn < pm.ParallelDegree; bn++ {
		bn := bn
		kMin, kMax := pm.GetBucketRange(bn)
		g.Go(func() error {
			for iz := kMin; iz < kMax; iz++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				partial[bn] += asm.assemblePlane(iz)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return 0, fmt.Errorf("assembling local block: %w", err)
	}
	for _, n := range partial {
		nnz += n
	}
	return
}

func (asm *assembler) assemblePlane(iz int) (nnz int) {
	for iy := 0; iy < asm.geom.Ny; iy++ {
		for ix := 0; ix < asm.geom.Nx; ix++ {
			nnz += asm.assembleRow(ix, iy, iz)
		}
	}
	return
}

// assembleRow enumerates the 27 neighbors of one cell, dropping those outside
// the global grid one axis at a time, and sets the row's vector entries.
func (asm *assembler) assembleRow(ix, iy, iz int) (nnz int) {
	var (
		gix, giy, giz = asm.geom.GlobalCell(ix, iy, iz)
		localRow      = asm.geom.LocalRow(ix, iy, iz)
		globalRow     = asm.geom.GlobalRow(gix, giy, giz)
		start         = localRow * StencilSize
		cols          = asm.colBuf[start : start : start+StencilSize]
		vals          = asm.valBuf[start : start : start+StencilSize]
		diagonal      = -1
	)
	for sz := -1; sz <= 1; sz++ {
		if giz+sz < 0 || giz+sz >= asm.gnz {
			continue
		}
		for sy := -1; sy <= 1; sy++ {
			if giy+sy < 0 || giy+sy >= asm.gny {
				continue
			}
			for sx := -1; sx <= 1; sx++ {
				if gix+sx < 0 || gix+sx >= asm.gnx {
					continue
				}
				col := globalRow + sz*asm.gnx*asm.gny + sy*asm.gnx + sx
				if col == globalRow {
					diagonal = len(cols)
					vals = append(vals, DiagonalValue)
				} else {
					vals = append(vals, OffDiagonalValue)
				}
				cols = append(cols, col)
			}
		}
	}
	nnz = len(cols)
	asm.rows[localRow] = SparseRow{
		Cols:     cols,
		Values:   vals,
		Diagonal: diagonal,
	}
	asm.vec.X[localRow] = 0.0
	asm.vec.B[localRow] = DiagonalValue - float64(nnz-1)
	asm.vec.XExact[localRow] = 1.0
	return
}

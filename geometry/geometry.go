package geometry

import (
	"errors"
	"fmt"
)

var ErrInvalidGeometry = errors.New("invalid geometry")

// Geometry describes where one process sits in the global structured grid.
// Every process owns an Nx x Ny x Nz block, and the blocks are arranged as an
// Npx x Npy x Npz process grid; (Ipx, Ipy, Ipz) is this process's block.
type Geometry struct {
	Size, Rank    int // Number of processes, this process
	Nx, Ny, Nz    int // Local block extents
	Npx, Npy, Npz int // Process grid extents
	Ipx, Ipy, Ipz int // This process's coordinate in the process grid
}

// NewGeometry places rank in the process grid, x fastest, then y, then z.
func NewGeometry(size, rank, nx, ny, nz, npx, npy, npz int) (g Geometry, err error) {
	g = Geometry{
		Size: size, Rank: rank,
		Nx: nx, Ny: ny, Nz: nz,
		Npx: npx, Npy: npy, Npz: npz,
	}
	if npx > 0 && npy > 0 {
		g.Ipz = rank / (npx * npy)
		g.Ipy = (rank - g.Ipz*npx*npy) / npx
		g.Ipx = rank % npx
	}
	err = g.Validate()
	return
}

// Validate rejects descriptors that cannot be assembled. All violations are
// reported together.
func (g Geometry) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be >= 1, got %d", name, v))
		}
	}
	within := func(name string, v, max int) {
		if v < 0 || v >= max {
			errs = append(errs, fmt.Errorf("%s must be in [0, %d), got %d", name, max, v))
		}
	}
	positive("size", g.Size)
	positive("nx", g.Nx)
	positive("ny", g.Ny)
	positive("nz", g.Nz)
	positive("npx", g.Npx)
	positive("npy", g.Npy)
	positive("npz", g.Npz)
	if g.Size > 0 {
		within("rank", g.Rank, g.Size)
	}
	if g.Npx > 0 {
		within("ipx", g.Ipx, g.Npx)
	}
	if g.Npy > 0 {
		within("ipy", g.Ipy, g.Npy)
	}
	if g.Npz > 0 {
		within("ipz", g.Ipz, g.Npz)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidGeometry, errors.Join(errs...))
}

// Warnings lists conditions that are legal but probably unintended.
func (g Geometry) Warnings() (warnings []string) {
	if np := g.Npx * g.Npy * g.Npz; np != g.Size {
		warnings = append(warnings,
			fmt.Sprintf("process grid %dx%dx%d holds %d blocks but size is %d",
				g.Npx, g.Npy, g.Npz, np, g.Size))
	}
	return
}

func (g Geometry) GlobalDims() (gnx, gny, gnz int) {
	return g.Nx * g.Npx, g.Ny * g.Npy, g.Nz * g.Npz
}

func (g Geometry) LocalRows() int { return g.Nx * g.Ny * g.Nz }

func (g Geometry) TotalRows() int {
	gnx, gny, gnz := g.GlobalDims()
	return gnx * gny * gnz
}

// GlobalCell offsets a local cell coordinate by this process's block origin.
func (g Geometry) GlobalCell(ix, iy, iz int) (gix, giy, giz int) {
	return g.Ipx*g.Nx + ix, g.Ipy*g.Ny + iy, g.Ipz*g.Nz + iz
}

// GlobalRow linearizes a global cell, x fastest. Every process computes the
// same id for the same cell.
func (g Geometry) GlobalRow(gix, giy, giz int) int {
	gnx, gny, _ := g.GlobalDims()
	return giz*gnx*gny + giy*gnx + gix
}

func (g Geometry) LocalRow(ix, iy, iz int) int {
	return iz*g.Nx*g.Ny + iy*g.Nx + ix
}

func (g Geometry) String() string {
	return fmt.Sprintf("rank %d of %d: block %dx%dx%d at (%d,%d,%d) of %dx%dx%d",
		g.Rank, g.Size, g.Nx, g.Ny, g.Nz, g.Ipx, g.Ipy, g.Ipz, g.Npx, g.Npy, g.Npz)
}

// ExpectedNonzeros is the cluster-wide nonzero count of the clipped 27-point
// stencil on a gnx x gny x gnz grid. Along one axis of extent n the stencil
// contributes 3n-2 (cell, offset) pairs, and the axes are independent.
func ExpectedNonzeros(gnx, gny, gnz int) int {
	axis := func(n int) int { return 3*n - 2 }
	return axis(gnx) * axis(gny) * axis(gnz)
}

package geometry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeometry(t *testing.T) {
	{ // Rank placement in a 2x3x2 process grid, x fastest
		seen := make(map[[3]int]bool)
		for rank := 0; rank < 12; rank++ {
			g, err := NewGeometry(12, rank, 4, 4, 4, 2, 3, 2)
			require.NoError(t, err)
			assert.Equal(t, rank, g.Ipz*2*3+g.Ipy*2+g.Ipx)
			seen[[3]int{g.Ipx, g.Ipy, g.Ipz}] = true
		}
		assert.Equal(t, 12, len(seen))
	}
	{
		g, err := NewGeometry(1, 0, 2, 2, 2, 1, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, 8, g.LocalRows())
		assert.Equal(t, 8, g.TotalRows())
		assert.Empty(t, g.Warnings())
	}
}

func TestValidate(t *testing.T) {
	good := Geometry{Size: 2, Rank: 1, Nx: 2, Ny: 1, Nz: 1, Npx: 2, Npy: 1, Npz: 1, Ipx: 1}
	assert.NoError(t, good.Validate())

	cases := map[string]Geometry{
		"zero nx":       {Size: 1, Nx: 0, Ny: 1, Nz: 1, Npx: 1, Npy: 1, Npz: 1},
		"negative nz":   {Size: 1, Nx: 1, Ny: 1, Nz: -3, Npx: 1, Npy: 1, Npz: 1},
		"rank too big":  {Size: 2, Rank: 2, Nx: 1, Ny: 1, Nz: 1, Npx: 2, Npy: 1, Npz: 1},
		"negative rank": {Size: 2, Rank: -1, Nx: 1, Ny: 1, Nz: 1, Npx: 2, Npy: 1, Npz: 1},
		"ipx too big":   {Size: 2, Nx: 1, Ny: 1, Nz: 1, Npx: 2, Npy: 1, Npz: 1, Ipx: 2},
		"ipz negative":  {Size: 1, Nx: 1, Ny: 1, Nz: 1, Npx: 1, Npy: 1, Npz: 1, Ipz: -1},
		"zero npy":      {Size: 1, Nx: 1, Ny: 1, Nz: 1, Npx: 1, Npy: 0, Npz: 1},
		"zero size":     {Size: 0, Nx: 1, Ny: 1, Nz: 1, Npx: 1, Npy: 1, Npz: 1},
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			err := g.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGeometry))
		})
	}
	{ // All problems are reported at once
		err := Geometry{Size: 1, Nx: 0, Ny: 0, Nz: 1, Npx: 1, Npy: 1, Npz: 1}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nx must be >= 1")
		assert.Contains(t, err.Error(), "ny must be >= 1")
	}
}

func TestWarnings(t *testing.T) {
	g := Geometry{Size: 3, Nx: 1, Ny: 1, Nz: 1, Npx: 2, Npy: 1, Npz: 1}
	assert.NoError(t, g.Validate())
	assert.Len(t, g.Warnings(), 1)
}

func TestGlobalNumbering(t *testing.T) {
	{ // Ids are unique and dense across all processes of a 2x2x1 process grid
		ids := make(map[int]bool)
		for rank := 0; rank < 4; rank++ {
			g, err := NewGeometry(4, rank, 3, 2, 2, 2, 2, 1)
			require.NoError(t, err)
			for iz := 0; iz < g.Nz; iz++ {
				for iy := 0; iy < g.Ny; iy++ {
					for ix := 0; ix < g.Nx; ix++ {
						id := g.GlobalRow(g.GlobalCell(ix, iy, iz))
						assert.False(t, ids[id], "duplicate global row %d", id)
						ids[id] = true
					}
				}
			}
		}
		assert.Equal(t, 6*4*2, len(ids))
		for id := 0; id < 48; id++ {
			assert.True(t, ids[id])
		}
	}
	{ // Neighbors across a partition boundary are consecutive in x
		g0, _ := NewGeometry(2, 0, 2, 1, 1, 2, 1, 1)
		g1, _ := NewGeometry(2, 1, 2, 1, 1, 2, 1, 1)
		assert.Equal(t, 1, g0.GlobalRow(g0.GlobalCell(1, 0, 0)))
		assert.Equal(t, 2, g1.GlobalRow(g1.GlobalCell(0, 0, 0)))
	}
	{
		g := Geometry{Size: 1, Nx: 3, Ny: 4, Nz: 5, Npx: 1, Npy: 1, Npz: 1}
		assert.Equal(t, 0, g.LocalRow(0, 0, 0))
		assert.Equal(t, 3*4*5-1, g.LocalRow(2, 3, 4))
		assert.Equal(t, g.LocalRow(2, 3, 4), g.GlobalRow(2, 3, 4))
	}
}

func TestString(t *testing.T) {
	g, err := NewGeometry(12, 7, 4, 5, 6, 2, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, "rank 7 of 12: block 4x5x6 at (1,0,1) of 2x3x2", g.String())
}

func TestExpectedNonzeros(t *testing.T) {
	assert.Equal(t, 1, ExpectedNonzeros(1, 1, 1))
	assert.Equal(t, 64, ExpectedNonzeros(2, 2, 2))
	assert.Equal(t, 7, ExpectedNonzeros(3, 1, 1))
	assert.Equal(t, 10, ExpectedNonzeros(4, 1, 1))
	// 3x3x3: one interior cell of width 27, every other cell clipped
	assert.Equal(t, 343, ExpectedNonzeros(3, 3, 3))
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notargets/gohpcg/InputParameters"
	"github.com/notargets/gohpcg/geometry"
)

func TestRunGenerate(t *testing.T) {
	var (
		buf bytes.Buffer
		ip  = &InputParameters.InputParameters3D{
			Title: "box", Nx: 2, Ny: 2, Nz: 2, Npx: 2, Npy: 1, Npz: 2, Workers: 2,
		}
	)
	summaries, err := RunGenerate(context.Background(), ip, RunOptions{}, zaptest.NewLogger(t), &buf)
	require.NoError(t, err)
	require.Len(t, summaries, 4)
	for rank, s := range summaries {
		assert.Equal(t, rank, s.Rank)
		assert.Equal(t, 4, s.Size)
		assert.Equal(t, 8, s.LocalRows)
		assert.Equal(t, 32, s.TotalRows)
		assert.Equal(t, geometry.ExpectedNonzeros(4, 2, 4), s.TotalNnz)
		assert.Equal(t, 0.0, s.Residual)
		assert.Equal(t, 8, s.MinNnz)
	}
	assert.Contains(t, buf.String(), "Process 0 of 4 has 8 rows")
	assert.Contains(t, buf.String(), "Process 3 of 4")
}

func TestRunGenerateCountInstructions(t *testing.T) {
	ip := &InputParameters.InputParameters3D{Nx: 3, Ny: 3, Nz: 3, Npx: 1, Npy: 1, Npz: 1}
	summaries, err := RunGenerate(context.Background(), ip, RunOptions{CountInstr: true}, nil, &bytes.Buffer{})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 343, summaries[0].TotalNnz)
}

func TestRunGenerateCountWarnsWithWorkers(t *testing.T) {
	var (
		core, logs = observer.New(zapcore.WarnLevel)
		ip         = &InputParameters.InputParameters3D{Nx: 2, Ny: 2, Nz: 4, Npx: 1, Npy: 1, Npz: 1, Workers: 2}
	)
	_, err := RunGenerate(context.Background(), ip, RunOptions{CountInstr: true}, zap.New(core), &bytes.Buffer{})
	require.NoError(t, err)
	entries := logs.FilterMessageSnippet("calling thread only").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["workers"])

	// A single worker is counted in full
	ip.Workers = 1
	logs.TakeAll()
	_, err = RunGenerate(context.Background(), ip, RunOptions{CountInstr: true}, zap.New(core), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessageSnippet("calling thread only").Len())
}

func TestStartProfile(t *testing.T) {
	prof, err := startProfile(false, false)
	require.NoError(t, err)
	assert.Nil(t, prof)
	_, err = startProfile(true, true)
	assert.Error(t, err)
}

func TestRunGenerateFailures(t *testing.T) {
	{ // Fewer ranks than blocks in the process grid leaves nonzeros missing
		ip := &InputParameters.InputParameters3D{Nx: 2, Ny: 2, Nz: 2, Npx: 2, Npy: 1, Npz: 2}
		_, err := RunGenerate(context.Background(), ip, RunOptions{Ranks: 2}, nil, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected")
	}
	{
		ip := &InputParameters.InputParameters3D{Nx: 0, Ny: 2, Nz: 2, Npx: 2, Npy: 1, Npz: 1}
		_, err := RunGenerate(context.Background(), ip, RunOptions{}, nil, &bytes.Buffer{})
		assert.True(t, errors.Is(err, geometry.ErrInvalidGeometry))
	}
	{
		ip := &InputParameters.InputParameters3D{Nx: 1, Ny: 1, Nz: 1, Npx: 0, Npy: 1, Npz: 1}
		_, err := RunGenerate(context.Background(), ip, RunOptions{}, nil, &bytes.Buffer{})
		assert.Error(t, err)
	}
}

func TestResolveParameters(t *testing.T) {
	var (
		dir  = t.TempDir()
		file = filepath.Join(dir, "problem.yaml")
	)
	require.NoError(t, os.WriteFile(file, []byte("Title: from file\nNx: 3\nNpx: 2\n"), 0o644))
	flags := GenerateCmd.Flags()
	require.NoError(t, flags.Set("inputConditionsFile", file))
	require.NoError(t, flags.Set("ny", "5"))
	defer func() {
		_ = flags.Set("inputConditionsFile", "")
		_ = flags.Set("ny", "16")
	}()

	ip, err := resolveParameters(flags)
	require.NoError(t, err)
	assert.Equal(t, "from file", ip.Title)
	assert.Equal(t, 3, ip.Nx)
	assert.Equal(t, 5, ip.Ny)  // set on the command line
	assert.Equal(t, 16, ip.Nz) // flag default
	assert.Equal(t, 2, ip.Npx)

	require.NoError(t, flags.Set("inputConditionsFile", filepath.Join(dir, "missing.yaml")))
	_, err = resolveParameters(flags)
	assert.Error(t, err)
}

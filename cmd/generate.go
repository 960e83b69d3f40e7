/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/notargets/gohpcg/InputParameters"
	"github.com/notargets/gohpcg/comm"
	"github.com/notargets/gohpcg/geometry"
	"github.com/notargets/gohpcg/problem"
	"github.com/notargets/gohpcg/utils"
)

type RunOptions struct {
	Ranks      int  // In-process ranks, 0 means one per process grid block
	UseMPI     bool // One rank per OS process through MPI
	CountInstr bool
}

// RankSummary is what one rank reports after generating its problem.
type RankSummary struct {
	Rank, Size          int
	LocalRows, LocalNnz int
	TotalRows, TotalNnz int
	MinNnz, MaxNnz      int
	Residual            float64
	Elapsed             time.Duration
	Instructions        uint64
}

// GenerateCmd represents the generate command
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the distributed 27-point stencil problem and verify it",
	Long: `
Each rank assembles its block of the matrix, the nonzero count is summed over
all ranks, and every rank checks A*xexact = b on its rows. The global nonzero
count is compared against the closed form for the grid.

gohpcg generate -x 8 -y 8 -z 8 --npx 2 --npy 2 --npz 1
gohpcg generate -I problem.yaml --ranks 4`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip   *InputParameters.InputParameters3D
			opts = RunOptions{
				Ranks:      viper.GetInt("ranks"),
				UseMPI:     viper.GetBool("mpi"),
				CountInstr: viper.GetBool("perf"),
			}
		)
		if ip, err = resolveParameters(cmd.Flags()); err != nil {
			return
		}
		var prof interface{ Stop() }
		if prof, err = startProfile(viper.GetBool("cpuprofile"), viper.GetBool("memprofile")); err != nil {
			return
		}
		if prof != nil {
			defer prof.Stop()
		}
		_, err = RunGenerate(cmd.Context(), ip, opts, logger, os.Stdout)
		return
	},
}

func init() {
	rootCmd.AddCommand(GenerateCmd)
	GenerateCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file with Title, Nx, Ny, Nz, Npx, Npy, Npz, Workers")
	GenerateCmd.Flags().String("title", "", "problem title")
	GenerateCmd.Flags().IntP("nx", "x", 16, "local block size in x")
	GenerateCmd.Flags().IntP("ny", "y", 16, "local block size in y")
	GenerateCmd.Flags().IntP("nz", "z", 16, "local block size in z")
	GenerateCmd.Flags().Int("npx", 1, "process grid size in x")
	GenerateCmd.Flags().Int("npy", 1, "process grid size in y")
	GenerateCmd.Flags().Int("npz", 1, "process grid size in z")
	GenerateCmd.Flags().IntP("workers", "w", 1, "assembly goroutines per rank")
	GenerateCmd.Flags().IntP("ranks", "r", 0, "in-process ranks, default npx*npy*npz")
	GenerateCmd.Flags().Bool("mpi", false, "run one rank per MPI process (needs -tags mpi)")
	GenerateCmd.Flags().Bool("perf", false, "count CPU instructions spent in assembly (linux, calling thread only, use with --workers 1)")
	GenerateCmd.Flags().Bool("cpuprofile", false, "write a CPU profile to the current directory")
	GenerateCmd.Flags().Bool("memprofile", false, "write a memory profile to the current directory")
	_ = viper.BindPFlags(GenerateCmd.Flags())
}

// resolveParameters starts from flags, environment and config file, overlays
// the input file if one is given, then reapplies flags set explicitly on the
// command line.
func resolveParameters(flags *pflag.FlagSet) (ip *InputParameters.InputParameters3D, err error) {
	ip = &InputParameters.InputParameters3D{
		Title:   viper.GetString("title"),
		Nx:      viper.GetInt("nx"),
		Ny:      viper.GetInt("ny"),
		Nz:      viper.GetInt("nz"),
		Npx:     viper.GetInt("npx"),
		Npy:     viper.GetInt("npy"),
		Npz:     viper.GetInt("npz"),
		Workers: viper.GetInt("workers"),
	}
	file := viper.GetString("inputConditionsFile")
	if file == "" {
		return
	}
	var data []byte
	if data, err = os.ReadFile(file); err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("parsing input file %s: %w", file, err)
	}
	overrides := map[string]*int{
		"nx": &ip.Nx, "ny": &ip.Ny, "nz": &ip.Nz,
		"npx": &ip.Npx, "npy": &ip.Npy, "npz": &ip.Npz,
		"workers": &ip.Workers,
	}
	for name, dst := range overrides {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	if flags.Changed("title") {
		ip.Title, _ = flags.GetString("title")
	}
	return
}

// startProfile returns nil when neither profile is requested. The profiler
// supports one mode per run.
func startProfile(cpu, mem bool) (interface{ Stop() }, error) {
	switch {
	case cpu && mem:
		return nil, fmt.Errorf("--cpuprofile and --memprofile cannot be used together")
	case cpu:
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.Quiet), nil
	case mem:
		return profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.Quiet), nil
	}
	return nil, nil
}

// RunGenerate generates and verifies the problem on every rank and writes a
// report to out. The summaries are ordered by rank.
func RunGenerate(ctx context.Context, ip *InputParameters.InputParameters3D, opts RunOptions,
	log *zap.Logger, out io.Writer) (summaries []RankSummary, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = zap.NewNop()
	}
	ip.Print()
	var (
		mu      sync.Mutex
		perRank = func(ctx context.Context, pg comm.ProcessGroup) error {
			s, err := generateRank(ctx, ip, pg, opts, log)
			if err != nil {
				return err
			}
			mu.Lock()
			summaries = append(summaries, s)
			mu.Unlock()
			return nil
		}
	)
	if opts.UseMPI {
		var world *comm.MPI
		if world, err = comm.NewWorld(); err != nil {
			return nil, err
		}
		defer world.Close()
		err = perRank(ctx, world)
	} else {
		ranks := opts.Ranks
		if ranks == 0 {
			ranks = ip.Npx * ip.Npy * ip.Npz
		}
		if ranks < 1 {
			return nil, fmt.Errorf("number of ranks must be >= 1, got %d", ranks)
		}
		err = comm.Run(ctx, ranks, perRank)
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Rank < summaries[j].Rank })
	for _, s := range summaries {
		printSummary(out, s)
	}
	return
}

func generateRank(ctx context.Context, ip *InputParameters.InputParameters3D, pg comm.ProcessGroup,
	opts RunOptions, log *zap.Logger) (s RankSummary, err error) {
	var (
		geom geometry.Geometry
		p    *problem.Problem
		rlog = log.With(zap.Int("rank", pg.Rank()))
	)
	geom, err = geometry.NewGeometry(pg.Size(), pg.Rank(), ip.Nx, ip.Ny, ip.Nz, ip.Npx, ip.Npy, ip.Npz)
	if err != nil {
		return
	}
	generate := func() (err error) {
		p, err = problem.GenerateProblem(ctx, geom, pg,
			problem.WithWorkers(ip.Workers),
			problem.WithLogger(rlog),
			problem.WithTitle(ip.Title))
		return
	}
	var (
		genErr error
		start  = time.Now()
	)
	if opts.CountInstr {
		if ip.Workers > 1 {
			rlog.Warn("instruction count covers the calling thread only, assembly workers are not counted",
				zap.Int("workers", ip.Workers))
		}
		counted := func() error {
			genErr = generate()
			return genErr
		}
		var perfErr error
		if s.Instructions, perfErr = utils.CountInstructions(counted); perfErr != nil && genErr == nil {
			rlog.Warn("hardware counters unavailable", zap.Error(perfErr))
		}
	}
	// Counting was off, or the counter could not be opened before running
	if p == nil && genErr == nil {
		genErr = generate()
	}
	if genErr != nil {
		return s, genErr
	}
	s.Elapsed = time.Since(start)

	gnx, gny, gnz := geom.GlobalDims()
	if want := geometry.ExpectedNonzeros(gnx, gny, gnz); p.A.TotalNumberOfNonzeros != want {
		return s, fmt.Errorf("total nonzeros %d, expected %d for a %dx%dx%d grid",
			p.A.TotalNumberOfNonzeros, want, gnx, gny, gnz)
	}
	if s.Residual, err = p.Residual(); err != nil {
		return
	}
	if s.Residual != 0 {
		return s, fmt.Errorf("residual of exact solution is %g", s.Residual)
	}
	rs := p.A.Stats()
	s.Rank, s.Size = pg.Rank(), pg.Size()
	s.LocalRows, s.LocalNnz = p.A.LocalNumberOfRows, p.A.LocalNumberOfNonzeros
	s.TotalRows, s.TotalNnz = p.A.TotalNumberOfRows, p.A.TotalNumberOfNonzeros
	s.MinNnz, s.MaxNnz = rs.MinNonzeros, rs.MaxNonzeros
	return
}

func printSummary(out io.Writer, s RankSummary) {
	fmt.Fprintf(out, "Process %d of %d has %d rows and %d nonzeros (row width %d-%d)\n",
		s.Rank, s.Size, s.LocalRows, s.LocalNnz, s.MinNnz, s.MaxNnz)
	fmt.Fprintf(out, "\tTotal rows = %d, Total nonzeros = %d, Residual = %g, Elapsed = %v\n",
		s.TotalRows, s.TotalNnz, s.Residual, s.Elapsed)
	if s.Instructions != 0 {
		fmt.Fprintf(out, "\tInstructions = %d\n", s.Instructions)
	}
	if s.Rank == 0 {
		fmt.Fprintf(out, "\t%s\n", utils.GetMemUsage())
	}
}

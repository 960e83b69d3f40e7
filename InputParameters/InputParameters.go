package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type InputParameters3D struct {
	Title   string `json:"Title"`
	Nx      int    `json:"Nx"` // Local block extents, per process
	Ny      int    `json:"Ny"`
	Nz      int    `json:"Nz"`
	Npx     int    `json:"Npx"` // Process grid extents
	Npy     int    `json:"Npy"`
	Npz     int    `json:"Npz"`
	Workers int    `json:"Workers"` // Assembly goroutines per process
}

func (ip *InputParameters3D) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *InputParameters3D) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d, %d, %d]\t\t= Local Block (nx, ny, nz)\n", ip.Nx, ip.Ny, ip.Nz)
	fmt.Printf("[%d, %d, %d]\t\t= Process Grid (npx, npy, npz)\n", ip.Npx, ip.Npy, ip.Npz)
	fmt.Printf("[%d, %d, %d]\t\t= Global Grid\n", ip.Nx*ip.Npx, ip.Ny*ip.Npy, ip.Nz*ip.Npz)
	fmt.Printf("[%d]\t\t\t= Workers\n", ip.Workers)
}

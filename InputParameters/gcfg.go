package InputParameters

import (
	"gopkg.in/gcfg.v1"

	"github.com/notargets/gopic/fft"
)

// gcfgInput mirrors InputParametersPIC as INI style sections. Multi valued
// variables (Grid, Length) take one line per axis.
type gcfgInput struct {
	Run struct {
		Title            string
		Ranks            int
		Grid             []int
		Length           []float64
		Nghost           int
		ParticlesPerRank int
		Steps            int
		Displacement     float64
		Seed             int64
		LocatePolicy     string
		CountExchange    string
		NoVerify         bool
		Strict           bool
		MaxMessageSize   int
		ProcLimit        int
	}
	BCs struct {
		All, X0, X1, Y0, Y1, Z0, Z1 string
	}
	FFT    fft.Params
	Solver struct {
		Greens   string
		Epsilon0 float64
	}
}

// ParseGcfg reads the INI style form of the input file:
//
//	[Run]
//	Ranks = 4
//	Grid = 32
//	Grid = 32
//	[BCs]
//	All = periodic
//	[Solver]
//	Greens = spectral
func (ip *InputParametersPIC) ParseGcfg(data []byte) (err error) {
	var in gcfgInput
	if err = gcfg.ReadStringInto(&in, string(data)); err != nil {
		return
	}
	r := in.Run
	*ip = InputParametersPIC{
		Title:            r.Title,
		Ranks:            r.Ranks,
		Grid:             r.Grid,
		Length:           r.Length,
		Nghost:           r.Nghost,
		ParticlesPerRank: r.ParticlesPerRank,
		Steps:            r.Steps,
		Displacement:     r.Displacement,
		Seed:             r.Seed,
		LocatePolicy:     r.LocatePolicy,
		CountExchange:    r.CountExchange,
		NoVerify:         r.NoVerify,
		Strict:           r.Strict,
		MaxMessageSize:   r.MaxMessageSize,
		ProcLimit:        r.ProcLimit,
		FFT:              in.FFT,
	}
	ip.Solver.Greens, ip.Solver.Epsilon0 = in.Solver.Greens, in.Solver.Epsilon0
	bcs := map[string]string{
		"All": in.BCs.All,
		"X0":  in.BCs.X0,
		"X1":  in.BCs.X1,
		"Y0":  in.BCs.Y0,
		"Y1":  in.BCs.Y1,
		"Z0":  in.BCs.Z0,
		"Z1":  in.BCs.Z1,
	}
	for face, label := range bcs {
		if len(label) == 0 {
			continue
		}
		if ip.BCs == nil {
			ip.BCs = make(map[string]string)
		}
		ip.BCs[face] = label
	}
	return
}

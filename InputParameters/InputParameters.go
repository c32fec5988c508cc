package InputParameters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/fft"
	"github.com/notargets/gopic/particle"
	"github.com/notargets/gopic/solver"
	"github.com/notargets/gopic/types"
)

// Parameters obtained from the YAML input file
type InputParametersPIC struct {
	Title            string            `yaml:"Title"`
	Ranks            int               `yaml:"Ranks"`
	Grid             []int             `yaml:"Grid"`   // Points per axis
	Length           []float64         `yaml:"Length"` // Physical extent per axis, defaults to 1
	Nghost           int               `yaml:"Nghost"`
	ParticlesPerRank int               `yaml:"ParticlesPerRank"`
	Steps            int               `yaml:"Steps"`
	Displacement     float64           `yaml:"Displacement"` // Largest move per step, in cells
	Seed             int64             `yaml:"Seed"`
	LocatePolicy     string            `yaml:"LocatePolicy"`
	CountExchange    string            `yaml:"CountExchange"`
	NoVerify         bool              `yaml:"NoVerify"` // Skip the post receive region check
	Strict           bool              `yaml:"Strict"`
	MaxMessageSize   int               `yaml:"MaxMessageSize"`
	ProcLimit        int               `yaml:"ProcLimit"`
	BCs              map[string]string `yaml:"BCs"` // Face name (All, X0, X1, Y0, ...) to condition
	FFT              fft.Params        `yaml:"FFT"`
	Solver           solver.Params     `yaml:"Solver"`
}

func (ip *InputParametersPIC) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

// Defaults fills in everything the input file left out.
func (ip *InputParametersPIC) Defaults() {
	if ip.Ranks == 0 {
		ip.Ranks = 1
	}
	if len(ip.Grid) == 0 {
		ip.Grid = []int{32, 32}
	}
	for len(ip.Length) < len(ip.Grid) {
		ip.Length = append(ip.Length, 1)
	}
	if ip.Nghost == 0 {
		ip.Nghost = 1
	}
	if ip.ParticlesPerRank == 0 {
		ip.ParticlesPerRank = 1000
	}
	if ip.Steps == 0 {
		ip.Steps = 10
	}
	if ip.Displacement == 0 {
		ip.Displacement = 0.5
	}
	if ip.LocatePolicy == "" {
		ip.LocatePolicy = particle.LocateFail.String()
	}
	if ip.CountExchange == "" {
		ip.CountExchange = particle.CountWindow.String()
	}
	if ip.FFT.Comm == "" {
		ip.FFT = fft.DefaultParams()
	}
}

// Validate checks the parameters after Defaults.
func (ip *InputParametersPIC) Validate() (err error) {
	if len(ip.Grid) < 1 || len(ip.Grid) > comm.MaxDim {
		return fmt.Errorf("grid must have 1 to %d axes, have %v", comm.MaxDim, ip.Grid)
	}
	if len(ip.Length) != len(ip.Grid) {
		return fmt.Errorf("have %d lengths for %d grid axes", len(ip.Length), len(ip.Grid))
	}
	for d, n := range ip.Grid {
		if n < 2 || ip.Length[d] <= 0 {
			return fmt.Errorf("axis %d: need at least 2 points and a positive length, have %d and %g",
				d, n, ip.Length[d])
		}
	}
	if ip.Ranks < 1 {
		return fmt.Errorf("ranks must be positive, have %d", ip.Ranks)
	}
	if _, err = ip.Policy(); err != nil {
		return
	}
	if _, err = ip.Counts(); err != nil {
		return
	}
	_, err = ip.BoundaryConditions()
	return
}

func (ip *InputParametersPIC) Dim() int { return len(ip.Grid) }

// Spacing is Length/Grid per axis, so the cells of index i cover
// [i*h, (i+1)*h) and the domain is periodic with period Length.
func (ip *InputParametersPIC) Spacing() (h []float64) {
	h = make([]float64, len(ip.Grid))
	for d, n := range ip.Grid {
		h[d] = ip.Length[d] / float64(n)
	}
	return
}

func (ip *InputParametersPIC) Policy() (lp particle.LocatePolicy, err error) {
	var ok bool
	if lp, ok = particle.LocatePolicyNames[strings.ToLower(ip.LocatePolicy)]; !ok {
		err = fmt.Errorf("unknown locate policy %q", ip.LocatePolicy)
	}
	return
}

func (ip *InputParametersPIC) Counts() (ce particle.CountExchange, err error) {
	var ok bool
	if ce, ok = particle.CountExchangeNames[strings.ToLower(ip.CountExchange)]; !ok {
		err = fmt.Errorf("unknown count exchange %q", ip.CountExchange)
	}
	return
}

// BoundaryConditions resolves the face map. "All" applies first, specific
// faces override it, missing faces are periodic.
func (ip *InputParametersPIC) BoundaryConditions() (bcs particle.BCs, err error) {
	var (
		bc   types.BCFLAG
		axes = "XYZ"
	)
	bcs = particle.UniformBCs(types.BC_Periodic)
	for name, label := range ip.BCs {
		if bc, err = types.NewBCFLAG(label); err != nil {
			return
		}
		if strings.EqualFold(name, "All") {
			bcs = particle.UniformBCs(bc)
		}
	}
	for name, label := range ip.BCs {
		if strings.EqualFold(name, "All") {
			continue
		}
		name = strings.ToUpper(name)
		if len(name) != 2 || !strings.ContainsRune(axes, rune(name[0])) || (name[1] != '0' && name[1] != '1') {
			return bcs, fmt.Errorf("unknown boundary face %q, want All or one of X0, X1, Y0, Y1, Z0, Z1", name)
		}
		if bc, err = types.NewBCFLAG(label); err != nil {
			return
		}
		bcs[2*strings.IndexByte(axes, name[0])+int(name[1]-'0')] = bc
	}
	return
}

func (ip *InputParametersPIC) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", ip.Ranks)
	fmt.Printf("%v\t\t\t= Grid\n", ip.Grid)
	fmt.Printf("%v\t\t\t= Length\n", ip.Length)
	fmt.Printf("[%d]\t\t\t\t= Ghost Width\n", ip.Nghost)
	fmt.Printf("[%d]\t\t\t\t= Particles Per Rank\n", ip.ParticlesPerRank)
	fmt.Printf("[%d]\t\t\t\t= Steps\n", ip.Steps)
	fmt.Printf("%8.5f\t\t= Displacement\n", ip.Displacement)
	fmt.Printf("[%s]\t\t\t= Locate Policy\n", ip.LocatePolicy)
	fmt.Printf("[%s]\t\t\t= Count Exchange\n", ip.CountExchange)
	fmt.Printf("[%s]\t\t\t= FFT Comm\n", ip.FFT.Comm)
	fmt.Printf("[%s]\t= Greens Function\n", ip.Solver.Greens)
	keys := make([]string, len(ip.BCs))
	i := 0
	for k := range ip.BCs {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%s] = %v\n", key, ip.BCs[key])
	}
}

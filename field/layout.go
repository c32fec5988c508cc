package field

import (
	"fmt"
	"sort"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/utils"
)

// Layout decomposes a global index domain into one rectangular block per
// rank. Axes flagged as parallel are cut into blocks, the block counts per
// axis multiply to the number of ranks. Blocks are numbered with axis 0
// varying fastest. Along each axis the cut follows PartitionMap.Split1D, so
// block lengths differ by at most one.
type Layout struct {
	comm     *comm.Communicator
	domain   NDIndex
	parallel []bool
	periodic []bool
	blocks   []int
	local    []NDIndex // Per rank
}

type LayoutOption func(l *Layout)

// WithPeriodic sets which axes wrap around for neighbor lookups. The default
// is periodic along every axis.
func WithPeriodic(periodic ...bool) LayoutOption {
	return func(l *Layout) {
		copy(l.periodic, periodic)
	}
}

// NewLayout decomposes domain over the ranks of c. parallel may be nil, in
// which case all axes may be cut.
func NewLayout(c *comm.Communicator, domain NDIndex, parallel []bool,
	opts ...LayoutOption) (l *Layout, err error) {
	var (
		dim = domain.Dim()
	)
	if dim < 1 || dim > comm.MaxDim {
		err = fmt.Errorf("layout dimension must be in [1,%d], have %d", comm.MaxDim, dim)
		return
	}
	for d := 0; d < dim; d++ {
		if domain[d].Length() < 1 {
			err = fmt.Errorf("empty domain along axis %d: %v", d, domain)
			return
		}
	}
	l = &Layout{
		comm:     c,
		domain:   append(NDIndex(nil), domain...),
		parallel: make([]bool, dim),
		periodic: make([]bool, dim),
		blocks:   make([]int, dim),
	}
	for d := 0; d < dim; d++ {
		l.parallel[d] = parallel == nil || (d < len(parallel) && parallel[d])
		l.periodic[d] = true
	}
	for _, opt := range opts {
		opt(l)
	}
	if err = l.computeBlocks(c.Size()); err != nil {
		return nil, err
	}
	l.local = make([]NDIndex, c.Size())
	for r := 0; r < c.Size(); r++ {
		l.local[r] = l.blockDomain(l.coordsOf(r))
	}
	return
}

// computeBlocks hands out the prime factors of the rank count, largest
// first, to the parallel axis that currently has the longest blocks.
func (l *Layout) computeBlocks(nRanks int) (err error) {
	lengths := l.domain.Lengths()
	for d := range l.blocks {
		l.blocks[d] = 1
	}
	factors := primeFactors(nRanks)
	sort.Sort(sort.Reverse(sort.IntSlice(factors)))
	for _, p := range factors {
		best := -1
		for d := range l.blocks {
			if !l.parallel[d] || l.blocks[d]*p > lengths[d] {
				continue
			}
			if best == -1 || lengths[d]*l.blocks[best] > lengths[best]*l.blocks[d] {
				best = d
			}
		}
		if best == -1 {
			return fmt.Errorf("cannot split domain %v with parallel axes %v over %d ranks",
				l.domain, l.parallel, nRanks)
		}
		l.blocks[best] *= p
	}
	return
}

func primeFactors(n int) (f []int) {
	for p := 2; p*p <= n; p++ {
		for n%p == 0 {
			f = append(f, p)
			n /= p
		}
	}
	if n > 1 {
		f = append(f, n)
	}
	return
}

func (l *Layout) coordsOf(rank int) (coords []int) {
	coords = make([]int, len(l.blocks))
	for d, nb := range l.blocks {
		coords[d] = rank % nb
		rank /= nb
	}
	return
}

func (l *Layout) rankOf(coords []int) (rank int) {
	for d := len(l.blocks) - 1; d >= 0; d-- {
		rank = rank*l.blocks[d] + coords[d]
	}
	return
}

func (l *Layout) blockDomain(coords []int) (nd NDIndex) {
	nd = make(NDIndex, len(coords))
	for d, cd := range coords {
		pm := utils.NewPartitionMap(l.blocks[d], l.domain[d].Length())
		kMin, kMax := pm.GetBucketRange(cd)
		nd[d] = Index{l.domain[d].First + kMin, l.domain[d].First + kMax - 1}
	}
	return
}

func (l *Layout) Comm() *comm.Communicator { return l.comm }

func (l *Layout) Dim() int { return len(l.domain) }

// Domain is the global index domain.
func (l *Layout) Domain() NDIndex { return l.domain }

// LocalNDIndex is the block owned by this rank.
func (l *Layout) LocalNDIndex() NDIndex { return l.local[l.comm.Rank()] }

// HostLocalDomains returns the blocks of all ranks, indexed by rank.
func (l *Layout) HostLocalDomains() []NDIndex { return l.local }

// Blocks is the number of blocks along each axis.
func (l *Layout) Blocks() []int { return append([]int(nil), l.blocks...) }

func (l *Layout) IsParallel(d int) bool { return l.parallel[d] }

func (l *Layout) IsPeriodic(d int) bool { return l.periodic[d] }

// Neighbor returns the rank owning the block adjacent to this rank's block
// along axis d, on the lower (side 0) or upper (side 1) side, or -1 when the
// block touches a non-periodic boundary.
func (l *Layout) Neighbor(d, side int) int {
	return l.NeighborOf(l.comm.Rank(), d, side)
}

func (l *Layout) NeighborOf(rank, d, side int) int {
	coords := l.coordsOf(rank)
	if side == 0 {
		coords[d]--
	} else {
		coords[d]++
	}
	if coords[d] < 0 || coords[d] >= l.blocks[d] {
		if !l.periodic[d] {
			return -1
		}
		coords[d] = (coords[d] + l.blocks[d]) % l.blocks[d]
	}
	return l.rankOf(coords)
}

package particle

import (
	"errors"
	"fmt"
	"log"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/field"
	"github.com/notargets/gopic/region"
	"github.com/notargets/gopic/types"
	"github.com/notargets/gopic/utils"
)

var (
	ErrLocateMiss  = errors.New("particle is outside every region")
	ErrConsistency = errors.New("particle outside the region of its rank")
)

// LocatePolicy decides what happens to a particle that no region contains.
type LocatePolicy uint8

const (
	// LocateFail fails the round before any particle moves and aborts the
	// world.
	LocateFail LocatePolicy = iota
	// LocateNearest sends the particle to the closest region and clamps its
	// position into it.
	LocateNearest
	// LocateKeep leaves the particle on its rank and logs the miss.
	LocateKeep
)

var LocatePolicyNames = map[string]LocatePolicy{
	"fail":    LocateFail,
	"nearest": LocateNearest,
	"keep":    LocateKeep,
}

func (lp LocatePolicy) String() string {
	for name, p := range LocatePolicyNames {
		if p == lp {
			return name
		}
	}
	return fmt.Sprintf("LocatePolicy(%d)", uint8(lp))
}

// CountExchange selects how ranks learn their receive counts.
type CountExchange uint8

const (
	// CountWindow puts each send count into the window of the receiver
	// between two fences.
	CountWindow CountExchange = iota
	// CountAlltoall uses one all to all exchange of the count vectors.
	CountAlltoall
)

var CountExchangeNames = map[string]CountExchange{
	"window":   CountWindow,
	"alltoall": CountAlltoall,
}

func (ce CountExchange) String() string {
	if ce == CountAlltoall {
		return "alltoall"
	}
	return "window"
}

// SpatialLayout keeps every particle of a Base on the rank whose region
// contains it.
type SpatialLayout struct {
	comm      *comm.Communicator
	rlayout   *region.RegionLayout
	BCs       BCs
	Policy    LocatePolicy
	Counts    CountExchange
	Verify    bool // Check the local region after every round
	Strict    bool // Return ErrConsistency from a failed check
	ProcLimit int
	Timers    utils.TimerSink
	Logger    *log.Logger
}

type Option func(sl *SpatialLayout)

func WithBCs(bcs BCs) Option { return func(sl *SpatialLayout) { sl.BCs = bcs } }

func WithLocatePolicy(lp LocatePolicy) Option {
	return func(sl *SpatialLayout) { sl.Policy = lp }
}

func WithCountExchange(ce CountExchange) Option {
	return func(sl *SpatialLayout) { sl.Counts = ce }
}

func WithVerify(verify, strict bool) Option {
	return func(sl *SpatialLayout) { sl.Verify, sl.Strict = verify, strict }
}

func WithTimers(ts utils.TimerSink) Option {
	return func(sl *SpatialLayout) { sl.Timers = ts }
}

func WithLogger(l *log.Logger) Option { return func(sl *SpatialLayout) { sl.Logger = l } }

func WithProcLimit(n int) Option { return func(sl *SpatialLayout) { sl.ProcLimit = n } }

// NewSpatialLayout builds the region table of layout on mesh. Defaults are
// periodic faces, LocateFail, window count exchange and verification on.
func NewSpatialLayout(layout *field.Layout, mesh *field.Mesh, opts ...Option) (sl *SpatialLayout, err error) {
	var rl *region.RegionLayout
	if rl, err = region.NewRegionLayout(layout, mesh); err != nil {
		return
	}
	sl = &SpatialLayout{
		comm:    layout.Comm(),
		rlayout: rl,
		BCs:     UniformBCs(types.BC_Periodic),
		Verify:  true,
		Timers:  utils.NopTimers{},
	}
	for _, opt := range opts {
		opt(sl)
	}
	if sl.Logger == nil {
		sl.Logger = log.Default()
	}
	return
}

func (sl *SpatialLayout) RegionLayout() *region.RegionLayout { return sl.rlayout }

// LocateParticles finds the destination rank of every particle of p. The
// first region in rank order that contains the position wins, so a particle
// on a shared face goes to the lower rank. invalid[i] is set when the
// destination is not this rank. Unmatched particles are handled per Policy
// and counted in misses.
func (sl *SpatialLayout) LocateParticles(p *Base) (ranks []int, invalid []bool, misses int, err error) {
	var (
		n      = p.LocalNum()
		myRank = sl.comm.Rank()
		R      = p.R.Data
	)
	ranks, invalid = make([]int, n), make([]bool, n)
	misses = utils.ParallelReduceInt(sl.ProcLimit, n, func(kMin, kMax int) (miss int) {
		for i := kMin; i < kMax; i++ {
			r := sl.rlayout.Find(R[i])
			if r < 0 {
				miss++
				switch sl.Policy {
				case LocateNearest:
					r = sl.rlayout.Nearest(R[i])
					R[i] = sl.rlayout.RegionFor(r).Clamp(R[i])
				default:
					r = myRank
				}
			}
			ranks[i] = r
			invalid[i] = r != myRank
		}
		return
	})
	if misses > 0 {
		switch sl.Policy {
		case LocateFail:
			err = fmt.Errorf("%w: %d particles on rank %d", ErrLocateMiss, misses, myRank)
		case LocateKeep:
			sl.Logger.Printf("rank %d: %d particles outside every region kept local", myRank, misses)
		}
	}
	return
}

// NumberOfSends counts the particles destined for rank.
func (sl *SpatialLayout) NumberOfSends(rank int, ranks []int) int {
	return utils.ParallelReduceInt(sl.ProcLimit, len(ranks), func(kMin, kMax int) (num int) {
		for i := kMin; i < kMax; i++ {
			if ranks[i] == rank {
				num++
			}
		}
		return
	})
}

// SendCounts is NumberOfSends for every rank, zero for this rank.
func (sl *SpatialLayout) SendCounts(ranks []int) (nSends []int) {
	nSends = make([]int, sl.comm.Size())
	for r := range nSends {
		if r != sl.comm.Rank() {
			nSends[r] = sl.NumberOfSends(r, ranks)
		}
	}
	return
}

// FillHash lists the indices of the particles destined for rank in
// increasing order, from an exclusive prefix sum over the classification.
func (sl *SpatialLayout) FillHash(rank int, ranks []int) (hash []int) {
	hash = make([]int, sl.NumberOfSends(rank, ranks))
	utils.ExclusiveScan(sl.ProcLimit, len(ranks),
		func(i int) bool { return ranks[i] == rank },
		func(i, pos int) { hash[pos] = i })
	return
}

// Update applies the boundary conditions and moves every particle of p to
// the rank whose region contains it. All ranks must call Update together.
func (sl *SpatialLayout) Update(p *Base) (err error) {
	var (
		c      = sl.comm
		nRanks = c.Size()
		myRank = c.Rank()
		ts     = sl.Timers
	)
	ts.Start("ParticleBC")
	sl.BCs.Apply(p.R.Data, sl.rlayout.Domain(), sl.ProcLimit)
	ts.Stop("ParticleBC")
	if nRanks < 2 {
		return
	}
	ts.Start("ParticleUpdate")
	defer ts.Stop("ParticleUpdate")

	ts.Start("locateParticles")
	ranks, invalid, _, err := sl.LocateParticles(p)
	ts.Stop("locateParticles")
	if err != nil {
		c.Abort(err)
		return
	}
	if sl.Verify && !sl.stayersLocal(p, invalid) {
		sl.Logger.Printf("rank %d: located particles invalid after locate", myRank)
	}

	ts.Start("SendPreprocess")
	nSends := sl.SendCounts(ranks)
	nRecvs, err := sl.exchangeCounts(nSends)
	ts.Stop("SendPreprocess")
	if err != nil {
		return
	}

	ts.Start("ParticleSend")
	tag := c.NextTag(comm.ParticleSpatialLayoutTag, comm.ParticleLayoutCycle)
	reqs, err := sl.sendParticles(p, nSends, ranks, tag)
	ts.Stop("ParticleSend")
	if err != nil {
		c.Abort(err)
		return
	}

	ts.Start("ParticleDestroy")
	invalidCount := utils.ParallelReduceInt(sl.ProcLimit, len(invalid), func(kMin, kMax int) (n int) {
		for i := kMin; i < kMax; i++ {
			if invalid[i] {
				p.ID.Data[i] = InvalidID
				n++
			}
		}
		return
	})
	err = p.Destroy(invalid, invalidCount)
	ts.Stop("ParticleDestroy")
	if err != nil {
		c.Abort(err)
		return
	}

	ts.Start("ParticleRecv")
	err = sl.recvParticles(p, nRecvs, tag)
	ts.Stop("ParticleRecv")
	if err != nil {
		c.Abort(err)
		return
	}

	ts.Start("ParticleSend")
	defer ts.Stop("ParticleSend")
	if err = c.Waitall(reqs); err != nil {
		return
	}
	if !sl.Verify {
		return
	}
	if err = c.Barrier(); err != nil {
		return
	}
	if !sl.allLocal(p) {
		sl.Logger.Printf("rank %d: located particles invalid after receive", myRank)
		if sl.Strict {
			err = fmt.Errorf("%w: rank %d after receive", ErrConsistency, myRank)
		}
	}
	return
}

// sendParticles packs and posts one message per destination with a non zero
// send count.
func (sl *SpatialLayout) sendParticles(p *Base, nSends, ranks []int, tag int) (reqs []*comm.Request, err error) {
	c := sl.comm
	sends := 0
	for rank := 0; rank < c.Size(); rank++ {
		if nSends[rank] == 0 {
			continue
		}
		hash := sl.FillHash(rank, ranks)
		size := p.PackedSize(nSends[rank])
		if size > c.MaxMessageSize() {
			err = fmt.Errorf("%w: %d particles (%d bytes) from rank %d to rank %d",
				comm.ErrMessageTooLarge, nSends[rank], size, c.Rank(), rank)
			return
		}
		buf := c.Buffer(comm.ParticleSendBuffer+sends, size)
		if buf, err = p.Pack(buf[:0], hash); err != nil {
			return
		}
		var req *comm.Request
		if req, err = c.Isend(rank, tag, buf); err != nil {
			return
		}
		reqs = append(reqs, req)
		sends++
	}
	return
}

// recvParticles receives and appends the incoming particles in rank order.
func (sl *SpatialLayout) recvParticles(p *Base, nRecvs []int, tag int) (err error) {
	c := sl.comm
	recvs := 0
	for rank := 0; rank < c.Size(); rank++ {
		if nRecvs[rank] == 0 {
			continue
		}
		size := p.PackedSize(nRecvs[rank])
		if size > c.MaxMessageSize() {
			return fmt.Errorf("%w: %d particles (%d bytes) from rank %d to rank %d",
				comm.ErrMessageTooLarge, nRecvs[rank], size, rank, c.Rank())
		}
		buf := c.Buffer(comm.ParticleRecvBuffer+recvs, size)
		if err = c.Recv(rank, tag, buf); err != nil {
			return
		}
		if err = p.Unpack(buf, nRecvs[rank]); err != nil {
			return
		}
		recvs++
	}
	return
}

// exchangeCounts returns nRecvs[r], the number of particles rank r sends to
// this rank.
func (sl *SpatialLayout) exchangeCounts(nSends []int) (nRecvs []int, err error) {
	var (
		c      = sl.comm
		counts []int64
	)
	switch sl.Counts {
	case CountAlltoall:
		send := make([]int64, len(nSends))
		for r, n := range nSends {
			send[r] = int64(n)
		}
		if counts, err = c.Alltoall(send); err != nil {
			return
		}
	default:
		var win *comm.Window
		if win, err = c.NewWindow(c.Size()); err != nil {
			return
		}
		defer win.Free()
		if err = win.Fence(); err != nil {
			return
		}
		for r, n := range nSends {
			if r == c.Rank() {
				continue
			}
			if err = win.Put(int64(n), r, c.Rank()); err != nil {
				c.Abort(err)
				return
			}
		}
		if err = win.Fence(); err != nil {
			return
		}
		counts = win.Local()
	}
	nRecvs = make([]int, len(counts))
	for r, n := range counts {
		nRecvs[r] = int(n)
	}
	return
}

func (sl *SpatialLayout) stayersLocal(p *Base, invalid []bool) bool {
	reg := sl.rlayout.RegionFor(sl.comm.Rank())
	R := p.R.Data
	return utils.ParallelAll(sl.ProcLimit, len(invalid), func(i int) bool {
		return invalid[i] || reg.Contains(R[i])
	})
}

func (sl *SpatialLayout) allLocal(p *Base) bool {
	reg := sl.rlayout.RegionFor(sl.comm.Rank())
	R := p.R.Data
	return utils.ParallelAll(sl.ProcLimit, p.LocalNum(), func(i int) bool {
		return reg.Contains(R[i])
	})
}

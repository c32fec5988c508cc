package fft

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/notargets/gopic/comm"
	"github.com/notargets/gopic/field"
	"github.com/notargets/gopic/utils"
)

// Engine transforms a distributed box. in and out hold the local input and
// output boxes contiguously with axis 0 fastest; real data travels in the
// real part of complex elements. work must hold at least WorkspaceSize
// elements.
type Engine interface {
	Forward(in, out, work []complex128, scale Scale) error
	Backward(in, out, work []complex128, scale Scale) error
	WorkspaceSize() int
}

// BoxEngine reshapes the boxes of all ranks into the global array, runs the
// separable one dimensional transforms of its Kind axis by axis and keeps
// the local output box.
type BoxEngine struct {
	comm     *comm.Communicator
	kind     Kind
	params   Params
	r2cAxis  int
	dim      int
	inBoxes  []field.NDIndex // Per rank
	outBoxes []field.NDIndex
	inDom    field.NDIndex
	outDom   field.NDIndex
	maxLine  int
}

// NewBoxEngine takes the input and output box of every rank. For RC the
// output domain has n/2+1 points along r2cAxis, otherwise both domains are
// the same.
func NewBoxEngine(c *comm.Communicator, kind Kind, inBoxes, outBoxes []field.NDIndex,
	params Params) (e *BoxEngine, err error) {
	if len(inBoxes) != c.Size() || len(outBoxes) != c.Size() {
		err = fmt.Errorf("need one box per rank, have %d in and %d out boxes for %d ranks",
			len(inBoxes), len(outBoxes), c.Size())
		return
	}
	if params, err = params.resolve(); err != nil {
		c.Abort(err)
		return
	}
	e = &BoxEngine{
		comm:     c,
		kind:     kind,
		params:   params,
		r2cAxis:  params.R2CDirection,
		dim:      inBoxes[0].Dim(),
		inBoxes:  inBoxes,
		outBoxes: outBoxes,
		inDom:    boundingBox(inBoxes),
		outDom:   boundingBox(outBoxes),
	}
	inN, outN := e.inDom.Lengths(), e.outDom.Lengths()
	for d := 0; d < e.dim; d++ {
		e.maxLine = max(e.maxLine, inN[d], outN[d])
		want := inN[d]
		if kind == RC && d == e.r2cAxis {
			want = inN[d]/2 + 1
		}
		if outN[d] != want {
			if kind == RC {
				err = fmt.Errorf("%w: axis %d has %d input and %d output points, r2c axis %d",
					ErrR2CAxis, d, inN[d], outN[d], e.r2cAxis)
			} else {
				err = fmt.Errorf("%w: input %v and output %v domains differ",
					field.ErrShapeMismatch, e.inDom, e.outDom)
			}
			return nil, err
		}
		if kind == Cosine && inN[d] < 2 {
			return nil, fmt.Errorf("%w: cosine transform needs two points along axis %d",
				field.ErrShapeMismatch, d)
		}
	}
	if kind == RC && (e.r2cAxis < 0 || e.r2cAxis >= e.dim) {
		return nil, fmt.Errorf("%w: axis %d of a %d dimensional box", ErrR2CAxis, e.r2cAxis, e.dim)
	}
	return
}

func boundingBox(boxes []field.NDIndex) (dom field.NDIndex) {
	dom = append(field.NDIndex(nil), boxes[0]...)
	for _, b := range boxes[1:] {
		for d := range dom {
			dom[d].First = min(dom[d].First, b[d].First)
			dom[d].Last = max(dom[d].Last, b[d].Last)
		}
	}
	return
}

func (e *BoxEngine) Kind() Kind { return e.kind }

func (e *BoxEngine) globalSize() int {
	return max(e.inDom.Size(), e.outDom.Size())
}

// WorkspaceSize is two global arrays plus two line buffers per worker.
func (e *BoxEngine) WorkspaceSize() int {
	return 2*e.globalSize() + 2*e.maxLine*e.workers()
}

func (e *BoxEngine) workers() int {
	if e.params.UseReorder {
		return utils.ParallelDegree(0, e.globalSize())
	}
	return 1
}

// Normalization is the factor a forward followed by a backward transform
// multiplies the data by.
func (e *BoxEngine) Normalization() (n float64) {
	n = 1
	for _, nd := range e.inDom.Lengths() {
		switch e.kind {
		case Sine:
			n *= float64(2 * (nd + 1))
		case Cosine:
			n *= float64(2 * (nd - 1))
		default:
			n *= float64(nd)
		}
	}
	return
}

func (e *BoxEngine) Forward(in, out, work []complex128, scale Scale) error {
	return e.transform(1, in, out, work, scale)
}

func (e *BoxEngine) Backward(in, out, work []complex128, scale Scale) error {
	return e.transform(-1, in, out, work, scale)
}

func (e *BoxEngine) transform(direction int, in, out, work []complex128, scale Scale) (err error) {
	var (
		me             = e.comm.Rank()
		srcBoxes       = e.inBoxes
		dstBoxes       = e.outBoxes
		srcDom, dstDom = e.inDom, e.outDom
	)
	if direction < 0 {
		srcBoxes, dstBoxes = e.outBoxes, e.inBoxes
		srcDom, dstDom = e.outDom, e.inDom
	}
	if len(work) < e.WorkspaceSize() {
		return fmt.Errorf("%w: have %d, need %d", ErrWorkspace, len(work), e.WorkspaceSize())
	}
	if len(in) != srcBoxes[me].Size() || len(out) != dstBoxes[me].Size() {
		return fmt.Errorf("%w: local boxes hold %d and %d points, buffers %d and %d",
			field.ErrShapeMismatch, srcBoxes[me].Size(), dstBoxes[me].Size(), len(in), len(out))
	}
	G := e.globalSize()
	a, b, lines := work[:G], work[G:2*G], work[2*G:]
	if err = e.gather(in, srcBoxes, srcDom, a[:srcDom.Size()]); err != nil {
		return
	}
	var res []complex128
	if res, err = e.execute(direction, a, b, lines, srcDom.Lengths(), dstDom.Lengths()); err != nil {
		return
	}
	res = res[:dstDom.Size()]
	switch scale {
	case ScaleFull:
		scaleBy(res, 1/e.Normalization())
	case ScaleSymmetric:
		scaleBy(res, 1/math.Sqrt(e.Normalization()))
	}
	extract(res, dstDom, dstBoxes[me], out)
	return
}

func scaleBy(x []complex128, s float64) {
	for i := range x {
		x[i] *= complex(s, 0)
	}
}

// gather assembles the global array on every rank from the boxes of all
// ranks using the configured algorithm.
func (e *BoxEngine) gather(local []complex128, boxes []field.NDIndex, dom field.NDIndex,
	global []complex128) (err error) {
	var (
		c  = e.comm
		me = c.Rank()
	)
	place(local, boxes[me], dom, global)
	if c.Size() == 1 {
		return
	}
	payload := c.Buffer(comm.FFTSendBuffer, 16*len(local))
	if _, err = binary.Encode(payload, binary.LittleEndian, local); err != nil {
		return
	}
	recvBox := func(r int, buf []byte) error {
		vals := make([]complex128, boxes[r].Size())
		if _, err := binary.Decode(buf, binary.LittleEndian, vals); err != nil {
			return err
		}
		place(vals, boxes[r], dom, global)
		return nil
	}
	switch e.params.Comm {
	case CommA2A, CommA2AV:
		var all [][]byte
		if all, err = c.Allgather(payload); err != nil {
			return
		}
		for r, buf := range all {
			if r == me {
				continue
			}
			if len(buf) != 16*boxes[r].Size() {
				return fmt.Errorf("%w: box of rank %d", comm.ErrSizeMismatch, r)
			}
			if err = recvBox(r, buf); err != nil {
				return
			}
		}
	case CommP2P, CommP2PPL:
		var (
			tag  = c.NextTag(comm.FFTReshapeTag, comm.FFTCycle)
			reqs []*comm.Request
		)
		for s := 1; s < c.Size(); s++ {
			dest, src := (me+s)%c.Size(), (me-s+c.Size())%c.Size()
			var req *comm.Request
			if req, err = c.Isend(dest, tag, payload); err != nil {
				return
			}
			reqs = append(reqs, req)
			if e.params.Comm == CommP2PPL {
				if err = e.recvFrom(src, tag, boxes, recvBox); err != nil {
					return
				}
			}
		}
		if e.params.Comm == CommP2P {
			for src := 0; src < c.Size(); src++ {
				if src == me {
					continue
				}
				if err = e.recvFrom(src, tag, boxes, recvBox); err != nil {
					return
				}
			}
		}
		err = c.Waitall(reqs)
	}
	return
}

func (e *BoxEngine) recvFrom(src, tag int, boxes []field.NDIndex,
	recvBox func(r int, buf []byte) error) error {
	buf := e.comm.Buffer(comm.FFTRecvBuffer, 16*boxes[src].Size())
	if err := e.comm.Recv(src, tag, buf); err != nil {
		return err
	}
	return recvBox(src, buf)
}

// forEachBox visits the points of box in storage order with their offset
// in the global array of dom.
func forEachBox(box, dom field.NDIndex, fn func(k, g int)) {
	var (
		lo, hi, stride [comm.MaxDim]int
		n              = 1
	)
	for d := 0; d < comm.MaxDim; d++ {
		hi[d] = 1
		stride[d] = n
		if d < box.Dim() {
			lo[d] = box[d].First - dom[d].First
			hi[d] = box[d].Last - dom[d].First + 1
			n *= dom[d].Length()
		}
	}
	k := 0
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			for x := lo[0]; x < hi[0]; x++ {
				fn(k, x*stride[0]+y*stride[1]+z*stride[2])
				k++
			}
		}
	}
}

func place(local []complex128, box, dom field.NDIndex, global []complex128) {
	forEachBox(box, dom, func(k, g int) { global[g] = local[k] })
}

func extract(global []complex128, dom, box field.NDIndex, local []complex128) {
	forEachBox(box, dom, func(k, g int) { local[k] = global[g] })
}

// execute runs the one dimensional transforms over every axis. The data
// starts in a, shaped src, and the returned slice (a or b) is shaped dst.
func (e *BoxEngine) execute(direction int, a, b, lines []complex128, src, dst []int) (res []complex128, err error) {
	shape := append([]int(nil), src...)
	cur, next := a, b
	for i := 0; i < e.dim; i++ {
		axis := i
		if e.kind == RC {
			axis = e.rcOrder(direction)[i]
		}
		outShape := append([]int(nil), shape...)
		outShape[axis] = dst[axis]
		if err = e.axisStage(direction, axis, cur, next, lines, shape, outShape); err != nil {
			return
		}
		cur, next = next, cur
		shape = outShape
	}
	return cur, nil
}

// rcOrder puts the r2c axis first going forward and last going backward.
func (e *BoxEngine) rcOrder(direction int) (order []int) {
	if direction > 0 {
		order = append(order, e.r2cAxis)
	}
	for d := 0; d < e.dim; d++ {
		if d != e.r2cAxis {
			order = append(order, d)
		}
	}
	if direction < 0 {
		order = append(order, e.r2cAxis)
	}
	return
}

type lineGeom struct {
	inner, nIn, nOut, count int
}

func newLineGeom(axis int, in, out []int) (g lineGeom) {
	g.inner = 1
	for d := 0; d < axis; d++ {
		g.inner *= in[d]
	}
	g.nIn, g.nOut = in[axis], out[axis]
	g.count = 1
	for d := range in {
		if d != axis {
			g.count *= in[d]
		}
	}
	return
}

func (g lineGeom) bases(l int) (inBase, outBase int) {
	lo, hi := l%g.inner, l/g.inner
	return lo + hi*g.inner*g.nIn, lo + hi*g.inner*g.nOut
}

// axisStage transforms every line along axis from cur into next. With
// UsePencils each rank handles its share of the lines and the shares are
// all gathered afterwards.
func (e *BoxEngine) axisStage(direction, axis int, cur, next, lines []complex128,
	inShape, outShape []int) (err error) {
	var (
		g          = newLineGeom(axis, inShape, outShape)
		lMin, lMax = 0, g.count
		pm         *utils.PartitionMap
	)
	if e.params.UsePencils && e.comm.Size() > 1 {
		pm = utils.NewPartitionMap(min(e.comm.Size(), g.count), g.count)
		lMin, lMax = 0, 0
		if e.comm.Rank() < pm.ParallelDegree {
			lMin, lMax = pm.GetBucketRange(e.comm.Rank())
		}
	}
	np := e.workers()
	utils.ParallelFor(np, lMax-lMin, func(w, kMin, kMax int) {
		buf := lines[2*e.maxLine*w : 2*e.maxLine*(w+1)]
		tr := e.newLineTransform(direction, axis, g.nIn, g.nOut)
		for l := lMin + kMin; l < lMin+kMax; l++ {
			ib, ob := g.bases(l)
			src, dst := buf[:g.nIn], buf[e.maxLine:e.maxLine+g.nOut]
			for j := range src {
				src[j] = cur[ib+j*g.inner]
			}
			tr(dst, src)
			for j := range dst {
				next[ob+j*g.inner] = dst[j]
			}
		}
	})
	if pm != nil {
		err = e.shareLines(pm, g, next)
	}
	return
}

// shareLines all gathers the output lines computed by each rank.
func (e *BoxEngine) shareLines(pm *utils.PartitionMap, g lineGeom, next []complex128) (err error) {
	var (
		c          = e.comm
		lMin, lMax int
		vals       []complex128
		all        [][]byte
	)
	if c.Rank() < pm.ParallelDegree {
		lMin, lMax = pm.GetBucketRange(c.Rank())
	}
	for l := lMin; l < lMax; l++ {
		_, ob := g.bases(l)
		for j := 0; j < g.nOut; j++ {
			vals = append(vals, next[ob+j*g.inner])
		}
	}
	payload := make([]byte, 16*len(vals))
	if _, err = binary.Encode(payload, binary.LittleEndian, vals); err != nil {
		return
	}
	if all, err = c.Allgather(payload); err != nil {
		return
	}
	for r, buf := range all {
		if r == c.Rank() || r >= pm.ParallelDegree {
			continue
		}
		kMin, kMax := pm.GetBucketRange(r)
		vals = make([]complex128, (kMax-kMin)*g.nOut)
		if _, err = binary.Decode(buf, binary.LittleEndian, vals); err != nil {
			return
		}
		n := 0
		for l := kMin; l < kMax; l++ {
			_, ob := g.bases(l)
			for j := 0; j < g.nOut; j++ {
				next[ob+j*g.inner] = vals[n]
				n++
			}
		}
	}
	return
}

// newLineTransform returns the one dimensional transform of the kind for a
// single worker. Real kinds read and write real parts.
func (e *BoxEngine) newLineTransform(direction, axis, nIn, nOut int) func(dst, src []complex128) {
	switch {
	case e.kind == CC || (e.kind == RC && axis != e.r2cAxis):
		t := fourier.NewCmplxFFT(nIn)
		if direction > 0 {
			return func(dst, src []complex128) { t.Coefficients(dst, src) }
		}
		return func(dst, src []complex128) { t.Sequence(dst, src) }
	case e.kind == RC && direction > 0:
		t := fourier.NewFFT(nIn)
		re := make([]float64, nIn)
		return func(dst, src []complex128) {
			for j := range src {
				re[j] = real(src[j])
			}
			t.Coefficients(dst, re)
		}
	case e.kind == RC:
		t := fourier.NewFFT(nOut)
		re := make([]float64, nOut)
		return func(dst, src []complex128) {
			t.Sequence(re, src)
			for j := range dst {
				dst[j] = complex(re[j], 0)
			}
		}
	case e.kind == Sine:
		t := fourier.NewDST(nIn)
		return realLine(nIn, t.Transform)
	default:
		t := fourier.NewDCT(nIn)
		return realLine(nIn, t.Transform)
	}
}

func realLine(n int, tr func(dst, src []float64) []float64) func(dst, src []complex128) {
	in, out := make([]float64, n), make([]float64, n)
	return func(dst, src []complex128) {
		for j := range src {
			in[j] = real(src[j])
		}
		tr(out, in)
		for j := range dst {
			dst[j] = complex(out[j], 0)
		}
	}
}

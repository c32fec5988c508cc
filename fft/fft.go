package fft

import (
	"fmt"

	"github.com/notargets/gopic/field"
)

// FFT transforms distributed fields of one layout (two for RC) with a
// BoxEngine. Forward transforms apply full scaling and backward transforms
// none, so a forward and backward pair restores the input. Ghost layers of
// the result are left stale.
type FFT struct {
	kind      Kind
	params    Params
	layoutIn  *field.Layout
	layoutOut *field.Layout
	engine    Engine
	work      []complex128
	tmpIn     []complex128
	tmpOut    []complex128
}

// NewFFT sets up a CC, Sine or Cosine transform on layout. Collective.
func NewFFT(kind Kind, layout *field.Layout, params Params) (f *FFT, err error) {
	if kind == RC {
		return nil, fmt.Errorf("%w: real to complex transforms need NewRCFFT", ErrKind)
	}
	return newFFT(kind, layout, layout, params)
}

// NewRCFFT sets up a real to complex transform from layoutIn to layoutOut.
// layoutOut must have n/2+1 points along params.R2CDirection.
func NewRCFFT(layoutIn, layoutOut *field.Layout, params Params) (f *FFT, err error) {
	if layoutIn.Dim() != layoutOut.Dim() {
		return nil, fmt.Errorf("%w: layouts of dimension %d and %d",
			ErrR2CAxis, layoutIn.Dim(), layoutOut.Dim())
	}
	return newFFT(RC, layoutIn, layoutOut, params)
}

func newFFT(kind Kind, layoutIn, layoutOut *field.Layout, params Params) (f *FFT, err error) {
	var e *BoxEngine
	if e, err = NewBoxEngine(layoutIn.Comm(), kind,
		layoutIn.HostLocalDomains(), layoutOut.HostLocalDomains(), params); err != nil {
		return
	}
	f = &FFT{
		kind:      kind,
		params:    e.params,
		layoutIn:  layoutIn,
		layoutOut: layoutOut,
		engine:    e,
		work:      make([]complex128, e.WorkspaceSize()),
		tmpIn:     make([]complex128, layoutIn.LocalNDIndex().Size()),
		tmpOut:    make([]complex128, layoutOut.LocalNDIndex().Size()),
	}
	return
}

func (f *FFT) Kind() Kind { return f.kind }

func (f *FFT) Params() Params { return f.params }

func (f *FFT) Engine() Engine { return f.engine }

func (f *FFT) checkKind(kind Kind) error {
	if f.kind != kind {
		return fmt.Errorf("%w: %v transform called on a %v setup", ErrKind, kind, f.kind)
	}
	return nil
}

// checkDirection fails the whole world on a bad flag; the peers would
// otherwise wait in the gather of the transform.
func (f *FFT) checkDirection(direction int) (err error) {
	if direction != 1 && direction != -1 {
		err = fmt.Errorf("%w: have %d", ErrInvalidDirection, direction)
		f.layoutIn.Comm().Abort(err)
	}
	return
}

func checkLayout[T field.Number](fld *field.Field[T], layout *field.Layout) error {
	if !fld.Layout().LocalNDIndex().Equal(layout.LocalNDIndex()) ||
		!fld.Layout().Domain().Equal(layout.Domain()) {
		return fmt.Errorf("%w: field domain %v, transform domain %v",
			field.ErrShapeMismatch, fld.Layout().Domain(), layout.Domain())
	}
	return nil
}

func (f *FFT) run(direction int) error {
	if direction == 1 {
		return f.engine.Forward(f.tmpIn, f.tmpOut, f.work, ScaleFull)
	}
	return f.engine.Backward(f.tmpOut, f.tmpIn, f.work, ScaleNone)
}

// TransformCC transforms fld in place.
func (f *FFT) TransformCC(direction int, fld *field.Field[complex128]) (err error) {
	if err = f.checkKind(CC); err != nil {
		return
	}
	if err = f.checkDirection(direction); err != nil {
		return
	}
	if err = checkLayout(fld, f.layoutIn); err != nil {
		return
	}
	buf := f.tmpIn
	if direction < 0 {
		buf = f.tmpOut
	}
	if err = fld.CopyInterior(buf); err != nil {
		return
	}
	if err = f.run(direction); err != nil {
		return
	}
	if direction > 0 {
		return fld.SetInterior(f.tmpOut)
	}
	return fld.SetInterior(f.tmpIn)
}

// TransformReal applies the Sine or Cosine transform to fld in place.
func (f *FFT) TransformReal(direction int, fld *field.Field[float64]) (err error) {
	if f.kind != Sine && f.kind != Cosine {
		return fmt.Errorf("%w: real transform called on a %v setup", ErrKind, f.kind)
	}
	if err = f.checkDirection(direction); err != nil {
		return
	}
	if err = checkLayout(fld, f.layoutIn); err != nil {
		return
	}
	buf := f.tmpIn
	if direction < 0 {
		buf = f.tmpOut
	}
	if err = copyRealIn(fld, buf); err != nil {
		return
	}
	if err = f.run(direction); err != nil {
		return
	}
	if direction > 0 {
		return copyRealOut(f.tmpOut, fld)
	}
	return copyRealOut(f.tmpIn, fld)
}

// TransformRC goes from the real field fr to the complex field fc for
// direction 1 and back for -1.
func (f *FFT) TransformRC(direction int, fr *field.Field[float64], fc *field.Field[complex128]) (err error) {
	if err = f.checkKind(RC); err != nil {
		return
	}
	if err = f.checkDirection(direction); err != nil {
		return
	}
	if err = checkLayout(fr, f.layoutIn); err != nil {
		return fmt.Errorf("%w: real field: %w", ErrR2CAxis, err)
	}
	if err = checkLayout(fc, f.layoutOut); err != nil {
		return fmt.Errorf("%w: complex field: %w", ErrR2CAxis, err)
	}
	if direction > 0 {
		if err = copyRealIn(fr, f.tmpIn); err != nil {
			return
		}
		if err = f.run(1); err != nil {
			return
		}
		return fc.SetInterior(f.tmpOut)
	}
	if err = fc.CopyInterior(f.tmpOut); err != nil {
		return
	}
	if err = f.run(-1); err != nil {
		return
	}
	return copyRealOut(f.tmpIn, fr)
}

func copyRealIn(fld *field.Field[float64], buf []complex128) error {
	re := make([]float64, len(buf))
	if err := fld.CopyInterior(re); err != nil {
		return err
	}
	for i, v := range re {
		buf[i] = complex(v, 0)
	}
	return nil
}

func copyRealOut(buf []complex128, fld *field.Field[float64]) error {
	re := make([]float64, len(buf))
	for i, v := range buf {
		re[i] = real(v)
	}
	return fld.SetInterior(re)
}

// Package fft runs global multidimensional transforms on distributed
// fields. The adapter (FFT) copies the ghost free interior of a field into a
// contiguous box, hands it to an Engine and copies the result back.
package fft

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDirection     = errors.New("transform direction must be 1 (forward) or -1 (backward)")
	ErrUnknownCommAlgorithm = errors.New("unknown transform communication algorithm")
	ErrR2CAxis              = errors.New("inconsistent real to complex axis")
	ErrWorkspace            = errors.New("transform workspace too small")
	ErrKind                 = errors.New("transform kind does not match")
)

// Kind selects the transform of a distributed box.
type Kind uint8

const (
	CC     Kind = iota // Complex to complex
	RC                 // Real to complex along the r2c axis, complex elsewhere
	Sine               // DST-I along every axis
	Cosine             // DCT-I along every axis
)

func (k Kind) String() string {
	switch k {
	case CC:
		return "CC"
	case RC:
		return "RC"
	case Sine:
		return "Sine"
	case Cosine:
		return "Cosine"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Scale is the normalization an engine applies to its result.
type Scale uint8

const (
	ScaleNone Scale = iota
	ScaleFull       // Divide by the transform size
	ScaleSymmetric  // Divide by its square root
)

// Communication algorithms used to reshape the boxes of all ranks.
const (
	CommA2A   = "a2a"    // All gather into every rank
	CommA2AV  = "a2av"   // Same, variable box sizes
	CommP2P   = "p2p"    // Point to point, all sends posted first
	CommP2PPL = "p2p_pl" // Pairwise point to point, one peer per step
)

// Params are the tuning switches of a transform.
type Params struct {
	UseDefaults  bool   `yaml:"UseDefaults"`
	UsePencils   bool   `yaml:"UsePencils"`   // Split the line transforms of each axis over the ranks
	UseReorder   bool   `yaml:"UseReorder"`   // Transform lines on parallel workers
	Comm         string `yaml:"Comm"`         // One of CommA2A, CommA2AV, CommP2P, CommP2PPL
	R2CDirection int    `yaml:"R2CDirection"` // Axis of the real to complex transform
}

// DefaultParams are used whenever UseDefaults is set.
func DefaultParams() Params {
	return Params{
		UseDefaults: true,
		UsePencils:  false,
		UseReorder:  true,
		Comm:        CommA2AV,
	}
}

// resolve applies the defaults and validates the selector.
func (p Params) resolve() (res Params, err error) {
	res = p
	if p.UseDefaults {
		res = DefaultParams()
		res.R2CDirection = p.R2CDirection
	}
	switch res.Comm {
	case CommA2A, CommA2AV, CommP2P, CommP2PPL:
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommAlgorithm, res.Comm)
	}
	return
}

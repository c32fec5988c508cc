package types

import (
	"fmt"
	"strings"
)

// BCFLAG selects what happens to a particle that leaves the global domain
// through one face.
type BCFLAG uint8

const (
	BC_Periodic BCFLAG = iota
	BC_Reflective
	BC_Sink
	BC_None
)

var BCNameMap = map[string]BCFLAG{
	"periodic":   BC_Periodic,
	"reflective": BC_Reflective,
	"reflect":    BC_Reflective,
	"sink":       BC_Sink,
	"none":       BC_None,
	"no":         BC_None,
}

func (bc BCFLAG) String() string {
	switch bc {
	case BC_Periodic:
		return "Periodic"
	case BC_Reflective:
		return "Reflective"
	case BC_Sink:
		return "Sink"
	case BC_None:
		return "None"
	}
	return fmt.Sprintf("BCFLAG(%d)", uint8(bc))
}

func NewBCFLAG(label string) (bc BCFLAG, err error) {
	var ok bool
	if bc, ok = BCNameMap[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("unknown boundary condition %q", label)
	}
	return
}

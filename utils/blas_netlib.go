//go:build cgo && netlib
// +build cgo,netlib

package utils

import (
	"log"

	"gonum.org/v1/gonum/blas/blas64"
	netblas "gonum.org/v1/netlib/blas/netlib"
)

// Built with -tags netlib (and CGO_LDFLAGS pointing at a CBLAS), the gonum
// mat vector updates of the solver residual check run on the native BLAS.
func init() {
	blas64.Use(netblas.Implementation{})
	log.Println("Using netlib to accelerate BLAS")
}

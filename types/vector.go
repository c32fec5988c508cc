package types

import "math"

// Vector is a point or displacement in up to three dimensions. Lower
// dimensional layouts leave the trailing components at zero.
type Vector [3]float64

func (v Vector) Add(w Vector) (r Vector) {
	for d := range v {
		r[d] = v[d] + w[d]
	}
	return
}

func (v Vector) Sub(w Vector) (r Vector) {
	for d := range v {
		r[d] = v[d] - w[d]
	}
	return
}

func (v Vector) Scale(a float64) (r Vector) {
	for d := range v {
		r[d] = a * v[d]
	}
	return
}

func (v Vector) Dot(w Vector) (dot float64) {
	for d := range v {
		dot += v[d] * w[d]
	}
	return
}

func (v Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

package comm

import (
	"encoding/binary"
	"fmt"
	"math"
)

type Op uint8

const (
	Sum Op = iota
	Min
	Max
)

// Allgather collects data from every rank; out[r] is a private copy of the
// bytes contributed by rank r.
func (c *Communicator) Allgather(data []byte) (out [][]byte, err error) {
	w := c.world
	w.mu.Lock()
	w.slots[c.rank] = data
	w.mu.Unlock()
	if err = c.Barrier(); err != nil {
		return
	}
	out = make([][]byte, w.size)
	w.mu.Lock()
	for r, slot := range w.slots {
		out[r] = append([]byte(nil), slot...)
	}
	w.mu.Unlock()
	// Nobody may refill the slots until every rank has copied them
	err = c.Barrier()
	return
}

// Alltoall exchanges one int64 with every rank: recv[r] on this rank is
// send[me] as contributed by rank r.
func (c *Communicator) Alltoall(send []int64) (recv []int64, err error) {
	var all [][]byte
	if len(send) != c.Size() {
		err = fmt.Errorf("alltoall needs %d values, have %d", c.Size(), len(send))
		return
	}
	buf := make([]byte, 8*len(send))
	for i, v := range send {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(v))
	}
	if all, err = c.Allgather(buf); err != nil {
		return
	}
	recv = make([]int64, c.Size())
	for r, b := range all {
		recv[r] = int64(binary.LittleEndian.Uint64(b[8*c.rank:]))
	}
	return
}

func (c *Communicator) AllreduceInt64(v int64, op Op) (res int64, err error) {
	var all [][]byte
	buf := binary.LittleEndian.AppendUint64(nil, uint64(v))
	if all, err = c.Allgather(buf); err != nil {
		return
	}
	for r, b := range all {
		x := int64(binary.LittleEndian.Uint64(b))
		if r == 0 {
			res = x
			continue
		}
		switch op {
		case Sum:
			res += x
		case Min:
			res = min(res, x)
		case Max:
			res = max(res, x)
		}
	}
	return
}

func (c *Communicator) AllreduceFloat64(v float64, op Op) (res float64, err error) {
	var all [][]byte
	buf := binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))
	if all, err = c.Allgather(buf); err != nil {
		return
	}
	for r, b := range all {
		x := math.Float64frombits(binary.LittleEndian.Uint64(b))
		if r == 0 {
			res = x
			continue
		}
		switch op {
		case Sum:
			res += x
		case Min:
			res = math.Min(res, x)
		case Max:
			res = math.Max(res, x)
		}
	}
	return
}

package particle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/DataDog/zstd"
)

var ErrSnapshot = errors.New("malformed particle snapshot")

const snapshotVersion int64 = 1

// snapshotHeader starts every snapshot, followed by the attribute names and
// one zstd block holding the packed particles.
type snapshotHeader struct {
	Version    int64
	Rank       int64
	Dim        int64
	N          int64
	NAttrib    int64
	Compressed int64
}

// WriteSnapshot writes the local particles of p to wr in the message
// layout of a redistribution round, compressed with zstd.
func WriteSnapshot(wr io.Writer, p *Base, level int) (err error) {
	hash := make([]int, p.LocalNum())
	for i := range hash {
		hash[i] = i
	}
	var raw, buf []byte
	if raw, err = p.Pack(make([]byte, 0, p.PackedSize(len(hash))), hash); err != nil {
		return
	}
	if len(raw) != 0 {
		if buf, err = zstd.CompressLevel(nil, raw, level); err != nil {
			return
		}
	}
	hdr := snapshotHeader{
		Version:    snapshotVersion,
		Rank:       int64(p.comm.Rank()),
		Dim:        int64(p.dim),
		N:          int64(len(hash)),
		NAttrib:    int64(len(p.attribs)),
		Compressed: int64(len(buf)),
	}
	if err = binary.Write(wr, binary.LittleEndian, hdr); err != nil {
		return
	}
	for _, a := range p.attribs {
		name := []byte(a.Name())
		if err = binary.Write(wr, binary.LittleEndian, int64(len(name))); err != nil {
			return
		}
		if _, err = wr.Write(name); err != nil {
			return
		}
	}
	_, err = wr.Write(buf)
	return
}

// ReadSnapshot appends the particles of a snapshot to p. The attributes of
// p must match the snapshot by name and order.
func ReadSnapshot(rd io.Reader, p *Base) (err error) {
	var hdr snapshotHeader
	if err = binary.Read(rd, binary.LittleEndian, &hdr); err != nil {
		return
	}
	if hdr.Version != snapshotVersion {
		return fmt.Errorf("%w: version %d, want %d", ErrSnapshot, hdr.Version, snapshotVersion)
	}
	if int(hdr.Dim) != p.dim || int(hdr.NAttrib) != len(p.attribs) {
		return fmt.Errorf("%w: dimension %d with %d attributes, have %d and %d",
			ErrSnapshot, hdr.Dim, hdr.NAttrib, p.dim, len(p.attribs))
	}
	for _, a := range p.attribs {
		var n int64
		if err = binary.Read(rd, binary.LittleEndian, &n); err != nil {
			return
		}
		if n != int64(len(a.Name())) {
			return fmt.Errorf("%w: attribute %s not in snapshot", ErrSnapshot, a.Name())
		}
		name := make([]byte, n)
		if _, err = io.ReadFull(rd, name); err != nil {
			return
		}
		if string(name) != a.Name() {
			return fmt.Errorf("%w: attribute %s where %s was expected", ErrSnapshot, name, a.Name())
		}
	}
	if hdr.N < 0 || hdr.Compressed < 0 {
		return fmt.Errorf("%w: negative sizes", ErrSnapshot)
	}
	if per := p.PackedSize(1); hdr.N > int64(math.MaxInt/per) {
		return fmt.Errorf("%w: %d particles of %d bytes overflow", ErrSnapshot, hdr.N, per)
	}
	if hdr.Compressed == 0 {
		return p.Unpack(nil, int(hdr.N))
	}
	// The header is not trusted with an allocation; the block grows as the
	// bytes actually arrive.
	var buf, raw []byte
	if buf, err = io.ReadAll(io.LimitReader(rd, hdr.Compressed)); err != nil {
		return
	}
	if int64(len(buf)) != hdr.Compressed {
		return fmt.Errorf("%w: block of %d bytes, header says %d", ErrSnapshot, len(buf), hdr.Compressed)
	}
	if raw, err = zstd.Decompress(nil, buf); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	return p.Unpack(raw, int(hdr.N))
}

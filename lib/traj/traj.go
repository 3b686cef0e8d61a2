/*package traj reads and writes shc's binary trajectory files. A trajectory
holds the two per-particle arrays the engine consumes each sampling step: the
full-system velocities (3N values, axis-major) and the full-system
per-particle virial (9N values, component-major). Frames can be stored raw or
as zstd-compressed blocks; the choice is recorded in the header, so readers
never need to be told.*/
package traj

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/DataDog/zstd"
)

const (
	// MagicNumber identifies shc trajectory files.
	MagicNumber uint64 = 0x5348435f54524a31
	// Version differentiates between breaking changes to the file layout.
	Version uint64 = 0x1
)

// Frame compression flags.
const (
	rawFrames int64 = iota
	zstdFrames
)

// Frame is one sampling step's worth of input: the MD step counter, the
// velocity array (3N, axis-major: all vx, all vy, all vz), and the virial
// array (9N, component-major in the order [xx yy zz xy yz zx yx zy xz]).
type Frame struct {
	Step     int64
	Velocity []float64
	Virial   []float64
}

// NewFrame creates a Frame with buffers sized for an n-particle system.
func NewFrame(n int) *Frame {
	return &Frame{
		Velocity: make([]float64, 3*n),
		Virial:   make([]float64, 9*n),
	}
}

type header struct {
	Magic, Version uint64
	N, Compression int64
}

// Writer appends frames to a trajectory stream.
type Writer struct {
	wr       io.Writer
	c        io.Closer
	n        int
	compress bool
	buf      *bytes.Buffer
}

// Create creates (or truncates) the trajectory file name for an n-particle
// system. If compress is true, frames are stored as zstd blocks.
func Create(name string, n int, compress bool) (*Writer, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("Could not create the trajectory file '%s': %s",
			name, err.Error())
	}
	w, err := NewWriter(f, n, compress)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.c = f
	return w, nil
}

// NewWriter writes a trajectory header to wr and returns a Writer that
// appends frames to it.
func NewWriter(wr io.Writer, n int, compress bool) (*Writer, error) {
	if n < 1 {
		return nil, fmt.Errorf("A trajectory needs at least one particle, but n = %d was given.", n)
	}

	compression := rawFrames
	if compress { compression = zstdFrames }
	hd := header{ MagicNumber, Version, int64(n), compression }
	if err := binary.Write(wr, binary.LittleEndian, &hd); err != nil {
		return nil, err
	}

	return &Writer{ wr: wr, n: n, compress: compress, buf: &bytes.Buffer{ } }, nil
}

// N returns the number of particles per frame.
func (w *Writer) N() int { return w.n }

// Write appends one frame. fr.Velocity must have length 3N and fr.Virial 9N.
func (w *Writer) Write(fr *Frame) error {
	if len(fr.Velocity) != 3*w.n || len(fr.Virial) != 9*w.n {
		return fmt.Errorf("The trajectory stores %d particles per frame, but the frame has %d velocity and %d virial values.",
			w.n, len(fr.Velocity), len(fr.Virial))
	}

	err := binary.Write(w.wr, binary.LittleEndian, fr.Step)
	if err != nil { return err }

	if !w.compress {
		if err := binary.Write(w.wr, binary.LittleEndian, fr.Velocity); err != nil {
			return err
		}
		return binary.Write(w.wr, binary.LittleEndian, fr.Virial)
	}

	w.buf.Reset()
	binary.Write(w.buf, binary.LittleEndian, fr.Velocity)
	binary.Write(w.buf, binary.LittleEndian, fr.Virial)

	block, err := zstd.CompressLevel(nil, w.buf.Bytes(), 1)
	if err != nil { return err }

	if err := binary.Write(w.wr, binary.LittleEndian, int64(len(block))); err != nil {
		return err
	}
	_, err = w.wr.Write(block)
	return err
}

// Close closes the underlying file, if the Writer owns one.
func (w *Writer) Close() error {
	if w.c == nil { return nil }
	return w.c.Close()
}

// Reader streams frames out of a trajectory.
type Reader struct {
	rd       io.Reader
	c        io.Closer
	n        int
	compress bool
	block    []byte
	raw      []byte
}

// Open opens the trajectory file name for reading.
func Open(name string) (*Reader, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("Could not open the trajectory file '%s': %s",
			name, err.Error())
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.c = f
	return r, nil
}

// NewReader reads a trajectory header from rd and returns a Reader that
// streams its frames.
func NewReader(rd io.Reader) (*Reader, error) {
	hd := header{ }
	if err := binary.Read(rd, binary.LittleEndian, &hd); err != nil {
		return nil, err
	}

	if hd.Magic != MagicNumber {
		return nil, fmt.Errorf("The file does not start with the trajectory magic number, so it is not an shc trajectory.")
	}
	if hd.Version != Version {
		return nil, fmt.Errorf("The trajectory has format version %d, but this build of shc reads version %d.",
			hd.Version, Version)
	}
	if hd.N < 1 {
		return nil, fmt.Errorf("The trajectory header claims %d particles per frame.", hd.N)
	}
	if hd.Compression != rawFrames && hd.Compression != zstdFrames {
		return nil, fmt.Errorf("The trajectory header contains the unknown compression flag %d.", hd.Compression)
	}

	return &Reader{
		rd: rd, n: int(hd.N), compress: hd.Compression == zstdFrames,
	}, nil
}

// N returns the number of particles per frame.
func (r *Reader) N() int { return r.n }

// Read reads the next frame into fr, which must have been sized for this
// trajectory's particle count. It returns io.EOF once the trajectory is
// exhausted.
func (r *Reader) Read(fr *Frame) error {
	if len(fr.Velocity) != 3*r.n || len(fr.Virial) != 9*r.n {
		return fmt.Errorf("The trajectory stores %d particles per frame, but the frame has %d velocity and %d virial values.",
			r.n, len(fr.Velocity), len(fr.Virial))
	}

	err := binary.Read(r.rd, binary.LittleEndian, &fr.Step)
	if err != nil { return err }

	if !r.compress {
		err := binary.Read(r.rd, binary.LittleEndian, fr.Velocity)
		if err != nil { return noEOF(err) }
		return noEOF(binary.Read(r.rd, binary.LittleEndian, fr.Virial))
	}

	nBlock := int64(0)
	if err := binary.Read(r.rd, binary.LittleEndian, &nBlock); err != nil {
		return noEOF(err)
	}

	if int64(cap(r.block)) < nBlock {
		r.block = make([]byte, nBlock)
	}
	r.block = r.block[:nBlock]
	if _, err := io.ReadFull(r.rd, r.block); err != nil {
		return noEOF(err)
	}

	rawLen := 8 * (len(fr.Velocity) + len(fr.Virial))
	if cap(r.raw) < rawLen {
		r.raw = make([]byte, rawLen)
	}
	raw, err := zstd.Decompress(r.raw[:rawLen], r.block)
	if err != nil { return err }
	r.raw = raw
	if len(raw) != rawLen {
		return fmt.Errorf("A trajectory frame decompressed to %d bytes, but frames of this trajectory are %d bytes.",
			len(raw), rawLen)
	}

	buf := bytes.NewReader(raw)
	if err := binary.Read(buf, binary.LittleEndian, fr.Velocity); err != nil {
		return err
	}
	return binary.Read(buf, binary.LittleEndian, fr.Virial)
}

// Close closes the underlying file, if the Reader owns one.
func (r *Reader) Close() error {
	if r.c == nil { return nil }
	return r.c.Close()
}

// noEOF converts mid-frame EOFs into ErrUnexpectedEOF: a trajectory may only
// end on a frame boundary.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Package pxm pages window blocks to and from disk. A block record is a
// small text header ("P5", dimensions, colour count) followed by the raw
// little-endian float32 samples, row by row and slice by slice. A
// bounding-box record stores a window's bounds and, optionally, its shift
// state.
package pxm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/chazu/rollgrid/pkg/grid"
	"github.com/deadsy/sdfx/sdf"
)

const (
	// Magic opens every block record.
	Magic = "P5"
	// DefaultColors is the colour count written when none is configured.
	DefaultColors = 255
	// maxSamples bounds the allocation a record header may request.
	maxSamples = 1 << 24
)

var (
	ErrEmptyWindow = errors.New("pxm: window has no active blocks")
	ErrBadRecord   = errors.New("pxm: malformed record")
)

// WriteBlock writes b as a block record.
func WriteBlock(w io.Writer, b *grid.Block, colors int) error {
	if !b.Active() {
		return fmt.Errorf("pxm: write: inactive block")
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n%d %d %d\n%d\n", Magic, b.W, b.H, b.D, colors)
	for z := 0; z < b.D; z++ {
		for y := 0; y < b.H; y++ {
			if err := binary.Write(bw, binary.LittleEndian, b.Row(y, z)); err != nil {
				return fmt.Errorf("pxm: write row %d/%d: %w", y, z, err)
			}
		}
	}
	return bw.Flush()
}

// ReadBlock parses a block record. It returns the block and the colour
// count from the header.
func ReadBlock(r io.Reader) (grid.Block, int, error) {
	var b grid.Block
	br := bufio.NewReader(r)

	var magic string
	var w, h, d, colors int
	if _, err := fmt.Fscan(br, &magic, &w, &h, &d, &colors); err != nil {
		return b, 0, fmt.Errorf("%w: header: %v", ErrBadRecord, err)
	}
	if magic != Magic {
		return b, 0, fmt.Errorf("%w: type %q", ErrBadRecord, magic)
	}
	if w <= 0 || h <= 0 || d <= 0 || w*h*d > maxSamples {
		return b, 0, fmt.Errorf("%w: dimensions %dx%dx%d", ErrBadRecord, w, h, d)
	}
	if c, err := br.ReadByte(); err != nil || c != '\n' {
		return b, 0, fmt.Errorf("%w: header not terminated", ErrBadRecord)
	}

	b.Init(w, h, d)
	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			if err := binary.Read(br, binary.LittleEndian, b.Row(y, z)); err != nil {
				return grid.Block{}, 0, fmt.Errorf("%w: row %d/%d: %v", ErrBadRecord, y, z, err)
			}
		}
	}
	return b, colors, nil
}

// WriteBlockFile writes b to path, replacing any existing file.
func WriteBlockFile(path string, b *grid.Block, colors int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pxm: %w", err)
	}
	if err := WriteBlock(f, b, colors); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadBlockFile reads the block record at path.
func ReadBlockFile(path string) (grid.Block, error) {
	f, err := os.Open(path)
	if err != nil {
		return grid.Block{}, fmt.Errorf("pxm: %w", err)
	}
	defer f.Close()
	b, _, err := ReadBlock(f)
	if err != nil {
		return grid.Block{}, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// BoxRecord is the content of a bounding-box record. Local and Global are
// only meaningful when HasShift is set.
type BoxRecord struct {
	Box      sdf.Box3
	Local    grid.Index3
	Global   grid.Index3
	HasShift bool
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

// WriteBBox writes rec: the minimum corner, the maximum corner and, when
// rec carries shift state, a third line with the local then global shift.
func WriteBBox(w io.Writer, rec BoxRecord) error {
	bw := bufio.NewWriter(w)
	mn, mx := rec.Box.Min, rec.Box.Max
	fmt.Fprintf(bw, "%s %s %s\n", formatFloat(mn.X), formatFloat(mn.Y), formatFloat(mn.Z))
	fmt.Fprintf(bw, "%s %s %s\n", formatFloat(mx.X), formatFloat(mx.Y), formatFloat(mx.Z))
	if rec.HasShift {
		l, g := rec.Local, rec.Global
		fmt.Fprintf(bw, "%d %d %d %d %d %d\n", l.X, l.Y, l.Z, g.X, g.Y, g.Z)
	}
	return bw.Flush()
}

// ReadBBox parses a bounding-box record. Records without a shift line
// are accepted.
func ReadBBox(r io.Reader) (BoxRecord, error) {
	var rec BoxRecord
	br := bufio.NewReader(r)
	mn, mx := &rec.Box.Min, &rec.Box.Max
	if _, err := fmt.Fscan(br, &mn.X, &mn.Y, &mn.Z, &mx.X, &mx.Y, &mx.Z); err != nil {
		return rec, fmt.Errorf("%w: bounds: %v", ErrBadRecord, err)
	}
	l, g := &rec.Local, &rec.Global
	n, err := fmt.Fscan(br, &l.X, &l.Y, &l.Z, &g.X, &g.Y, &g.Z)
	switch {
	case n == 0 && err == io.EOF:
	case err != nil:
		return rec, fmt.Errorf("%w: shift: %v", ErrBadRecord, err)
	default:
		rec.HasShift = true
	}
	return rec, nil
}

// WriteBBoxFile writes rec to path.
func WriteBBoxFile(path string, rec BoxRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pxm: %w", err)
	}
	if err := WriteBBox(f, rec); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadBBoxFile reads the bounding-box record at path.
func ReadBBoxFile(path string) (BoxRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return BoxRecord{}, fmt.Errorf("pxm: bounding box: %w", err)
	}
	defer f.Close()
	rec, err := ReadBBox(f)
	if err != nil {
		return rec, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

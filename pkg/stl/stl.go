// Package stl writes meshes as STL files, the interchange format accepted
// by slicers and most 3D viewers.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"volgeom/pkg/mesh"
)

// Triangle is one STL facet in single precision.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

const (
	headerSize   = 80
	triangleSize = 50
)

// FromMesh flattens m into facets. Each facet normal is the unit face
// normal given by the triangle's winding; degenerate faces get a zero
// normal, which readers recompute.
func FromMesh(m *mesh.Mesh) []Triangle {
	out := make([]Triangle, len(m.Triangles))
	for i, t := range m.Triangles {
		a, b, c := m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		out[i] = Triangle{Normal: vec32(n), Vertex1: vec32(a), Vertex2: vec32(b), Vertex3: vec32(c)}
	}
	return out
}

func vec32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// WriteBinary writes triangles in binary STL. header is truncated or
// zero-padded to 80 bytes.
func WriteBinary(w io.Writer, header string, triangles []Triangle) error {
	bw := bufio.NewWriter(w)
	var head [headerSize]byte
	copy(head[:], header)
	if _, err := bw.Write(head[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	var buf [triangleSize]byte
	for _, t := range triangles {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, c := range v {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(c))
				off += 4
			}
		}
		// Attribute byte count stays zero.
		buf[48], buf[49] = 0, 0
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteASCII writes triangles as an ASCII STL solid called name.
func WriteASCII(w io.Writer, name string, triangles []Triangle) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "solid %s\n", name)
	for _, t := range triangles {
		fmt.Fprintf(bw, "  facet normal %e %e %e\n", t.Normal[0], t.Normal[1], t.Normal[2])
		fmt.Fprintln(bw, "    outer loop")
		for _, v := range [3][3]float32{t.Vertex1, t.Vertex2, t.Vertex3} {
			fmt.Fprintf(bw, "      vertex %e %e %e\n", v[0], v[1], v[2])
		}
		fmt.Fprintln(bw, "    endloop")
		fmt.Fprintln(bw, "  endfacet")
	}
	fmt.Fprintf(bw, "endsolid %s\n", name)
	return bw.Flush()
}

// SaveToSTL writes triangles to filename in binary STL.
func SaveToSTL(filename string, triangles []Triangle) error {
	return save(filename, func(w io.Writer) error {
		return WriteBinary(w, "volgeom binary STL", triangles)
	})
}

// SaveMesh writes m to filename, in ASCII when ascii is set and binary
// otherwise. The solid name is the file's base name.
func SaveMesh(filename string, m *mesh.Mesh, ascii bool) error {
	tris := FromMesh(m)
	if !ascii {
		return SaveToSTL(filename, tris)
	}
	name := filepath.Base(filename)
	name = name[:len(name)-len(filepath.Ext(name))]
	return save(filename, func(w io.Writer) error {
		return WriteASCII(w, name, tris)
	})
}

func save(filename string, write func(io.Writer) error) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close STL file: %w", cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("failed to write STL file %s: %w", filename, err)
	}
	return nil
}

// Package arrays reads and writes the NumPy .npy files produced by spike
// sorting and consumed by the alignment and packaging tools.
package arrays

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"npprobes/internal/fileutil"
)

// Array is a decoded .npy payload flattened in C order.
type Array struct {
	Shape []int
	Data  []float64
}

// Rows returns the size of the leading dimension.
func (a Array) Rows() int {
	if len(a.Shape) == 0 {
		return len(a.Data)
	}
	return a.Shape[0]
}

// Row returns the flattened slab for the i-th leading index.
func (a Array) Row(i int) []float64 {
	rows := a.Rows()
	if rows == 0 {
		return nil
	}
	stride := len(a.Data) / rows
	return a.Data[i*stride : (i+1)*stride]
}

// Dtype returns the element type of the file at path without the byte order
// marker (for example "f8" or "u8").
func Dtype(path string) (string, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	r, err := npyio.NewReader(f)
	if err != nil {
		return "", nil, fmt.Errorf("read npy header %s: %w", filepath.Base(path), err)
	}
	return trimOrder(r.Header.Descr.Type), r.Header.Descr.Shape, nil
}

// ReadFloat64 loads any numeric array and converts its elements to float64.
func ReadFloat64(path string) (Array, error) {
	f, err := os.Open(path)
	if err != nil {
		return Array{}, err
	}
	defer f.Close()
	return decode(f, filepath.Base(path))
}

// Unmarshal decodes an in-memory .npy payload.
func Unmarshal(b []byte) (Array, error) {
	return decode(bytes.NewReader(b), "blob")
}

// Marshal encodes a slice (or gonum matrix) as a .npy payload.
func Marshal(data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := npyio.Write(&buf, data); err != nil {
		return nil, fmt.Errorf("encode npy: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(src io.Reader, name string) (Array, error) {
	r, err := npyio.NewReader(src)
	if err != nil {
		return Array{}, fmt.Errorf("read npy header %s: %w", name, err)
	}
	if r.Header.Descr.Fortran {
		return Array{}, fmt.Errorf("%s: fortran-ordered arrays are not supported", name)
	}

	shape := append([]int(nil), r.Header.Descr.Shape...)
	if elements(shape) == 0 {
		return Array{Shape: shape, Data: []float64{}}, nil
	}

	var data []float64
	switch dtype := trimOrder(r.Header.Descr.Type); dtype {
	case "f8":
		err = r.Read(&data)
	case "f4":
		data, err = readConverted[float32](r)
	case "i8":
		data, err = readConverted[int64](r)
	case "i4":
		data, err = readConverted[int32](r)
	case "i2":
		data, err = readConverted[int16](r)
	case "i1":
		data, err = readConverted[int8](r)
	case "u8":
		data, err = readConverted[uint64](r)
	case "u4":
		data, err = readConverted[uint32](r)
	case "u2":
		data, err = readConverted[uint16](r)
	case "u1":
		data, err = readConverted[uint8](r)
	default:
		return Array{}, fmt.Errorf("%s: unsupported dtype %q", name, r.Header.Descr.Type)
	}
	if err != nil {
		return Array{}, fmt.Errorf("read npy %s: %w", name, err)
	}
	return Array{Shape: shape, Data: data}, nil
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// ReadInt64 loads an integer array. Float arrays are accepted when every
// element is integral.
func ReadInt64(path string) ([]int64, error) {
	arr, err := ReadFloat64(path)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(arr.Data))
	for i, v := range arr.Data {
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("%s: element %d (%g) is not an integer", filepath.Base(path), i, v)
		}
		out[i] = int64(v)
	}
	return out, nil
}

// WriteInt64 writes a one-dimensional int64 array atomically.
func WriteInt64(path string, data []int64) error {
	return write(path, data)
}

// WriteFloat64 writes a one-dimensional float64 array atomically.
func WriteFloat64(path string, data []float64) error {
	return write(path, data)
}

// WriteMatrix writes a row-major rows x cols float64 array atomically.
func WriteMatrix(path string, rows, cols int, data []float64) error {
	if rows*cols != len(data) {
		return fmt.Errorf("matrix %dx%d does not hold %d values", rows, cols, len(data))
	}
	return write(path, mat.NewDense(rows, cols, data))
}

func write(path string, data any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := npyio.Write(f, data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write npy %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Exists reports whether an array file is present.
func Exists(path string) bool { return fileutil.Exists(path) }

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32
}

func readConverted[T number](r *npyio.Reader) ([]float64, error) {
	var raw []T
	if err := r.Read(&raw); err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

func trimOrder(dtype string) string {
	return strings.TrimLeft(dtype, "<>|=")
}

package ccf

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Volume maps annotation voxel indices to structure ids.
type Volume interface {
	StructureID(ap, dv, ml int) (int, error)
	Close() error
}

type elementType struct {
	size   int
	decode func(order binary.ByteOrder, b []byte) int
}

var elementTypes = map[string]elementType{
	"MET_UCHAR":      {1, func(_ binary.ByteOrder, b []byte) int { return int(b[0]) }},
	"MET_CHAR":       {1, func(_ binary.ByteOrder, b []byte) int { return int(int8(b[0])) }},
	"MET_USHORT":     {2, func(o binary.ByteOrder, b []byte) int { return int(o.Uint16(b)) }},
	"MET_SHORT":      {2, func(o binary.ByteOrder, b []byte) int { return int(int16(o.Uint16(b))) }},
	"MET_UINT":       {4, func(o binary.ByteOrder, b []byte) int { return int(o.Uint32(b)) }},
	"MET_INT":        {4, func(o binary.ByteOrder, b []byte) int { return int(int32(o.Uint32(b))) }},
	"MET_ULONG":      {4, func(o binary.ByteOrder, b []byte) int { return int(o.Uint32(b)) }},
	"MET_LONG":       {4, func(o binary.ByteOrder, b []byte) int { return int(int32(o.Uint32(b))) }},
	"MET_ULONG_LONG": {8, func(o binary.ByteOrder, b []byte) int { return int(o.Uint64(b)) }},
	"MET_LONG_LONG":  {8, func(o binary.ByteOrder, b []byte) int { return int(int64(o.Uint64(b))) }},
}

// MetaImage is an annotation volume stored as a MetaImage header (.mhd) with
// raw voxel data. Uncompressed data is read on demand; compressed data is
// inflated into memory at open.
type MetaImage struct {
	// DimSize is the (x, y, z) extent; x indexes ML, y DV and z AP.
	DimSize [3]int
	elem    elementType
	order   binary.ByteOrder
	file    *os.File
	offset  int64
	data    []byte
}

// OpenMetaImage parses the header at path and opens its voxel data.
func OpenMetaImage(path string) (*MetaImage, error) {
	header, headerBytes, err := readHeader(path)
	if err != nil {
		return nil, err
	}
	if header["NDims"] != "3" {
		return nil, fmt.Errorf("%s: expected NDims = 3, got %q", filepath.Base(path), header["NDims"])
	}
	m := &MetaImage{order: binary.LittleEndian}
	dims := strings.Fields(header["DimSize"])
	if len(dims) != 3 {
		return nil, fmt.Errorf("%s: DimSize must list three extents", filepath.Base(path))
	}
	for i, d := range dims {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%s: invalid DimSize %q", filepath.Base(path), header["DimSize"])
		}
		m.DimSize[i] = n
	}
	elem, ok := elementTypes[header["ElementType"]]
	if !ok {
		return nil, fmt.Errorf("%s: unsupported ElementType %q", filepath.Base(path), header["ElementType"])
	}
	m.elem = elem
	if isTrue(header["BinaryDataByteOrderMSB"]) || isTrue(header["ElementByteOrderMSB"]) {
		m.order = binary.BigEndian
	}
	if channels := header["ElementNumberOfChannels"]; channels != "" && channels != "1" {
		return nil, fmt.Errorf("%s: multi-channel volumes are not supported", filepath.Base(path))
	}

	dataFile := header["ElementDataFile"]
	var (
		dataPath string
		offset   int64
	)
	switch {
	case dataFile == "":
		return nil, fmt.Errorf("%s: ElementDataFile missing", filepath.Base(path))
	case strings.EqualFold(dataFile, "LOCAL"):
		dataPath, offset = path, int64(headerBytes)
	default:
		dataPath = dataFile
		if !filepath.IsAbs(dataPath) {
			dataPath = filepath.Join(filepath.Dir(path), dataFile)
		}
	}
	if hs := header["HeaderSize"]; hs != "" && hs != "-1" {
		skip, err := strconv.ParseInt(hs, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid HeaderSize %q", filepath.Base(path), hs)
		}
		offset += skip
	}

	f, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("open volume data: %w", err)
	}
	expected := int64(m.voxels()) * int64(elem.size)

	if isTrue(header["CompressedData"]) {
		defer f.Close()
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		zr, err := zlib.NewReader(bufio.NewReader(f))
		if err != nil {
			return nil, fmt.Errorf("inflate volume: %w", err)
		}
		defer zr.Close()
		m.data = make([]byte, expected)
		if _, err := io.ReadFull(zr, m.data); err != nil {
			return nil, fmt.Errorf("inflate volume: %w", err)
		}
		return m, nil
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if hs := header["HeaderSize"]; hs == "-1" {
		offset = info.Size() - expected
	}
	if info.Size()-offset < expected {
		f.Close()
		return nil, fmt.Errorf("%s: volume data holds %d bytes, need %d", filepath.Base(dataPath), info.Size()-offset, expected)
	}
	m.file = f
	m.offset = offset
	return m, nil
}

func (m *MetaImage) voxels() int { return m.DimSize[0] * m.DimSize[1] * m.DimSize[2] }

// StructureID returns the annotation at voxel [ap, dv, ml].
func (m *MetaImage) StructureID(ap, dv, ml int) (int, error) {
	nx, ny, nz := m.DimSize[0], m.DimSize[1], m.DimSize[2]
	if ap < 0 || ap >= nz || dv < 0 || dv >= ny || ml < 0 || ml >= nx {
		return 0, fmt.Errorf("voxel [%d, %d, %d] outside volume %dx%dx%d", ap, dv, ml, nz, ny, nx)
	}
	index := int64((ap*ny+dv)*nx+ml) * int64(m.elem.size)
	buf := make([]byte, m.elem.size)
	if m.data != nil {
		copy(buf, m.data[index:])
	} else if _, err := m.file.ReadAt(buf, m.offset+index); err != nil {
		return 0, fmt.Errorf("read voxel: %w", err)
	}
	return m.elem.decode(m.order, buf), nil
}

// Close releases the data file.
func (m *MetaImage) Close() error {
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}

// readHeader returns the key/value pairs of a MetaImage header and the
// number of header bytes (through the ElementDataFile line).
func readHeader(path string) (map[string]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	header := make(map[string]string)
	reader := bufio.NewReader(f)
	consumed := 0
	for {
		line, err := reader.ReadBytes('\n')
		consumed += len(line)
		if key, value, ok := bytes.Cut(line, []byte("=")); ok {
			k := strings.TrimSpace(string(key))
			header[k] = strings.TrimSpace(string(value))
			if k == "ElementDataFile" {
				break
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}
	return header, consumed, nil
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// MemoryVolume is an in-memory volume indexed [ap][dv][ml].
type MemoryVolume [][][]int

func (v MemoryVolume) StructureID(ap, dv, ml int) (int, error) {
	if ap < 0 || ap >= len(v) || dv < 0 || dv >= len(v[ap]) || ml < 0 || ml >= len(v[ap][dv]) {
		return 0, fmt.Errorf("voxel [%d, %d, %d] outside volume", ap, dv, ml)
	}
	return v[ap][dv][ml], nil
}

func (MemoryVolume) Close() error { return nil }

package ccf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"npprobes/internal/testsupport"
)

func TestZigZagPattern(t *testing.T) {
	var z ZigZag
	var horizontal, vertical []int
	for i := 0; i < 8; i++ {
		h, v := z.Next()
		horizontal = append(horizontal, h)
		vertical = append(vertical, v)
	}
	if diff := cmp.Diff([]int{43, 11, 59, 27, 43, 11, 59, 27}, horizontal); diff != "" {
		t.Fatalf("horizontal mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{20, 20, 40, 40, 60, 60, 80, 80}, vertical); diff != "" {
		t.Fatalf("vertical mismatch (-want +got):\n%s", diff)
	}
}

func TestZigZagVerticalSteps(t *testing.T) {
	var z ZigZag
	prev := 0
	for i := 0; i < 384; i++ {
		_, v := z.Next()
		if i%2 == 0 {
			if v != prev+VerticalStep {
				t.Fatalf("row %d: vertical %d, previous %d", i, v, prev)
			}
		} else if v != prev {
			t.Fatalf("row %d: vertical changed within a pair", i)
		}
		prev = v
	}
	if prev != 20*192 {
		t.Fatalf("final vertical = %d", prev)
	}
}

func TestAlignmentPath(t *testing.T) {
	got := AlignmentPath("/tc", "626791", "B", 2)
	if got != filepath.Join("/tc", "626791", "Probe_B2_channels_626791_warped.csv") {
		t.Fatalf("AlignmentPath = %s", got)
	}
}

func TestReadAlignmentTable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := testsupport.WriteCCFTable(t, cfg, "626791", "A", 1, 6)

	rows, err := ReadAlignmentTable(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 {
		t.Fatalf("rows = %d", len(rows))
	}
	if diff := cmp.Diff(Row{Channel: 5, AP: 1, DV: 1, ML: 1, Region: "CA1"}, rows[5]); diff != "" {
		t.Fatalf("row mismatch (-want +got):\n%s", diff)
	}
	if rows[4].Region != NoArea {
		t.Fatalf("blank region = %q", rows[4].Region)
	}
}

func TestReadAlignmentTableMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	testsupport.WriteText(t, path, "channel,AP\n0,1\n")
	if _, err := ReadAlignmentTable(path); err == nil {
		t.Fatal("expected missing column error")
	}
}

func TestCleanRegion(t *testing.T) {
	for in, want := range map[string]string{"": NoArea, "NaN": NoArea, " VISp5 ": "VISp5"} {
		if got := CleanRegion(in); got != want {
			t.Fatalf("CleanRegion(%q) = %q", in, got)
		}
	}
}

func TestMetaImageUncompressed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	path := testsupport.WriteAnnotationVolume(t, cfg)

	vol, err := OpenMetaImage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer vol.Close()

	for _, voxel := range [][3]int{{0, 0, 0}, {3, 2, 1}, {2, 1, 0}} {
		got, err := vol.StructureID(voxel[0], voxel[1], voxel[2])
		if err != nil {
			t.Fatal(err)
		}
		if want := int(testsupport.AnnotationValue(voxel[0], voxel[1], voxel[2])); got != want {
			t.Fatalf("StructureID%v = %d, want %d", voxel, got, want)
		}
	}
	if _, err := vol.StructureID(4, 0, 0); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestMetaImageCompressedLocal(t *testing.T) {
	var raw bytes.Buffer
	for i := 0; i < 8; i++ {
		_ = binary.Write(&raw, binary.BigEndian, int16(-i))
	}
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(raw.Bytes())
	zw.Close()

	header := "ObjectType = Image\nNDims = 3\nDimSize = 2 2 2\nElementType = MET_SHORT\n" +
		"BinaryDataByteOrderMSB = True\nCompressedData = True\nElementDataFile = LOCAL\n"
	path := filepath.Join(t.TempDir(), "vol.mha")
	if err := os.WriteFile(path, append([]byte(header), compressed.Bytes()...), 0o644); err != nil {
		t.Fatal(err)
	}

	vol, err := OpenMetaImage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer vol.Close()
	got, err := vol.StructureID(1, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != -6 {
		t.Fatalf("StructureID = %d, want -6", got)
	}
}

func TestMetaImageRejectsShortData(t *testing.T) {
	dir := t.TempDir()
	header := "NDims = 3\nDimSize = 4 4 4\nElementType = MET_UINT\nElementDataFile = short.raw\n"
	testsupport.WriteText(t, filepath.Join(dir, "v.mhd"), header)
	testsupport.WriteFile(t, filepath.Join(dir, "short.raw"), 10)
	if _, err := OpenMetaImage(filepath.Join(dir, "v.mhd")); err == nil {
		t.Fatal("expected short data error")
	}
}

func TestMemoryVolume(t *testing.T) {
	vol := MemoryVolume{{{1, 2}}, {{3, 4}}}
	if got, _ := vol.StructureID(1, 0, 1); got != 4 {
		t.Fatalf("StructureID = %d", got)
	}
	if _, err := vol.StructureID(0, 1, 0); err == nil {
		t.Fatal("expected out of range error")
	}
}

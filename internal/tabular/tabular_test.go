package tabular

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadAndAccessors(t *testing.T) {
	input := "cluster_id,peak_channel,snr,quality\n0,12,3.5,good\n1,13.0,inf,\n2,14,nan,noise\n"
	table, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("Len = %d", table.Len())
	}
	if got := table.Float(0, "snr"); got != 3.5 {
		t.Fatalf("snr row 0 = %v", got)
	}
	for _, row := range []int{1, 2} {
		if got := table.Float(row, "snr"); got != 0 {
			t.Fatalf("non-finite snr row %d = %v, want 0", row, got)
		}
	}
	if got := table.Float(0, "missing"); got != 0 {
		t.Fatalf("missing column = %v", got)
	}
	peak, err := table.Int(1, "peak_channel")
	if err != nil || peak != 13 {
		t.Fatalf("Int = %d, %v", peak, err)
	}
	if _, err := table.Int(1, "quality"); err == nil {
		t.Fatal("expected error for blank integer cell")
	}
	if err := table.Require("cluster_id", "amplitude", "spread"); err == nil || !strings.Contains(err.Error(), "amplitude, spread") {
		t.Fatalf("Require error = %v", err)
	}
}

func TestReadPadsShortRows(t *testing.T) {
	table, err := Read(strings.NewReader("a,b,c\n1,2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if table.String(0, "c") != "" || table.String(0, "b") != "2" {
		t.Fatalf("unexpected row %v", table.Rows[0])
	}
}

func TestReadEmpty(t *testing.T) {
	if _, err := Read(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestInnerJoinKeepsLeftOrder(t *testing.T) {
	left, _ := Read(strings.NewReader("cluster_id,snr\n3,1\n1,2\n2,3\n"))
	right, _ := Read(strings.NewReader("cluster_id,duration,snr\n1,0.5,9\n3,0.7,9\n"))

	joined, err := left.InnerJoin(right, "cluster_id")
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"3", "1", "0.7"}, {"1", "2", "0.5"}}
	if diff := cmp.Diff(want, joined.Rows); diff != "" {
		t.Fatalf("joined rows mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"cluster_id", "snr", "duration"}, joined.Header); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if _, err := left.InnerJoin(right, "unit"); err == nil {
		t.Fatal("expected missing key error")
	}
}

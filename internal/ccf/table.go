package ccf

import (
	"fmt"
	"path/filepath"
	"strings"

	"npprobes/internal/tabular"
)

// NoArea labels channels without an anatomical assignment.
const NoArea = "No Area"

// VoxelSize is the annotation volume resolution in microns.
const VoxelSize = 25

// Row is one channel of a warped alignment table. AP, DV and ML are voxel
// indices into the annotation volume.
type Row struct {
	Channel int
	AP      int
	DV      int
	ML      int
	Region  string
}

// AlignmentPath returns the warped channel table for a probe on the mouse's
// day-th recording session.
func AlignmentPath(tissuecyteRoot, mouse, letter string, day int) string {
	return filepath.Join(tissuecyteRoot, mouse, fmt.Sprintf("Probe_%s%d_channels_%s_warped.csv", letter, day, mouse))
}

// ReadAlignmentTable parses a warped channel table. Rows keep file order and
// blank regions become NoArea.
func ReadAlignmentTable(path string) ([]Row, error) {
	table, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := table.Require("channel", "AP", "DV", "ML", "region"); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	rows := make([]Row, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		var row Row
		for _, field := range []struct {
			column string
			dst    *int
		}{
			{"channel", &row.Channel},
			{"AP", &row.AP},
			{"DV", &row.DV},
			{"ML", &row.ML},
		} {
			v, err := table.Int(i, field.column)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			*field.dst = v
		}
		row.Region = CleanRegion(table.String(i, "region"))
		rows = append(rows, row)
	}
	return rows, nil
}

// CleanRegion maps blank or NaN region labels to NoArea.
func CleanRegion(region string) string {
	region = strings.TrimSpace(region)
	if region == "" || strings.EqualFold(region, "nan") {
		return NoArea
	}
	return region
}

// Package ccf loads the Common Coordinate Framework inputs used to place
// channels anatomically: per-probe warped channel tables produced by
// histology alignment, and the shared annotation volume mapping voxels to
// structure ids.
//
// Voxel lookups are a plain index into the volume; no interpolation or
// registration happens here. The package also owns the two-column zig-zag
// electrode geometry used to assign probe positions to aligned channels.
package ccf

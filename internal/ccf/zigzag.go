package ccf

// Horizontal offsets (microns) of the two electrode columns, per row parity.
var horizontalOffsets = [2][2]int{
	{43, 59},
	{11, 27},
}

// VerticalStep is the spacing between electrode rows in microns.
const VerticalStep = 20

// ZigZag yields electrode positions for consecutive channels. Even and odd
// channels each alternate between their own pair of horizontal offsets, and
// the vertical position advances one step every two channels.
type ZigZag struct {
	index int
	phase [2]int
}

// Next returns the horizontal and vertical position of the next channel.
func (z *ZigZag) Next() (horizontal, vertical int) {
	parity := z.index % 2
	horizontal = horizontalOffsets[parity][z.phase[parity]]
	z.phase[parity] ^= 1
	vertical = VerticalStep * (z.index/2 + 1)
	z.index++
	return horizontal, vertical
}

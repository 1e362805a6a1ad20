package packager

import (
	"fmt"

	"npprobes/internal/arrays"
	"npprobes/internal/fileutil"
	"npprobes/internal/metadata"
	"npprobes/internal/services"
)

// lfpChannels maps the probe channel numbers kept by LFP subsampling to
// indices into channels. Without a channel list every channel is kept.
func lfpChannels(path string, channels []metadata.Channel) ([]int, error) {
	if !fileutil.Exists(path) {
		all := make([]int, len(channels))
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	numbers, err := arrays.ReadInt64(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "packager", "lfp channels", path, err)
	}
	byNumber := make(map[int]int, len(channels))
	for i, c := range channels {
		byNumber[c.ProbeChannelNumber] = i
	}
	selected := make([]int, 0, len(numbers))
	seen := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		idx, ok := byNumber[int(n)]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "packager", "lfp channels",
				fmt.Sprintf("channel %d is not on the probe", n), nil)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		selected = append(selected, idx)
	}
	return selected, nil
}

package metadata

import (
	"fmt"
	"log/slog"

	"npprobes/internal/ccf"
	"npprobes/internal/logging"
	"npprobes/internal/registry"
	"npprobes/internal/services"
)

// ChannelsPerProbe is the number of recording channels on a Neuropixels 1.0 probe.
const ChannelsPerProbe = 384

// Unknown is the sentinel for missing anatomy and position values.
const Unknown = -1

// Channel is one recording channel of a probe.
type Channel struct {
	ID                 int64   `json:"id"`
	ProbeID            int64   `json:"probe_id"`
	ProbeChannelNumber int     `json:"probe_channel_number"`
	StructureID        int     `json:"structure_id"`
	StructureAcronym   string  `json:"structure_acronym"`
	AnteriorPosterior  float64 `json:"anterior_posterior_ccf_coordinate"`
	DorsalVentral      float64 `json:"dorsal_ventral_ccf_coordinate"`
	LeftRight          float64 `json:"left_right_ccf_coordinate"`
	HorizontalPosition int     `json:"probe_horizontal_position"`
	VerticalPosition   int     `json:"probe_vertical_position"`
	ValidData          bool    `json:"valid_data"`
}

func sentinelChannel(number int) Channel {
	return Channel{
		ProbeChannelNumber: number,
		StructureID:        Unknown,
		StructureAcronym:   ccf.NoArea,
		AnteriorPosterior:  Unknown,
		DorsalVentral:      Unknown,
		LeftRight:          Unknown,
		HorizontalPosition: Unknown,
		VerticalPosition:   Unknown,
		ValidData:          true,
	}
}

// AssembleChannels returns the probe's channels with ids drawn from alloc in
// channel order. rows is the warped CCF table (nil when the probe has none);
// volume is only consulted when rows are used.
func AssembleChannels(probeID int64, rows []ccf.Row, volume ccf.Volume, alloc registry.Allocation, logger *slog.Logger) ([]Channel, error) {
	channels, err := BuildChannels(rows, volume, logger)
	if err != nil {
		return nil, err
	}
	if err := AssignChannelIDs(channels, probeID, alloc); err != nil {
		return nil, err
	}
	return channels, nil
}

// BuildChannels resolves anatomy and positions without drawing ids. A table
// whose row count is not ChannelsPerProbe is ignored with a warning.
func BuildChannels(rows []ccf.Row, volume ccf.Volume, logger *slog.Logger) ([]Channel, error) {
	logger = logging.NewComponentLogger(logger, "metadata")

	if len(rows) > 0 && len(rows) != ChannelsPerProbe {
		logging.WarnWithContext(logger, "ccf table has unexpected channel count", "ccf_channel_count",
			logging.Int("rows", len(rows)),
			logging.Int("expected", ChannelsPerProbe),
			logging.String(logging.FieldErrorHint, "re-export the warped channel table for this probe"),
			logging.String(logging.FieldImpact, "channels use sentinel anatomy"),
		)
		rows = nil
	}

	channels := make([]Channel, 0, ChannelsPerProbe)
	if len(rows) == 0 {
		for i := 0; i < ChannelsPerProbe; i++ {
			channels = append(channels, sentinelChannel(i))
		}
		return channels, nil
	}
	if volume == nil {
		return nil, services.Wrap(services.ErrRequiredFile, "metadata", "channels", "annotation volume not loaded", nil)
	}
	var zz ccf.ZigZag
	for _, row := range rows {
		structure, err := volume.StructureID(row.AP, row.DV, row.ML)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "metadata", "channels",
				fmt.Sprintf("channel %d", row.Channel), err)
		}
		h, v := zz.Next()
		channels = append(channels, Channel{
			ProbeChannelNumber: row.Channel,
			StructureID:        structure,
			StructureAcronym:   ccf.CleanRegion(row.Region),
			AnteriorPosterior:  float64(row.AP * ccf.VoxelSize),
			DorsalVentral:      float64(row.DV * ccf.VoxelSize),
			LeftRight:          float64(row.ML * ccf.VoxelSize),
			HorizontalPosition: h,
			VerticalPosition:   v,
			ValidData:          true,
		})
	}
	return channels, nil
}

// AssignChannelIDs stamps the probe id and draws a channel id for each
// channel in order.
func AssignChannelIDs(channels []Channel, probeID int64, alloc registry.Allocation) error {
	for i := range channels {
		id, err := alloc.Next(registry.Channel)
		if err != nil {
			return err
		}
		channels[i].ID = id
		channels[i].ProbeID = probeID
	}
	return nil
}

package encode

import (
	"strconv"

	"opuspress/internal/opus"
)

// commandArgs builds the ffmpeg argument list for a resolved parameter
// set. Every flag except the bitrate, application mode, packet loss,
// and channel override is structural and identical across jobs.
func commandArgs(params opus.EncodeParameters, inputPath, outputPath string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-c:a", "libopus",
		"-b:a", params.Bitrate(),
		"-vbr", "on",
		"-compression_level", strconv.Itoa(params.CompressionLevel),
		"-application", string(params.Application),
		"-frame_duration", strconv.Itoa(params.FrameDurationMs),
		"-packet_loss", strconv.Itoa(params.PacketLossPercent),
		"-complexity", strconv.Itoa(params.Complexity),
	}
	if params.BandwidthExtension {
		args = append(args, "-osce_bwe", "1")
	}
	if params.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(params.Channels))
	}
	return append(args, outputPath)
}

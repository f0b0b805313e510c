package ffmpeg

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ProbeInfo is the subset of ffprobe output the pipeline cares about.
type ProbeInfo struct {
	FormatName  string
	Duration    float64
	VideoCodec  string
	AudioCodec  string
	Width       int
	Height      int
	StreamCount int
	HasAudio    bool
	HasVideo    bool
}

// ProbeArgs returns the ffprobe arguments for a single JSON inspection call.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecName   string         `json:"codec_name"`
		CodecType   string         `json:"codec_type"`
		Width       int            `json:"width"`
		Height      int            `json:"height"`
		Disposition map[string]int `json:"disposition"`
	} `json:"streams"`
}

// ParseProbe converts raw ffprobe JSON into a ProbeInfo. The primary video
// stream is the first video stream that is not an attached picture.
func ParseProbe(data []byte) (*ProbeInfo, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	info := &ProbeInfo{
		FormatName:  raw.Format.FormatName,
		StreamCount: len(raw.Streams),
	}
	if d, err := strconv.ParseFloat(strings.TrimSpace(raw.Format.Duration), 64); err == nil {
		info.Duration = d
	}

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if s.Disposition["attached_pic"] == 1 || info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.VideoCodec = strings.ToLower(s.CodecName)
			info.Width = s.Width
			info.Height = s.Height
		case "audio":
			if !info.HasAudio {
				info.HasAudio = true
				info.AudioCodec = strings.ToLower(s.CodecName)
			}
		}
	}
	return info, nil
}

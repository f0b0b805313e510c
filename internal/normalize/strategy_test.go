package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/videonorm/internal/ffmpeg"
)

func TestSelectInitial(t *testing.T) {
	catalog := Catalog()
	ws := NewWorkspace("/media/clip.mp4")

	av1 := Input{Probe: ProbeResult{PrimaryCodec: "av1"}, Workspace: ws}
	assert.Equal(t, StrategyStandardAV1, catalog[SelectInitial(catalog, av1)].ID)

	for _, codec := range []string{"", "h264", "hevc"} {
		in := Input{Probe: ProbeResult{PrimaryCodec: codec}, Workspace: ws}
		assert.Equal(t, StrategyStandard, catalog[SelectInitial(catalog, in)].ID, "codec %q", codec)
	}

	assert.Equal(t, -1, SelectInitial(nil, av1))
}

func TestNextStrategy(t *testing.T) {
	catalog := Catalog()
	index := map[StrategyID]int{}
	for i, s := range catalog {
		index[s.ID] = i
	}

	av1 := Input{Probe: ProbeResult{PrimaryCodec: "av1"}}
	h264 := Input{Probe: ProbeResult{PrimaryCodec: "h264"}}

	failure := func(id StrategyID, sig ffmpeg.Signature) *Failure {
		return &Failure{Strategy: id, Tier: catalog[index[id]].Tier, Signature: sig}
	}

	tests := []struct {
		name  string
		from  StrategyID
		sig   ffmpeg.Signature
		in    Input
		want  StrategyID
		final bool
	}{
		{name: "av1 decode after av1 encode", from: StrategyStandardAV1, sig: ffmpeg.SignatureAV1Decode, in: av1, want: StrategyAV1Fallback},
		{name: "av1 decode on h264 source", from: StrategyStandard, sig: ffmpeg.SignatureAV1Decode, in: h264, want: StrategyRepair},
		{name: "moov after standard", from: StrategyStandard, sig: ffmpeg.SignatureMoovMissing, in: h264, want: StrategyMoovRecovery},
		{name: "moov after av1 encode", from: StrategyStandardAV1, sig: ffmpeg.SignatureMoovMissing, in: av1, want: StrategyMoovRecovery},
		{name: "metadata after standard", from: StrategyStandard, sig: ffmpeg.SignatureMetadataInconsistent, in: h264, want: StrategyRemuxRecompress},
		{name: "generic after standard", from: StrategyStandard, sig: ffmpeg.SignatureGeneric, in: h264, want: StrategyRepair},
		{name: "av1 fallback failed with moov", from: StrategyAV1Fallback, sig: ffmpeg.SignatureMoovMissing, in: av1, want: StrategyRepair},
		{name: "moov recovery failed with metadata", from: StrategyMoovRecovery, sig: ffmpeg.SignatureMetadataInconsistent, in: h264, want: StrategyRepair},
		{name: "remux failed", from: StrategyRemuxRecompress, sig: ffmpeg.SignatureMetadataInconsistent, in: h264, want: StrategyRepair},
		{name: "repair failed", from: StrategyRepair, sig: ffmpeg.SignatureMoovMissing, in: h264, want: StrategyAggressive},
		{name: "aggressive failed", from: StrategyAggressive, sig: ffmpeg.SignatureGeneric, in: h264, want: StrategyRawExtract},
		{name: "raw extract failed", from: StrategyRawExtract, sig: ffmpeg.SignatureGeneric, in: h264, final: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := nextStrategy(catalog, index[tt.from], failure(tt.from, tt.sig), tt.in)
			if tt.final {
				assert.Equal(t, -1, next)
				return
			}
			if assert.GreaterOrEqual(t, next, 0) {
				assert.Equal(t, tt.want, catalog[next].ID)
			}
		})
	}
}

func TestCatalog_Shape(t *testing.T) {
	catalog := Catalog()
	ws := NewWorkspace("/media/clip.mp4")
	in := Input{Source: SourceVideo{Path: ws.Source}, Workspace: ws}

	terminal := 0
	for _, s := range catalog {
		if s.Terminal {
			terminal++
			assert.Equal(t, StrategyRawExtract, s.ID)
		}
		steps := s.Build(in)
		if assert.NotEmpty(t, steps, s.ID) {
			last := steps[len(steps)-1]
			assert.Equal(t, ws.Compressed, last.Output, "%s must end on the candidate", s.ID)
			assert.Equal(t, ws.Compressed, last.Args[len(last.Args)-1])
		}
	}
	assert.Equal(t, 1, terminal)
	assert.Equal(t, StrategyRawExtract, catalog[len(catalog)-1].ID)
}

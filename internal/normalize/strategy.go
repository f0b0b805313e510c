package normalize

import "github.com/your-org/videonorm/internal/ffmpeg"

// StrategyID names one entry of the escalation catalog.
type StrategyID string

const (
	StrategyStandardAV1     StrategyID = "standard-av1"
	StrategyStandard        StrategyID = "standard"
	StrategyAV1Fallback     StrategyID = "av1-fallback"
	StrategyMoovRecovery    StrategyID = "moov-recovery"
	StrategyRemuxRecompress StrategyID = "remux-recompress"
	StrategyRepair          StrategyID = "repair-recompress"
	StrategyAggressive      StrategyID = "aggressive"
	StrategyRawExtract      StrategyID = "raw-extract"
)

// Tier groups strategies by how they are reached.
type Tier int

const (
	// TierInitial strategies run first, chosen by codec classification.
	TierInitial Tier = iota
	// TierTargeted strategies are shortcuts gated on a recognized failure
	// signature of an initial attempt.
	TierTargeted
	// TierGeneric is the catch-all ladder.
	TierGeneric
)

// Failure describes the attempt a trigger is evaluated against.
type Failure struct {
	Strategy  StrategyID
	Tier      Tier
	Signature ffmpeg.Signature
	Stderr    string
}

// Input is everything a strategy needs to build its commands.
type Input struct {
	Source    SourceVideo
	Probe     ProbeResult
	Workspace Workspace
}

// Step is one ffmpeg invocation. Output is the file the step writes.
type Step struct {
	Name   string
	Args   []string
	Output string
}

// Strategy is an immutable catalog entry. Trigger receives nil for the very
// first attempt.
type Strategy struct {
	ID       StrategyID
	Tier     Tier
	Trigger  func(prior *Failure, in Input) bool
	Build    func(in Input) []Step
	Terminal bool
}

const (
	crf          = "28"
	maxProbe     = "2147483647"
	stereo       = "2"
	sampleRate   = "44100"
	smallMuxQ    = "1024"
	largeMuxQ    = "4096"
	presetFast   = "fast"
	presetMedium = "medium"
	presetUltra  = "ultrafast"
)

// Catalog returns the escalation ladder in priority order.
func Catalog() []Strategy {
	return []Strategy{
		{
			ID:      StrategyStandardAV1,
			Tier:    TierInitial,
			Trigger: func(prior *Failure, in Input) bool { return prior == nil && in.Probe.IsAV1() },
			Build: func(in Input) []Step {
				args := []string{"-hwaccel", "none", "-i", in.Source.Path}
				args = append(args, webEncode(presetMedium)...)
				return []Step{{Name: "encode", Args: append(args, in.Workspace.Compressed), Output: in.Workspace.Compressed}}
			},
		},
		{
			ID:      StrategyStandard,
			Tier:    TierInitial,
			Trigger: func(prior *Failure, in Input) bool { return prior == nil && !in.Probe.IsAV1() },
			Build: func(in Input) []Step {
				return []Step{encodeStep(in.Source.Path, in.Workspace.Compressed)}
			},
		},
		{
			ID:   StrategyAV1Fallback,
			Tier: TierTargeted,
			Trigger: func(prior *Failure, in Input) bool {
				return afterInitial(prior, ffmpeg.SignatureAV1Decode) && in.Probe.IsAV1()
			},
			Build: func(in Input) []Step {
				args := []string{
					"-threads", "1",
					"-hwaccel", "none",
					"-i", in.Source.Path,
					"-c:v", "libx264", "-crf", crf, "-preset", presetUltra,
					"-c:a", "aac", "-ac", stereo, "-ar", sampleRate,
					"-movflags", "+faststart",
					"-pix_fmt", "yuv420p",
					"-avoid_negative_ts", "make_zero",
					"-max_muxing_queue_size", smallMuxQ,
					in.Workspace.Compressed,
				}
				return []Step{{Name: "encode", Args: args, Output: in.Workspace.Compressed}}
			},
		},
		{
			ID:   StrategyMoovRecovery,
			Tier: TierTargeted,
			Trigger: func(prior *Failure, _ Input) bool {
				return afterInitial(prior, ffmpeg.SignatureMoovMissing)
			},
			Build: func(in Input) []Step {
				args := []string{
					"-analyzeduration", maxProbe, "-probesize", maxProbe,
					"-i", in.Source.Path,
					"-c:v", "libx264", "-crf", crf, "-preset", presetUltra,
					"-c:a", "aac", "-movflags", "+faststart",
					"-f", "mp4", "-y",
					in.Workspace.Compressed,
				}
				return []Step{{Name: "recover", Args: args, Output: in.Workspace.Compressed}}
			},
		},
		{
			ID:   StrategyRemuxRecompress,
			Tier: TierTargeted,
			Trigger: func(prior *Failure, _ Input) bool {
				return afterInitial(prior, ffmpeg.SignatureMetadataInconsistent)
			},
			Build: func(in Input) []Step {
				remux := []string{
					"-i", in.Source.Path,
					"-c", "copy",
					"-avoid_negative_ts", "make_zero",
					"-fflags", "+genpts",
					"-map_metadata", "-1",
					in.Workspace.Remuxed,
				}
				return []Step{
					{Name: "remux", Args: remux, Output: in.Workspace.Remuxed},
					encodeStep(in.Workspace.Remuxed, in.Workspace.Compressed),
				}
			},
		},
		{
			ID:      StrategyRepair,
			Tier:    TierGeneric,
			Trigger: afterAnyFailure,
			Build: func(in Input) []Step {
				repair := []string{
					"-err_detect", "ignore_err",
					"-i", in.Source.Path,
					"-c", "copy", "-f", "mp4",
					in.Workspace.Repaired,
				}
				return []Step{
					{Name: "repair", Args: repair, Output: in.Workspace.Repaired},
					encodeStep(in.Workspace.Repaired, in.Workspace.Compressed),
				}
			},
		},
		{
			ID:      StrategyAggressive,
			Tier:    TierGeneric,
			Trigger: afterAnyFailure,
			Build: func(in Input) []Step {
				args := []string{
					"-err_detect", "ignore_err",
					"-i", in.Source.Path,
					"-c:v", "libx264", "-crf", crf, "-preset", presetUltra,
					"-c:a", "aac",
					"-movflags", "+faststart",
					"-pix_fmt", "yuv420p",
					"-avoid_negative_ts", "make_zero",
					"-fflags", "+genpts+discardcorrupt",
					"-max_muxing_queue_size", smallMuxQ,
					"-fps_mode", "cfr",
					in.Workspace.Compressed,
				}
				return []Step{{Name: "encode", Args: args, Output: in.Workspace.Compressed}}
			},
		},
		{
			ID:       StrategyRawExtract,
			Tier:     TierGeneric,
			Trigger:  afterAnyFailure,
			Terminal: true,
			Build: func(in Input) []Step {
				args := []string{
					"-analyzeduration", maxProbe, "-probesize", maxProbe,
					"-err_detect", "ignore_err",
					"-i", in.Source.Path,
					"-map", "0", "-ignore_unknown",
					"-c:v", "libx264", "-crf", crf, "-preset", presetUltra,
					"-c:a", "aac", "-ac", stereo, "-ar", sampleRate,
					"-pix_fmt", "yuv420p",
					"-f", "mp4", "-movflags", "+faststart",
					"-avoid_negative_ts", "make_zero",
					"-fflags", "+genpts+discardcorrupt+igndts",
					"-fps_mode", "cfr",
					"-max_muxing_queue_size", largeMuxQ,
					"-max_interleave_delta", "0",
					in.Workspace.Compressed,
				}
				return []Step{{Name: "extract", Args: args, Output: in.Workspace.Compressed}}
			},
		},
	}
}

// SelectInitial returns the index of the first strategy eligible with no
// prior failure, or -1.
func SelectInitial(catalog []Strategy, in Input) int {
	return nextStrategy(catalog, -1, nil, in)
}

// nextStrategy scans forward from the entry after current. Movement is
// strictly forward: a strategy is never retried.
func nextStrategy(catalog []Strategy, current int, prior *Failure, in Input) int {
	for i := current + 1; i < len(catalog); i++ {
		if catalog[i].Trigger(prior, in) {
			return i
		}
	}
	return -1
}

// afterInitial gates targeted shortcuts: they follow only an initial attempt
// whose failure carried sig, so a failed shortcut drops to the generic ladder
// instead of a sibling shortcut.
func afterInitial(prior *Failure, sig ffmpeg.Signature) bool {
	return prior != nil && prior.Tier == TierInitial && prior.Signature == sig
}

func afterAnyFailure(prior *Failure, _ Input) bool {
	return prior != nil
}

func webEncode(preset string) []string {
	return []string{
		"-c:v", "libx264",
		"-crf", crf,
		"-preset", preset,
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-pix_fmt", "yuv420p",
	}
}

func encodeStep(input, output string) Step {
	args := append([]string{"-i", input}, webEncode(presetFast)...)
	return Step{Name: "encode", Args: append(args, output), Output: output}
}

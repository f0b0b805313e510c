package ffmpeg

import "regexp"

// Signature is the closed set of failure classes recognized in ffmpeg stderr.
type Signature string

const (
	SignatureGeneric              Signature = "generic"
	SignatureAV1Decode            Signature = "av1_decode"
	SignatureMoovMissing          Signature = "moov_missing"
	SignatureMetadataInconsistent Signature = "metadata_inconsistent"
)

// Pre-compiled patterns for failure classification. Matching is
// case-sensitive because the fragments are verbatim libav messages.
var (
	reAV1Decode = regexp.MustCompile(
		`doesn't support hardware accelerated AV1 decoding|` +
			`Error submitting packet to decoder|` +
			`Failed to get pixel format`)

	reMoovMissing = regexp.MustCompile(`moov atom not found`)

	reMetadataInconsistent = regexp.MustCompile(
		`contradictionary STSC and STCO|` +
			`error reading header`)
)

// Classify maps raw diagnostic text from a failed attempt to a Signature.
// Precedence is AV1 decode, then missing moov atom, then metadata
// inconsistency. A truncated file commonly reports both "moov atom not
// found" and "error reading header"; the moov case wins.
func Classify(stderr string) Signature {
	switch {
	case reAV1Decode.MatchString(stderr):
		return SignatureAV1Decode
	case reMoovMissing.MatchString(stderr):
		return SignatureMoovMissing
	case reMetadataInconsistent.MatchString(stderr):
		return SignatureMetadataInconsistent
	default:
		return SignatureGeneric
	}
}

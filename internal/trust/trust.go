// Package trust computes the read-time trust score (§4.10) and the
// quality-issue assessment taxonomy (§4.11) built on top of it.
package trust

import "github.com/agentmem/agentmem/internal/model"

// LowTrustThreshold is the cutoff below which assessment flags LowTrust.
const LowTrustThreshold = 0.3

func verificationFactor(v model.Verification) float64 {
	switch v {
	case model.VerificationVerified:
		return 1.0
	case model.VerificationUnverified:
		return 0.5
	case model.VerificationDisputed:
		return 0.2
	case model.VerificationOutdated:
		return 0.1
	default:
		return 0.5
	}
}

func sourceFactor(s model.SourceKind) float64 {
	switch s {
	case model.SourceManual:
		return 0.9
	case model.SourceDerived:
		return 0.7
	case model.SourceImport:
		return 0.6
	case model.SourceAutoCapture:
		return 0.5
	default:
		return 0.5
	}
}

func contradictionFactor(count int) float64 {
	switch {
	case count <= 0:
		return 1.0
	case count == 1:
		return 0.5
	default:
		return 0.2
	}
}

func qualityFactor(m *model.Memory) float64 {
	hasTags := len(m.Tags) > 0
	longEnough := len(m.Content) >= 50
	switch {
	case hasTags && longEnough:
		return 1.0
	case hasTags || longEnough:
		return 0.6
	default:
		return 0.3
	}
}

// Score computes the 4-factor fused trust score, clamped to [0,1].
func Score(m *model.Memory, contradictionCount int) float64 {
	v := verificationFactor(m.Verification)
	s := sourceFactor(m.Source.Kind)
	c := contradictionFactor(contradictionCount)
	q := qualityFactor(m)

	score := 0.40*v + 0.30*s + 0.20*c + 0.10*q
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

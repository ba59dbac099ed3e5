package trust

import (
	"testing"

	"github.com/agentmem/agentmem/internal/model"
)

func TestScore_VerifiedManualNoContradictionsIsHigh(t *testing.T) {
	m := &model.Memory{
		Verification: model.VerificationVerified,
		Source:       model.Source{Kind: model.SourceManual},
		Tags:         []string{"go"},
		Content:      "a sufficiently long piece of content to satisfy the quality factor check",
	}
	score := Score(m, 0)
	if score < 0.9 {
		t.Errorf("expected a high trust score, got %f", score)
	}
}

func TestScore_DisputedWithContradictionsIsLow(t *testing.T) {
	m := &model.Memory{
		Verification: model.VerificationDisputed,
		Source:       model.Source{Kind: model.SourceAutoCapture},
	}
	score := Score(m, 3)
	if score > 0.3 {
		t.Errorf("expected a low trust score, got %f", score)
	}
}

func TestScore_ClampedToUnitInterval(t *testing.T) {
	m := &model.Memory{Verification: model.VerificationVerified, Source: model.Source{Kind: model.SourceManual}}
	if s := Score(m, 0); s < 0 || s > 1 {
		t.Errorf("score out of [0,1]: %f", s)
	}
	m2 := &model.Memory{Verification: model.VerificationOutdated, Source: model.Source{Kind: model.SourceAutoCapture}}
	if s := Score(m2, 5); s < 0 || s > 1 {
		t.Errorf("score out of [0,1]: %f", s)
	}
}

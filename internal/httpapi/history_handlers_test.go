package httpapi

import (
	"testing"

	"github.com/dkurian/surtitle/internal/store"
)

func TestCostBreakdown(t *testing.T) {
	total, breakdown := costBreakdown(store.UsageTotals{
		Records:          100,
		AudioSeconds:     600,  // 10 minutes at 2.4 cents/min
		TranslationChars: 5000, // at 2 cents/1K chars
	})

	if got := breakdown["speech"]; got != 24 {
		t.Errorf("speech = %d cents, want 24", got)
	}
	if got := breakdown["translate"]; got != 10 {
		t.Errorf("translate = %d cents, want 10", got)
	}
	if total != 34 {
		t.Errorf("total = %d cents, want 34", total)
	}

	// Monitor synthesis is not persisted per session, so the breakdown
	// carries no tts line.
	if _, ok := breakdown["tts"]; ok {
		t.Errorf("breakdown = %v, must not contain a tts line", breakdown)
	}
	if len(breakdown) != 2 {
		t.Errorf("breakdown has %d lines, want 2: %v", len(breakdown), breakdown)
	}
}

func TestCostBreakdown_EmptySession(t *testing.T) {
	total, breakdown := costBreakdown(store.UsageTotals{})
	if total != 0 {
		t.Errorf("total = %d cents, want 0", total)
	}
	if breakdown["speech"] != 0 || breakdown["translate"] != 0 {
		t.Errorf("breakdown = %v, want zero lines", breakdown)
	}
}

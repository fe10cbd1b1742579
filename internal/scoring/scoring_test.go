package scoring

import (
	"testing"

	"live-quiz-service/internal/domain"
)

func question() domain.Question {
	return domain.Question{ID: "q1", TimeLimitSeconds: 30, BaseScore: 1000}
}

func TestScoreBounds(t *testing.T) {
	e := New(DefaultConfig())
	q := question()

	if got := e.Score(q, true, 0); got != 1000 {
		t.Fatalf("expected full base score at zero latency, got %d", got)
	}
	if got := e.Score(q, true, 30_000); got != 500 {
		t.Fatalf("expected floor score at time limit, got %d", got)
	}
	if got := e.Score(q, true, 15_000); got != 750 {
		t.Fatalf("expected 750 at half time, got %d", got)
	}
	for _, elapsed := range []int64{0, 1, 15_000, 30_000, 90_000} {
		if got := e.Score(q, false, elapsed); got != 0 {
			t.Fatalf("expected 0 for incorrect answer at %dms, got %d", elapsed, got)
		}
	}
}

func TestScoreNeverDropsBelowFloor(t *testing.T) {
	e := New(Config{BaseScore: 1000, DecayFactor: 2, MinScoreFraction: 0.25})
	if got := e.Score(question(), true, 29_000); got != 250 {
		t.Fatalf("expected floor of 250, got %d", got)
	}
	if got := e.Score(question(), true, -50); got != 1000 {
		t.Fatalf("expected negative latency treated as zero, got %d", got)
	}
}

func TestScoreFallsBackToConfiguredBase(t *testing.T) {
	e := New(Config{BaseScore: 200, DecayFactor: 0.5, MinScoreFraction: 0.5})
	q := domain.Question{ID: "q2"} // default 30s limit, no base score
	if got := e.Score(q, true, 0); got != 200 {
		t.Fatalf("expected configured base 200, got %d", got)
	}
	if got := e.Score(q, true, 30_000); got != 100 {
		t.Fatalf("expected 100 at default time limit, got %d", got)
	}
}

func TestNewNormalizesInvalidConfig(t *testing.T) {
	cfg := New(Config{BaseScore: -1, DecayFactor: -3, MinScoreFraction: 4}).Config()
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestQuizValidate(t *testing.T) {
	good := Quiz{ID: "q", Questions: []Question{{Options: []Option{{Text: "a"}, {Text: "b"}}, CorrectOptionIndex: 1}}}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid quiz, got %v", err)
	}
	if err := (Quiz{ID: "empty"}).Validate(); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected no questions, got %v", err)
	}

	oneOption := Quiz{Questions: []Question{{Options: []Option{{Text: "a"}}}}}
	if err := oneOption.Validate(); !errors.Is(err, ErrInvalidQuiz) {
		t.Fatalf("expected invalid quiz for a single option, got %v", err)
	}
	outOfRange := Quiz{Questions: []Question{{Options: []Option{{Text: "a"}, {Text: "b"}}, CorrectOptionIndex: 2}}}
	if err := outOfRange.Validate(); !errors.Is(err, ErrInvalidQuiz) {
		t.Fatalf("expected invalid quiz for correct index, got %v", err)
	}
}

func TestQuestionTimeLimitDefault(t *testing.T) {
	if got := (Question{}).TimeLimit(); got != DefaultTimeLimitSeconds*time.Second {
		t.Fatalf("unexpected default limit %v", got)
	}
	if got := (Question{TimeLimitSeconds: 5}).TimeLimit(); got != 5*time.Second {
		t.Fatalf("unexpected limit %v", got)
	}
}

func TestErrorCodeUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", ErrStaleSubmission)
	if got := ErrorCode(wrapped); got != "staleSubmission" {
		t.Fatalf("unexpected code %q", got)
	}
	if got := ErrorCode(errors.New("boom")); got != "internalError" {
		t.Fatalf("unexpected fallback code %q", got)
	}
}

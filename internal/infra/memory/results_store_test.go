package memory

import (
	"context"
	"testing"

	"live-quiz-service/internal/domain"
)

func TestResultsStoreOverwritesBySession(t *testing.T) {
	store := NewResultsStore()
	ctx := context.Background()

	_ = store.SaveResults(ctx, domain.SessionResults{SessionID: "s1", QuestionsAnswered: 1})
	_ = store.SaveResults(ctx, domain.SessionResults{SessionID: "s1", QuestionsAnswered: 2})
	_ = store.SaveResults(ctx, domain.SessionResults{SessionID: "s2"})

	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}
	res, ok := store.Get("s1")
	if !ok || res.QuestionsAnswered != 2 {
		t.Fatalf("expected latest results for s1, got %+v", res)
	}
}

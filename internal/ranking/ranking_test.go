package ranking

import (
	"reflect"
	"testing"
	"time"
)

func TestComputeOrdersByScore(t *testing.T) {
	ranked := Compute([]Standing{
		{ParticipantID: "p3", Score: 0},
		{ParticipantID: "p1", Score: 1000},
		{ParticipantID: "p2", Score: 750},
	})
	want := []string{"p1", "p2", "p3"}
	for i, s := range ranked {
		if s.ParticipantID != want[i] || s.Rank != i+1 {
			t.Fatalf("position %d: expected %s rank %d, got %+v", i, want[i], i+1, s)
		}
	}
}

func TestComputeTieBreaks(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	ranked := Compute([]Standing{
		{ParticipantID: "c", Score: 500},
		{ParticipantID: "b", Score: 500, FirstCorrectAt: base.Add(2 * time.Second)},
		{ParticipantID: "a", Score: 500, FirstCorrectAt: base.Add(2 * time.Second)},
		{ParticipantID: "d", Score: 500, FirstCorrectAt: base},
	})
	got := make([]string, len(ranked))
	for i, s := range ranked {
		got[i] = s.ParticipantID
	}
	want := []string{"d", "a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i, s := range ranked {
		if s.Rank != i+1 {
			t.Fatalf("expected ordinal rank %d for %s, got %d", i+1, s.ParticipantID, s.Rank)
		}
	}
}

func TestComputeIsRepeatable(t *testing.T) {
	input := []Standing{
		{ParticipantID: "x", Score: 100},
		{ParticipantID: "y", Score: 100},
		{ParticipantID: "z", Score: 100},
		{ParticipantID: "w", Score: 300},
	}
	first := Compute(input)
	for i := 0; i < 50; i++ {
		// reversed input must still produce the same order
		reversed := make([]Standing, len(input))
		for j := range input {
			reversed[len(input)-1-j] = input[j]
		}
		if got := Compute(reversed); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
	if input[0].Rank != 0 {
		t.Fatalf("input was mutated: %+v", input[0])
	}
}

func TestDelta(t *testing.T) {
	ranked := Compute([]Standing{
		{ParticipantID: "a", Score: 10, PreviousRank: 3},
		{ParticipantID: "b", Score: 5, PreviousRank: 1},
		{ParticipantID: "c", Score: 1},
	})
	if ranked[0].Delta() != 2 {
		t.Fatalf("expected a to climb 2, got %d", ranked[0].Delta())
	}
	if ranked[1].Delta() != -1 {
		t.Fatalf("expected b to drop 1, got %d", ranked[1].Delta())
	}
	if ranked[2].Delta() != 0 {
		t.Fatalf("expected zero delta without previous rank, got %d", ranked[2].Delta())
	}
}

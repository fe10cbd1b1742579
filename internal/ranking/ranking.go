// Package ranking orders participants into ordinal ranks.
package ranking

import (
	"sort"
	"time"
)

// Standing is one participant's position input and output.
// FirstCorrectAt is zero for participants without a correct answer yet.
type Standing struct {
	ParticipantID  string
	DisplayName    string
	Score          int
	FirstCorrectAt time.Time
	PreviousRank   int
	Rank           int
}

// Delta is previousRank − rank; positive means the participant climbed.
// It is zero for a first ranking.
func (s Standing) Delta() int {
	if s.PreviousRank == 0 {
		return 0
	}
	return s.PreviousRank - s.Rank
}

// Compute returns a ranked copy of standings: score descending, then the
// earliest first correct answer, then participant id. Ranks are 1..n with no
// shared positions. The input is not modified.
func Compute(standings []Standing) []Standing {
	out := make([]Standing, len(standings))
	copy(out, standings)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.FirstCorrectAt.Equal(b.FirstCorrectAt) {
			// never correct sorts after any correct answer
			if a.FirstCorrectAt.IsZero() {
				return false
			}
			if b.FirstCorrectAt.IsZero() {
				return true
			}
			return a.FirstCorrectAt.Before(b.FirstCorrectAt)
		}
		return a.ParticipantID < b.ParticipantID
	})

	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

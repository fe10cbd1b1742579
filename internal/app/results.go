package app

import (
	"math"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/ranking"
)

// Snapshot is a copy of a session taken on its worker.
type Snapshot struct {
	ID             string               `json:"sessionId"`
	Code           string               `json:"joinCode"`
	QuizID         string               `json:"quizId"`
	Title          string               `json:"title"`
	State          domain.SessionState  `json:"state"`
	QuestionIndex  int                  `json:"questionIndex"`
	TotalQuestions int                  `json:"totalQuestions"`
	Graded         int                  `json:"questionsAnswered"`
	StartedAt      time.Time            `json:"startedAt"`
	HostConnected  bool                 `json:"hostConnected"`
	Participants   []domain.Participant `json:"participants"`
	Waiting        []domain.Participant `json:"waiting"`
	// Submissions holds one slice per opened question, ordered by submission time.
	Submissions [][]domain.Submission `json:"-"`
}

// Participant finds a roster entry by id.
func (s Snapshot) Participant(id string) (domain.Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Participant{}, false
}

// DetailedResults is the host report built from graded questions.
type DetailedResults struct {
	OverallRanking  []RankedParticipant `json:"overallRanking"`
	QuestionDetails []QuestionDetail    `json:"questionDetails"`
	Summary         ResultsSummary      `json:"summary"`
	Metadata        ResultsMetadata     `json:"metadata"`
}

type RankedParticipant struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Avatar       string            `json:"avatar,omitempty"`
	Rank         int               `json:"rank"`
	Score        int               `json:"score"`
	CorrectCount int               `json:"correctCount"`
	Responses    []domain.Response `json:"responses"`
}

type QuestionDetail struct {
	QuestionIndex      int             `json:"questionIndex"`
	QuestionID         string          `json:"questionId"`
	Text               string          `json:"text"`
	Options            []domain.Option `json:"options"`
	CorrectOptionIndex int             `json:"correctOptionIndex"`
	TotalAttempts      int             `json:"totalAttempts"`
	CorrectAnswers     int             `json:"correctAnswers"`
	CorrectAnswerRate  float64         `json:"correctAnswerRate"`
	OptionDistribution []OptionCount   `json:"optionDistribution"`
}

type OptionCount struct {
	OptionIndex int     `json:"optionIndex"`
	Text        string  `json:"text"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
	IsCorrect   bool    `json:"isCorrect"`
}

type QuestionRate struct {
	QuestionIndex     int     `json:"questionIndex"`
	Text              string  `json:"text"`
	CorrectAnswerRate float64 `json:"correctAnswerRate"`
}

type ResultsSummary struct {
	TotalParticipants      int            `json:"totalParticipants"`
	AverageScore           float64        `json:"averageScore"`
	MostDifficultQuestions []QuestionRate `json:"mostDifficultQuestions"`
	EasiestQuestions       []QuestionRate `json:"easiestQuestions"`
}

type ResultsMetadata struct {
	SessionID         string    `json:"sessionId"`
	JoinCode          string    `json:"joinCode"`
	QuizID            string    `json:"quizId"`
	Title             string    `json:"title"`
	StartedAt         time.Time `json:"startedAt"`
	GeneratedAt       time.Time `json:"generatedAt"`
	TotalQuestions    int       `json:"totalQuestions"`
	QuestionsAnswered int       `json:"questionsAnswered"`
}

const highlightedQuestions = 3

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:             s.id,
		Code:           s.code,
		QuizID:         s.quiz.ID,
		Title:          s.quiz.Title,
		State:          s.state,
		QuestionIndex:  s.index,
		TotalQuestions: len(s.quiz.Questions),
		Graded:         s.graded,
		StartedAt:      s.startedAt,
		HostConnected:  s.hostConn != "",
		Participants:   make([]domain.Participant, 0, len(s.order)),
		Waiting:        make([]domain.Participant, 0, len(s.waitOrder)),
		Submissions:    make([][]domain.Submission, len(s.ledger)),
	}
	for _, id := range s.order {
		snap.Participants = append(snap.Participants, *s.participants[id])
	}
	for _, id := range s.waitOrder {
		snap.Waiting = append(snap.Waiting, *s.waiting[id])
	}
	for i, ledger := range s.ledger {
		subs := make([]domain.Submission, 0, len(ledger))
		for _, sub := range ledger {
			subs = append(subs, *sub)
		}
		sort.Slice(subs, func(a, b int) bool {
			if !subs[a].SubmittedAt.Equal(subs[b].SubmittedAt) {
				return subs[a].SubmittedAt.Before(subs[b].SubmittedAt)
			}
			return subs[a].ParticipantID < subs[b].ParticipantID
		})
		snap.Submissions[i] = subs
	}
	return snap
}

// finalStandings ranks the roster on current totals.
func (s *Session) finalStandings() []ranking.Standing {
	standings := make([]ranking.Standing, 0, len(s.order))
	for _, id := range s.order {
		p := s.participants[id]
		standings = append(standings, ranking.Standing{
			ParticipantID:  p.ID,
			DisplayName:    p.DisplayName,
			Score:          p.CumulativeScore,
			FirstCorrectAt: p.FirstCorrectAt,
			PreviousRank:   p.Rank,
		})
	}
	return ranking.Compute(standings)
}

// responses lists one entry per graded question; unanswered questions carry NoAnswer.
func (s *Session) responses(participantID string) ([]domain.Response, int) {
	out := make([]domain.Response, 0, s.graded)
	correct := 0
	for i := 0; i < s.graded; i++ {
		q := s.quiz.Questions[i]
		r := domain.Response{QuestionIndex: i, QuestionID: q.ID, ChosenOptionIndex: domain.NoAnswer}
		if sub, ok := s.ledger[i][participantID]; ok && sub.Graded {
			r.ChosenOptionIndex = sub.ChosenOptionIndex
			r.IsCorrect = sub.IsCorrect
			r.Score = sub.Score
			r.ElapsedMs = sub.ElapsedMs
			if sub.IsCorrect {
				correct++
			}
		}
		out = append(out, r)
	}
	return out, correct
}

func (s *Session) buildResults(completedAt time.Time, reason string) domain.SessionResults {
	total := len(s.quiz.Questions)
	res := domain.SessionResults{
		SessionID:         s.id,
		JoinCode:          s.code,
		QuizID:            s.quiz.ID,
		HostID:            s.hostID,
		Reason:            reason,
		StartedAt:         s.startedAt,
		CompletedAt:       completedAt,
		TotalQuestions:    total,
		QuestionsAnswered: s.graded,
		Participants:      make([]domain.ParticipantResult, 0, len(s.order)),
	}
	for _, st := range s.finalStandings() {
		p := s.participants[st.ParticipantID]
		responses, correct := s.responses(p.ID)
		res.Participants = append(res.Participants, domain.ParticipantResult{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Avatar:        p.Avatar,
			Rank:          st.Rank,
			Score:         p.CumulativeScore,
			CorrectCount:  correct,
			Percentage:    percentage(correct, total),
			Responses:     responses,
		})
	}
	return res
}

func (s *Session) buildDetailedResults() DetailedResults {
	report := DetailedResults{
		OverallRanking:  make([]RankedParticipant, 0, len(s.order)),
		QuestionDetails: make([]QuestionDetail, 0, s.graded),
		Metadata: ResultsMetadata{
			SessionID:         s.id,
			JoinCode:          s.code,
			QuizID:            s.quiz.ID,
			Title:             s.quiz.Title,
			StartedAt:         s.startedAt,
			GeneratedAt:       s.now(),
			TotalQuestions:    len(s.quiz.Questions),
			QuestionsAnswered: s.graded,
		},
	}

	scoreSum := 0
	for _, st := range s.finalStandings() {
		p := s.participants[st.ParticipantID]
		responses, correct := s.responses(p.ID)
		scoreSum += p.CumulativeScore
		report.OverallRanking = append(report.OverallRanking, RankedParticipant{
			ID:           p.ID,
			Name:         p.DisplayName,
			Avatar:       p.Avatar,
			Rank:         st.Rank,
			Score:        p.CumulativeScore,
			CorrectCount: correct,
			Responses:    responses,
		})
	}

	rates := make([]QuestionRate, 0, s.graded)
	for i := 0; i < s.graded; i++ {
		q := s.quiz.Questions[i]
		detail := QuestionDetail{
			QuestionIndex:      i,
			QuestionID:         q.ID,
			Text:               q.Text,
			Options:            q.Options,
			CorrectOptionIndex: q.CorrectOptionIndex,
			OptionDistribution: make([]OptionCount, len(q.Options)),
		}
		for j, opt := range q.Options {
			detail.OptionDistribution[j] = OptionCount{OptionIndex: j, Text: opt.Text, IsCorrect: j == q.CorrectOptionIndex}
		}
		for _, sub := range s.ledger[i] {
			detail.TotalAttempts++
			if sub.IsCorrect {
				detail.CorrectAnswers++
			}
			if sub.ChosenOptionIndex >= 0 && sub.ChosenOptionIndex < len(q.Options) {
				detail.OptionDistribution[sub.ChosenOptionIndex].Count++
			}
		}
		for j := range detail.OptionDistribution {
			detail.OptionDistribution[j].Percentage = rate(detail.OptionDistribution[j].Count, detail.TotalAttempts)
		}
		detail.CorrectAnswerRate = rate(detail.CorrectAnswers, detail.TotalAttempts)
		report.QuestionDetails = append(report.QuestionDetails, detail)
		rates = append(rates, QuestionRate{QuestionIndex: i, Text: q.Text, CorrectAnswerRate: detail.CorrectAnswerRate})
	}

	report.Summary.TotalParticipants = len(s.order)
	if len(s.order) > 0 {
		report.Summary.AverageScore = math.Round(float64(scoreSum)/float64(len(s.order))*100) / 100
	}
	report.Summary.MostDifficultQuestions = pickQuestions(rates, func(a, b QuestionRate) bool {
		return a.CorrectAnswerRate < b.CorrectAnswerRate
	})
	report.Summary.EasiestQuestions = pickQuestions(rates, func(a, b QuestionRate) bool {
		return a.CorrectAnswerRate > b.CorrectAnswerRate
	})
	return report
}

func pickQuestions(rates []QuestionRate, less func(a, b QuestionRate) bool) []QuestionRate {
	sorted := append([]QuestionRate(nil), rates...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > highlightedQuestions {
		sorted = sorted[:highlightedQuestions]
	}
	return sorted
}

// percentage rounds to a whole number.
func percentage(n, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}

// rate is a percentage with two decimals.
func rate(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*10000) / 100
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/ranking"
	"live-quiz-service/internal/scoring"
	"live-quiz-service/internal/timer"
)

// SessionConfig tunes the live session lifecycle.
type SessionConfig struct {
	MinParticipants   int
	Countdown         time.Duration
	PrepareDelay      time.Duration
	QuestionGrace     time.Duration
	IdleTimeout       time.Duration
	IdleCheckInterval time.Duration
	PersistTimeout    time.Duration
	QueueSize         int
	Scoring           scoring.Config
}

// DefaultSessionConfig mirrors the classroom defaults: 3s countdowns, one
// participant minimum, an hour of idleness before the reaper ends a session.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MinParticipants:   1,
		Countdown:         3 * time.Second,
		PrepareDelay:      3 * time.Second,
		IdleTimeout:       time.Hour,
		IdleCheckInterval: 30 * time.Second,
		PersistTimeout:    10 * time.Second,
		QueueSize:         256,
		Scoring:           scoring.DefaultConfig(),
	}
}

// SessionDeps are the collaborators of a session. Nil collaborators are skipped.
type SessionDeps struct {
	Emitter    Emitter
	Results    ResultsStore
	Notifier   Notifier
	Scheduler  timer.Scheduler
	Now        func() time.Time
	Logger     *slog.Logger
	OnComplete func(*Session)
}

type envelope struct {
	ev    Event
	reply chan reply
}

type reply struct {
	value any
	err   error
}

// Session is one live run of a quiz. All mutable state below the marker is
// owned by the worker goroutine; other goroutines talk to it through Post/Do.
type Session struct {
	id        string
	code      string
	hostID    string
	quiz      domain.Quiz
	cfg       SessionConfig
	scorer    scoring.Engine
	createdAt time.Time

	emitter    Emitter
	results    ResultsStore
	notifier   Notifier
	sched      timer.Scheduler
	now        func() time.Time
	logger     *slog.Logger
	onComplete func(*Session)

	events    chan envelope
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	published   atomic.Value // domain.SessionState
	completedAt atomic.Int64

	// worker-owned
	state        domain.SessionState
	index        int
	graded       int
	participants map[string]*domain.Participant
	order        []string
	waiting      map[string]*domain.Participant
	waitOrder    []string
	ledger       []map[string]*domain.Submission
	hostConn     string
	startedAt    time.Time
	openedAt     time.Time
	deadline     time.Time
	preparing    bool
	lastActivity time.Time
	timers       map[timerKind]timer.Timer
	seq          map[timerKind]uint64
}

// NewSession builds a session in LOBBY and starts its worker.
func NewSession(id, code, hostID string, quiz domain.Quiz, cfg SessionConfig, deps SessionDeps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Scheduler == nil {
		deps.Scheduler = timer.NewGroup()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultSessionConfig().QueueSize
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultSessionConfig().PersistTimeout
	}

	now := deps.Now()
	s := &Session{
		id:           id,
		code:         code,
		hostID:       hostID,
		quiz:         quiz,
		cfg:          cfg,
		scorer:       scoring.New(cfg.Scoring),
		createdAt:    now,
		emitter:      deps.Emitter,
		results:      deps.Results,
		notifier:     deps.Notifier,
		sched:        deps.Scheduler,
		now:          deps.Now,
		logger:       deps.Logger.With("code", code, "session", id),
		onComplete:   deps.OnComplete,
		events:       make(chan envelope, cfg.QueueSize),
		quit:         make(chan struct{}),
		stopped:      make(chan struct{}),
		state:        domain.StateLobby,
		participants: make(map[string]*domain.Participant),
		waiting:      make(map[string]*domain.Participant),
		lastActivity: now,
		timers:       make(map[timerKind]timer.Timer),
		seq:          make(map[timerKind]uint64),
	}
	s.published.Store(domain.StateLobby)

	if cfg.IdleTimeout > 0 && cfg.IdleCheckInterval > 0 {
		s.timers[timerIdle] = s.sched.Every(cfg.IdleCheckInterval, func() {
			s.postTimer(timerIdle, 0)
		})
	}
	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Code() string { return s.code }

func (s *Session) HostID() string { return s.hostID }

func (s *Session) QuizID() string { return s.quiz.ID }

func (s *Session) Quiz() domain.Quiz { return s.quiz }

// State returns the last published state; safe from any goroutine.
func (s *Session) State() domain.SessionState {
	return s.published.Load().(domain.SessionState)
}

// CompletedAt reports when the session reached COMPLETE.
func (s *Session) CompletedAt() (time.Time, bool) {
	ns := s.completedAt.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Post enqueues an event without waiting for it to be applied. Failures of
// the event itself are reported to its origin connection.
func (s *Session) Post(ctx context.Context, ev Event) error {
	return s.enqueue(ctx, envelope{ev: ev})
}

// Do enqueues an event and waits for its result.
func (s *Session) Do(ctx context.Context, ev Event) (any, error) {
	env := envelope{ev: ev, reply: make(chan reply, 1)}
	if err := s.enqueue(ctx, env); err != nil {
		return nil, err
	}
	select {
	case r := <-env.reply:
		return r.value, r.err
	case <-s.stopped:
		return nil, domain.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Offer enqueues an event only if the queue has room. Connection readers use
// it so a flooded session answers ErrSessionBusy instead of stalling them.
func (s *Session) Offer(ev Event) error {
	select {
	case <-s.quit:
		return domain.ErrSessionClosed
	default:
	}
	select {
	case s.events <- envelope{ev: ev}:
		return nil
	case <-s.quit:
		return domain.ErrSessionClosed
	default:
		return fmt.Errorf("%w: %d events queued", domain.ErrSessionBusy, cap(s.events))
	}
}

func (s *Session) enqueue(ctx context.Context, env envelope) error {
	select {
	case <-s.quit:
		return domain.ErrSessionClosed
	default:
	}
	select {
	case s.events <- env:
		return nil
	case <-s.quit:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join adds or reattaches a participant.
func (s *Session) Join(ctx context.Context, participantID, displayName, connID string) (domain.Participant, error) {
	v, err := s.Do(ctx, Join{Origin: Origin{connID}, ParticipantID: participantID, DisplayName: displayName})
	if err != nil {
		return domain.Participant{}, err
	}
	return v.(domain.Participant), nil
}

// Submit records an answer; a retry returns the recorded submission.
func (s *Session) Submit(ctx context.Context, participantID string, questionIndex, optionIndex int) (domain.SubmitResult, error) {
	v, err := s.Do(ctx, SubmitAnswer{ParticipantID: participantID, QuestionIndex: questionIndex, OptionIndex: optionIndex})
	if err != nil {
		return domain.SubmitResult{}, err
	}
	return v.(domain.SubmitResult), nil
}

func (s *Session) StartQuiz(ctx context.Context) error {
	_, err := s.Do(ctx, StartQuiz{})
	return err
}

func (s *Session) NextQuestion(ctx context.Context) error {
	_, err := s.Do(ctx, NextQuestion{})
	return err
}

func (s *Session) EndQuiz(ctx context.Context) error {
	_, err := s.Do(ctx, EndQuiz{})
	return err
}

// Snapshot returns a consistent copy of the session, ordered after every
// event enqueued before it.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	v, err := s.Do(ctx, snapshotRequest{})
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// DetailedResults builds the host report of the graded questions.
func (s *Session) DetailedResults(ctx context.Context) (DetailedResults, error) {
	v, err := s.Do(ctx, ViewDetailedResults{})
	if err != nil {
		return DetailedResults{}, err
	}
	return v.(DetailedResults), nil
}

// Close stops the worker. Events posted afterwards fail with ErrSessionClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.sched.StopAll()
		close(s.quit)
	})
	<-s.stopped
}

// Done is closed once the worker has exited.
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.quit:
			return
		case env := <-s.events:
			value, err := s.apply(env.ev)
			if env.reply != nil {
				env.reply <- reply{value: value, err: err}
				continue
			}
			if err != nil {
				s.reportError(env.ev, err)
			}
		}
	}
}

func (s *Session) apply(ev Event) (any, error) {
	switch e := ev.(type) {
	case timerFired:
		s.onTimer(e)
		return nil, nil
	case snapshotRequest:
		return s.snapshot(), nil
	case Disconnect:
		s.disconnect(e)
		return nil, nil
	}

	if s.state == domain.StateComplete {
		return nil, domain.ErrSessionClosed
	}
	s.lastActivity = s.now()

	switch e := ev.(type) {
	case HostAttach:
		s.attachHost(e)
		return nil, nil
	case Join:
		return s.join(e)
	case Ready:
		return nil, s.ready(e)
	case TakenAvatars:
		s.takenAvatars(e)
		return nil, nil
	case SubmitAnswer:
		return s.submit(e)
	case StartQuiz:
		return nil, s.start()
	case NextQuestion:
		return nil, s.next()
	case EndQuiz:
		reason := e.Reason
		if reason == "" {
			reason = "host"
		}
		s.complete(reason)
		return nil, nil
	case ViewDetailedResults:
		return s.detailedResults(e)
	default:
		return nil, fmt.Errorf("%w: unsupported event %T", domain.ErrProtocol, ev)
	}
}

func (s *Session) reportError(ev Event, err error) {
	s.logger.Warn("event rejected", "event", fmt.Sprintf("%T", ev), "state", s.state, "error", err)
	if conn := ev.origin(); conn != "" {
		s.emit(errorMessage(conn, err))
	}
}

func (s *Session) emit(msgs ...Outbound) {
	if s.emitter == nil || len(msgs) == 0 {
		return
	}
	s.emitter.Emit(s.code, msgs...)
}

// replyTo addresses the origin connection, or the participant when the event
// did not come over a connection.
func replyTo(connID, participantID string, msgType string, payload any) Outbound {
	if connID != "" {
		return Outbound{Audience: ToConnection, Target: connID, Type: msgType, Payload: payload}
	}
	return Outbound{Audience: ToParticipant, Target: participantID, Type: msgType, Payload: payload}
}

func (s *Session) setState(state domain.SessionState) {
	s.state = state
	s.published.Store(state)
}

func (s *Session) attachHost(e HostAttach) {
	s.hostConn = e.ConnectionID
	s.emit(Outbound{Audience: ToConnection, Target: e.ConnectionID, Type: MsgSessionState, Payload: s.statePayload(nil)})
}

func (s *Session) join(e Join) (domain.Participant, error) {
	if p, ok := s.participants[e.ParticipantID]; ok {
		p.ConnectionID = e.ConnectionID
		if e.DisplayName != "" {
			p.DisplayName = e.DisplayName
		}
		s.emit(
			Outbound{Audience: ToHost, Type: MsgStudentReconnected, Payload: participantRef{ID: p.ID, Name: p.DisplayName}},
			replyTo(e.ConnectionID, p.ID, MsgSessionState, s.statePayload(p)),
		)
		s.logger.Info("participant reconnected", "participant", p.ID, "score", p.CumulativeScore)
		return *p, nil
	}
	if w, ok := s.waiting[e.ParticipantID]; ok {
		w.ConnectionID = e.ConnectionID
		s.emit(replyTo(e.ConnectionID, w.ID, MsgWaiting, map[string]int{"questionIndex": s.index}))
		return *w, nil
	}

	name := e.DisplayName
	if name == "" {
		name = e.ParticipantID
	}
	p := &domain.Participant{
		ID:           e.ParticipantID,
		DisplayName:  name,
		ConnectionID: e.ConnectionID,
		JoinedAt:     s.now(),
	}
	if s.state == domain.StateQuestionOpen {
		s.waiting[p.ID] = p
		s.waitOrder = append(s.waitOrder, p.ID)
		s.emit(replyTo(e.ConnectionID, p.ID, MsgWaiting, map[string]int{"questionIndex": s.index}))
		s.logger.Info("participant waiting for next question", "participant", p.ID)
		return *p, nil
	}
	s.admit(p)
	return *p, nil
}

func (s *Session) admit(p *domain.Participant) {
	s.participants[p.ID] = p
	s.order = append(s.order, p.ID)
	s.emit(Outbound{Audience: ToAll, Type: MsgStudentJoined, Payload: participantRef{ID: p.ID, Name: p.DisplayName, Avatar: p.Avatar}})
	if p.Connected() {
		s.emit(replyTo(p.ConnectionID, p.ID, MsgSessionState, s.statePayload(p)))
	}
	s.logger.Info("participant joined", "participant", p.ID, "roster", len(s.order))
}

func (s *Session) admitWaiting() {
	for _, id := range s.waitOrder {
		if p, ok := s.waiting[id]; ok {
			s.admit(p)
		}
	}
	s.waiting = make(map[string]*domain.Participant)
	s.waitOrder = nil
}

func (s *Session) lookup(id string) (*domain.Participant, bool) {
	if p, ok := s.participants[id]; ok {
		return p, true
	}
	p, ok := s.waiting[id]
	return p, ok
}

func (s *Session) ready(e Ready) error {
	p, ok := s.lookup(e.ParticipantID)
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if e.Avatar != "" && e.Avatar != p.Avatar {
		for _, other := range s.allMembers() {
			if other.ID != p.ID && other.Avatar == e.Avatar {
				return fmt.Errorf("%w: %s", domain.ErrAvatarTaken, e.Avatar)
			}
		}
		p.Avatar = e.Avatar
	}
	p.Ready = true
	s.emit(Outbound{Audience: ToAll, Type: MsgStudentReady, Payload: readyPayload{ID: p.ID, Avatar: p.Avatar}})
	return nil
}

func (s *Session) takenAvatars(e TakenAvatars) {
	avatars := make([]string, 0)
	for _, p := range s.allMembers() {
		if p.Avatar != "" {
			avatars = append(avatars, p.Avatar)
		}
	}
	sort.Strings(avatars)
	s.emit(Outbound{Audience: ToConnection, Target: e.ConnectionID, Type: MsgTakenAvatars, Payload: takenAvatarsPayload{Avatars: avatars}})
}

func (s *Session) allMembers() []*domain.Participant {
	out := make([]*domain.Participant, 0, len(s.order)+len(s.waitOrder))
	for _, id := range s.order {
		out = append(out, s.participants[id])
	}
	for _, id := range s.waitOrder {
		out = append(out, s.waiting[id])
	}
	return out
}

func (s *Session) disconnect(e Disconnect) {
	if e.Host {
		if s.hostConn == e.ConnectionID {
			s.hostConn = ""
		}
		return
	}
	if w, ok := s.waiting[e.ParticipantID]; ok && w.ConnectionID == e.ConnectionID {
		w.ConnectionID = ""
		return
	}
	p, ok := s.participants[e.ParticipantID]
	if !ok || p.ConnectionID != e.ConnectionID {
		// a newer connection already took over
		return
	}
	p.ConnectionID = ""
	if s.state == domain.StateComplete {
		return
	}
	s.emit(Outbound{Audience: ToHost, Type: MsgStudentDisconnected, Payload: participantRef{ID: p.ID, Name: p.DisplayName}})
	s.logger.Info("participant disconnected", "participant", p.ID, "state", s.state)
	if !s.anyConnected() {
		s.emit(Outbound{Audience: ToHost, Type: MsgNoStudentsRemaining, Payload: map[string]int{"participants": len(s.order)}})
	}
	if s.state == domain.StateQuestionOpen && s.allConnectedSubmitted() {
		s.grade("disconnect")
	}
}

func (s *Session) start() error {
	if s.state != domain.StateLobby {
		return fmt.Errorf("%w: start from %s", domain.ErrInvalidTransition, s.state)
	}
	if len(s.participants) < s.cfg.MinParticipants {
		return fmt.Errorf("%w: have %d, need %d", domain.ErrNotEnoughParticipants, len(s.participants), s.cfg.MinParticipants)
	}
	now := s.now()
	s.startedAt = now
	s.setState(domain.StateStarting)
	s.emit(Outbound{Audience: ToAll, Type: MsgQuizStartingSoon, Payload: startingPayload{
		TotalQuestions: len(s.quiz.Questions),
		StartsAt:       now.Add(s.cfg.Countdown).UnixMilli(),
	}})
	s.logger.Info("quiz starting", "participants", len(s.participants))
	s.schedule(timerCountdown, s.cfg.Countdown)
	return nil
}

func (s *Session) next() error {
	if s.state != domain.StateFeedback {
		return fmt.Errorf("%w: next question from %s", domain.ErrInvalidTransition, s.state)
	}
	if s.preparing {
		return nil
	}
	nextIndex := s.index + 1
	if nextIndex >= len(s.quiz.Questions) {
		return fmt.Errorf("%w: no questions left", domain.ErrInvalidTransition)
	}
	s.preparing = true
	s.emit(Outbound{Audience: ToAll, Type: MsgPreparingNext, Payload: preparingPayload{
		IsLastQuestion: nextIndex == len(s.quiz.Questions)-1,
		QuestionNumber: nextIndex + 1,
	}})
	s.schedule(timerPrepare, s.cfg.PrepareDelay)
	return nil
}

func (s *Session) openQuestion(i int) {
	s.index = i
	s.openedAt = s.now()
	s.setState(domain.StateQuestionOpen)
	for len(s.ledger) <= i {
		s.ledger = append(s.ledger, make(map[string]*domain.Submission))
	}

	q := s.quiz.Questions[i]
	window := q.TimeLimit() + s.cfg.QuestionGrace
	s.deadline = s.openedAt.Add(window)

	msgType := MsgNewQuestion
	if i == 0 {
		msgType = MsgQuizStarted
	}
	s.emit(Outbound{Audience: ToAll, Type: msgType, Payload: QuestionPayload{
		CurrentQuestion: q.Public(i),
		QuestionNumber:  i + 1,
		TotalQuestions:  len(s.quiz.Questions),
		IsLastQuestion:  i == len(s.quiz.Questions)-1,
		EndTime:         s.deadline.UnixMilli(),
	}})
	s.logger.Info("question opened", "question", i, "window", window)
	s.schedule(timerQuestion, window)
	if s.allConnectedSubmitted() {
		s.grade("noneConnected")
	}
}

func (s *Session) submit(e SubmitAnswer) (domain.SubmitResult, error) {
	if s.state != domain.StateQuestionOpen || e.QuestionIndex != s.index {
		return domain.SubmitResult{}, fmt.Errorf("%w: got question %d, current %d in %s",
			domain.ErrStaleSubmission, e.QuestionIndex, s.index, s.state)
	}
	p, ok := s.participants[e.ParticipantID]
	if !ok {
		if _, waiting := s.waiting[e.ParticipantID]; waiting {
			return domain.SubmitResult{}, fmt.Errorf("%w: joined during question %d", domain.ErrStaleSubmission, s.index)
		}
		return domain.SubmitResult{}, domain.ErrParticipantNotFound
	}

	ledger := s.ledger[s.index]
	if recorded, ok := ledger[p.ID]; ok {
		s.emit(replyTo(e.ConnectionID, p.ID, MsgAnswerAccepted, acceptedPayload{QuestionIndex: s.index, Duplicate: true}))
		return domain.SubmitResult{Submission: *recorded, Duplicate: true}, nil
	}

	q := s.quiz.Questions[s.index]
	if e.OptionIndex != domain.NoAnswer && (e.OptionIndex < 0 || e.OptionIndex >= len(q.Options)) {
		return domain.SubmitResult{}, fmt.Errorf("%w: index %d", domain.ErrInvalidOption, e.OptionIndex)
	}

	now := s.now()
	elapsed := now.Sub(s.openedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if limit := q.TimeLimit(); elapsed > limit {
		elapsed = limit
	}
	sub := &domain.Submission{
		ParticipantID:     p.ID,
		QuestionIndex:     s.index,
		ChosenOptionIndex: e.OptionIndex,
		SubmittedAt:       now,
		ElapsedMs:         elapsed.Milliseconds(),
	}
	ledger[p.ID] = sub
	result := domain.SubmitResult{Submission: *sub}

	s.emit(
		replyTo(e.ConnectionID, p.ID, MsgAnswerAccepted, acceptedPayload{QuestionIndex: s.index}),
		Outbound{Audience: ToHost, Type: MsgStudentSubmitted, Payload: participantRef{ID: p.ID, Name: p.DisplayName, Avatar: p.Avatar}},
		Outbound{Audience: ToHost, Type: MsgSubmissionProgress, Payload: progressPayload{
			QuestionIndex: s.index,
			Submitted:     len(ledger),
			Expected:      s.expectedSubmissions(),
		}},
	)
	if s.allConnectedSubmitted() {
		s.grade("allSubmitted")
	}
	return result, nil
}

// expectedSubmissions counts connected participants plus those who already answered.
func (s *Session) expectedSubmissions() int {
	ledger := s.ledger[s.index]
	n := 0
	for _, id := range s.order {
		if _, ok := ledger[id]; ok || s.participants[id].Connected() {
			n++
		}
	}
	return n
}

func (s *Session) anyConnected() bool {
	for _, id := range s.order {
		if s.participants[id].Connected() {
			return true
		}
	}
	return false
}

func (s *Session) allConnectedSubmitted() bool {
	ledger := s.ledger[s.index]
	for _, id := range s.order {
		if !s.participants[id].Connected() {
			continue
		}
		if _, ok := ledger[id]; !ok {
			return false
		}
	}
	return true
}

// grade scores the open question and moves to FEEDBACK. Participants without
// a submission score zero.
func (s *Session) grade(trigger string) {
	if s.state != domain.StateQuestionOpen {
		return
	}
	s.setState(domain.StateGrading)
	s.cancelTimer(timerQuestion)

	q := s.quiz.Questions[s.index]
	ledger := s.ledger[s.index]
	entries := make(map[string]domain.FeedbackEntry, len(s.order))
	standings := make([]ranking.Standing, 0, len(s.order))
	for _, id := range s.order {
		p := s.participants[id]
		entry := domain.FeedbackEntry{ID: p.ID, Name: p.DisplayName}
		if sub, ok := ledger[id]; ok {
			sub.IsCorrect = sub.ChosenOptionIndex == q.CorrectOptionIndex
			sub.Score = s.scorer.Score(q, sub.IsCorrect, sub.ElapsedMs)
			sub.Graded = true
			entry.Score = sub.Score
			entry.IsCorrect = sub.IsCorrect
			p.CumulativeScore += sub.Score
			if sub.IsCorrect && p.FirstCorrectAt.IsZero() {
				p.FirstCorrectAt = sub.SubmittedAt
			}
		}
		entries[id] = entry
		standings = append(standings, ranking.Standing{
			ParticipantID:  p.ID,
			DisplayName:    p.DisplayName,
			Score:          p.CumulativeScore,
			FirstCorrectAt: p.FirstCorrectAt,
			PreviousRank:   p.Rank,
		})
	}

	ranked := ranking.Compute(standings)
	feedback := make([]domain.FeedbackEntry, 0, len(ranked))
	for _, st := range ranked {
		p := s.participants[st.ParticipantID]
		p.PreviousRank = st.PreviousRank
		p.Rank = st.Rank
		entry := entries[p.ID]
		entry.Rank = st.Rank
		entry.PreviousRank = st.PreviousRank
		entry.TotalScore = p.CumulativeScore
		feedback = append(feedback, entry)
	}
	s.graded = s.index + 1
	s.setState(domain.StateFeedback)

	msgs := make([]Outbound, 0, len(feedback)+1)
	msgs = append(msgs, Outbound{Audience: ToAll, Type: MsgAllStudentsSubmitted, Payload: GradedPayload{
		QuestionIndex:      s.index,
		CorrectOptionIndex: q.CorrectOptionIndex,
		Feedback:           feedback,
	}})
	for _, entry := range feedback {
		if !s.participants[entry.ID].Connected() {
			continue
		}
		msgs = append(msgs, Outbound{Audience: ToParticipant, Target: entry.ID, Type: MsgFeedback, Payload: personalFeedback{
			QuestionIndex:      s.index,
			CorrectOptionIndex: q.CorrectOptionIndex,
			IsCorrect:          entry.IsCorrect,
			Score:              entry.Score,
			TotalScore:         entry.TotalScore,
			Rank:               entry.Rank,
			PreviousRank:       entry.PreviousRank,
		}})
	}
	s.emit(msgs...)
	s.logger.Info("question graded", "question", s.index, "trigger", trigger, "submissions", len(ledger))
	s.admitWaiting()
}

// complete retires the session. Timers are cancelled before anything else so
// no callback can act on a retired session.
func (s *Session) complete(reason string) {
	if s.state == domain.StateComplete {
		return
	}
	started := s.state != domain.StateLobby
	s.sched.StopAll()
	for kind := range s.timers {
		delete(s.timers, kind)
	}
	for _, kind := range []timerKind{timerCountdown, timerQuestion, timerPrepare} {
		s.seq[kind]++
	}
	s.preparing = false

	now := s.now()
	s.setState(domain.StateComplete)
	s.completedAt.Store(now.UnixNano())

	results := s.buildResults(now, reason)
	if started {
		s.persist(results)
	}
	s.emit(
		Outbound{Audience: ToAll, Type: MsgQuizCompleted, Payload: completedPayload{Reason: reason, Ranking: results.Participants}},
		Outbound{Audience: ToHost, Type: MsgSessionEnded, Payload: map[string]string{"reason": reason}},
	)
	if started {
		s.notify(results)
	}
	s.logger.Info("session completed", "reason", reason, "graded", s.graded, "participants", len(s.order))
	if s.onComplete != nil {
		s.onComplete(s)
	}
}

func (s *Session) persist(results domain.SessionResults) {
	if s.results == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	if err := s.results.SaveResults(ctx, results); err != nil {
		s.logger.Error("failed to persist results", "error", err)
	}
}

func (s *Session) notify(results domain.SessionResults) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PersistTimeout)
	defer cancel()
	if err := s.notifier.QuizCompleted(ctx, results); err != nil {
		s.logger.Warn("completion notification failed", "error", err)
	}
}

func (s *Session) detailedResults(e ViewDetailedResults) (DetailedResults, error) {
	if s.state != domain.StateFeedback || s.graded == 0 {
		return DetailedResults{}, fmt.Errorf("%w: detailed results in %s", domain.ErrInvalidTransition, s.state)
	}
	report := s.buildDetailedResults()
	if e.ConnectionID != "" {
		s.emit(Outbound{Audience: ToConnection, Target: e.ConnectionID, Type: MsgDetailedResults, Payload: report})
	}
	return report, nil
}

func (s *Session) schedule(kind timerKind, d time.Duration) {
	s.cancelTimer(kind)
	seq := s.seq[kind]
	if d <= 0 {
		s.onTimer(timerFired{kind: kind, seq: seq})
		return
	}
	s.timers[kind] = s.sched.AfterFunc(d, func() {
		s.postTimer(kind, seq)
	})
}

func (s *Session) cancelTimer(kind timerKind) {
	if t, ok := s.timers[kind]; ok {
		t.Stop()
		delete(s.timers, kind)
	}
	s.seq[kind]++
}

func (s *Session) postTimer(kind timerKind, seq uint64) {
	if err := s.Post(context.Background(), timerFired{kind: kind, seq: seq}); err != nil {
		s.logger.Debug("timer dropped", "timer", kind.String(), "error", err)
	}
}

func (s *Session) onTimer(e timerFired) {
	if s.state == domain.StateComplete {
		return
	}
	if e.kind == timerIdle {
		if idle := s.now().Sub(s.lastActivity); idle >= s.cfg.IdleTimeout {
			s.logger.Info("idle session reaped", "idle", idle)
			s.complete("idle")
		}
		return
	}
	if e.seq != s.seq[e.kind] {
		return
	}
	delete(s.timers, e.kind)

	switch e.kind {
	case timerCountdown:
		if s.state == domain.StateStarting {
			s.openQuestion(0)
		}
	case timerQuestion:
		if s.state == domain.StateQuestionOpen {
			s.grade("timeout")
		}
	case timerPrepare:
		if s.state == domain.StateFeedback && s.preparing {
			s.preparing = false
			s.openQuestion(s.index + 1)
		}
	}
}

func (s *Session) statePayload(p *domain.Participant) StatePayload {
	sp := StatePayload{
		State:          s.state,
		QuestionIndex:  s.index,
		TotalQuestions: len(s.quiz.Questions),
	}
	if s.state == domain.StateQuestionOpen {
		pq := s.quiz.Questions[s.index].Public(s.index)
		sp.CurrentQuestion = &pq
		sp.EndTime = s.deadline.UnixMilli()
	}
	if p == nil {
		sp.Participants = make([]participantRef, 0, len(s.order))
		for _, id := range s.order {
			m := s.participants[id]
			sp.Participants = append(sp.Participants, participantRef{ID: m.ID, Name: m.DisplayName, Avatar: m.Avatar})
		}
		return sp
	}
	if s.index < len(s.ledger) {
		_, sp.HasSubmitted = s.ledger[s.index][p.ID]
	}
	sp.CumulativeScore = p.CumulativeScore
	sp.Rank = p.Rank
	return sp
}

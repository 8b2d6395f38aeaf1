package call

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/receptionist/internal/brain"
	"github.com/ent0n29/receptionist/internal/conversations"
	"github.com/ent0n29/receptionist/internal/directory"
	"github.com/ent0n29/receptionist/internal/session"
	"github.com/ent0n29/receptionist/internal/staging"
	"github.com/ent0n29/receptionist/internal/twiml"
	"github.com/ent0n29/receptionist/internal/voice"
)

const (
	testCalled  = "+15551230000"
	testCaller  = "+15557654321"
	testBaseURL = "https://rx.example.test"
	devGreeting = "Hello! Thank you for calling our office. How can I help you today?"
)

type stubProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	panicMsg string
	requests []brain.CompletionRequest
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(_ context.Context, req brain.CompletionRequest) (brain.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.err != nil {
		return brain.Completion{}, p.err
	}
	reply := p.reply
	if reply == "" {
		reply = "Sure, let me help with that."
	}
	return brain.Completion{Text: reply, Usage: brain.Usage{PromptTokens: 30, CompletionTokens: 8}}, nil
}

func (p *stubProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type stubSynth struct {
	mu    sync.Mutex
	fail  bool
	texts []string
}

func (s *stubSynth) Name() string { return "stub" }

func (s *stubSynth) Synthesize(_ context.Context, text string, _ voice.Params) (voice.Audio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if s.fail {
		return voice.Audio{}, &voice.APIError{Provider: "stub", StatusCode: 503, Message: "overloaded"}
	}
	return voice.Audio{Data: []byte("ID3-fake-clip"), ContentType: "audio/mpeg", Format: "mp3_44100_128"}, nil
}

func (s *stubSynth) setFail(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = v
}

type stubConfigs struct {
	cfg session.AgentConfig
	err error
}

func (s stubConfigs) LookupByCalledNumber(context.Context, string) (session.AgentConfig, error) {
	return s.cfg, s.err
}

type fixture struct {
	dir       *directory.StaticDirectory
	sessions  *session.Store
	records   *conversations.InMemoryStore
	provider  *stubProvider
	synth     *stubSynth
	stager    *staging.Stager
	finalizer *Finalizer
	handler   *Handler
	now       time.Time
}

func newFixture(t *testing.T, configs ConfigLookup) *fixture {
	t.Helper()
	dir, err := directory.NewStaticDirectory("", "")
	if err != nil {
		t.Fatalf("NewStaticDirectory() error = %v", err)
	}
	if configs == nil {
		configs = dir
	}
	stager, err := staging.NewStager(t.TempDir(), time.Minute, discardLogger())
	if err != nil {
		t.Fatalf("NewStager() error = %v", err)
	}
	t.Cleanup(func() { _ = stager.Close() })

	fx := &fixture{
		dir:      dir,
		sessions: session.NewStore(),
		records:  conversations.NewInMemoryStore(),
		provider: &stubProvider{},
		synth:    &stubSynth{},
		stager:   stager,
		now:      time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
	}
	fx.finalizer = NewFinalizer(fx.sessions, fx.records, dir, FinalizerOptions{}, nil, discardLogger())
	fx.finalizer.now = fx.clock
	fx.handler = NewHandler(Deps{
		Sessions:  fx.sessions,
		Configs:   configs,
		Generator: brain.NewGenerator(fx.provider, brain.GeneratorOptions{Timeout: time.Second}),
		Voice:     voice.NewPipeline(fx.synth, voice.DefaultParams(), time.Second),
		Stager:    stager,
		Finalizer: fx.finalizer,
		Logger:    discardLogger(),
	}, DefaultOptions())
	fx.handler.now = fx.clock
	return fx
}

func (fx *fixture) clock() time.Time { return fx.now }

func (fx *fixture) post(callID, utterance string) Result {
	return fx.handler.HandleTurn(context.Background(), Turn{
		CallID:       callID,
		CalledNumber: testCalled,
		CallerNumber: testCaller,
		Utterance:    utterance,
		AudioBaseURL: testBaseURL,
	})
}

func (fx *fixture) ownerRecords(t *testing.T) []conversations.Record {
	t.Helper()
	recs, err := fx.records.ListByOwner(context.Background(), directory.DefaultDevOwnerID, 10)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	return recs
}

func verbNames(r twiml.Response) []string {
	var out []string
	for _, v := range r.Verbs {
		switch v.(type) {
		case twiml.Say:
			out = append(out, "Say")
		case twiml.Play:
			out = append(out, "Play")
		case twiml.Pause:
			out = append(out, "Pause")
		case twiml.Gather:
			out = append(out, "Gather")
		case twiml.Hangup:
			out = append(out, "Hangup")
		}
	}
	return out
}

func TestOpeningTurnGreetsWithoutGenerator(t *testing.T) {
	fx := newFixture(t, nil)

	res := fx.post("CA1", "")
	if res.Outcome != OutcomeGreeting {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, OutcomeGreeting)
	}
	if got := strings.Join(verbNames(res.Response), ","); got != "Play,Gather,Say" {
		t.Fatalf("verbs = %s", got)
	}
	play := res.Response.Verbs[0].(twiml.Play)
	if !strings.HasPrefix(play.URL, testBaseURL+"/api/audio/voice_CA1_") {
		t.Fatalf("Play URL = %q", play.URL)
	}
	gather := res.Response.Verbs[1].(twiml.Gather)
	if gather.Input != "speech" || gather.Timeout != 5 || gather.SpeechTimeout != "2" || gather.Action != "/api/voice-webhook" {
		t.Fatalf("gather = %+v", gather)
	}
	if fx.provider.calls() != 0 {
		t.Fatalf("generator invoked %d times on the opening turn", fx.provider.calls())
	}
	if len(fx.synth.texts) != 1 || fx.synth.texts[0] != devGreeting {
		t.Fatalf("synthesized = %q, want greeting", fx.synth.texts)
	}

	s, ok := fx.sessions.Get("CA1")
	if !ok {
		t.Fatalf("session not stored after opening turn")
	}
	if s.Turns != 1 || len(s.Transcript) != 1 || s.Transcript[0].Text != devGreeting {
		t.Fatalf("session = %+v", s)
	}
}

func TestSecondTurnUsesGreetingAsContext(t *testing.T) {
	fx := newFixture(t, nil)
	fx.post("CA1", "")

	fx.provider.reply = "We are open nine to five, Monday to Friday."
	res := fx.post("CA1", "What are your hours?")
	if res.Outcome != OutcomeContinue {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, OutcomeContinue)
	}
	if fx.provider.calls() != 1 {
		t.Fatalf("generator calls = %d, want 1", fx.provider.calls())
	}
	msgs := fx.provider.requests[0].Messages
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v, want greeting plus utterance", msgs)
	}
	if msgs[0].Role != brain.RoleAssistant || msgs[0].Content != devGreeting {
		t.Fatalf("context entry = %+v", msgs[0])
	}
	if msgs[1].Role != brain.RoleUser || msgs[1].Content != "What are your hours?" {
		t.Fatalf("utterance = %+v", msgs[1])
	}

	s, _ := fx.sessions.Get("CA1")
	if s.Turns != 2 || len(s.Transcript) != 3 {
		t.Fatalf("Turns = %d transcript = %d, want 2 and 3", s.Turns, len(s.Transcript))
	}
}

func TestContextWindowIsBounded(t *testing.T) {
	fx := newFixture(t, nil)
	fx.post("CA1", "")
	for i := 0; i < 4; i++ {
		fx.post("CA1", "another question")
	}
	last := fx.provider.requests[len(fx.provider.requests)-1]
	if len(last.Messages) != DefaultOptions().ContextTurns+1 {
		t.Fatalf("messages = %d, want %d", len(last.Messages), DefaultOptions().ContextTurns+1)
	}
}

func TestClosingReplyEndsCallAndPersistsTranscript(t *testing.T) {
	fx := newFixture(t, nil)
	fx.post("CA1", "")
	fx.now = fx.now.Add(20 * time.Second)

	fx.provider.reply = "You're welcome. THANK YOU FOR CALLING, take care."
	res := fx.post("CA1", "That's all, thanks")
	if res.Outcome != OutcomeEnd || res.EndReason != conversations.EndNormal {
		t.Fatalf("result = %+v", res)
	}
	if got := strings.Join(verbNames(res.Response), ","); got != "Play,Hangup" {
		t.Fatalf("verbs = %s", got)
	}
	if fx.sessions.Count() != 0 {
		t.Fatalf("session still stored after ending")
	}

	recs := fx.ownerRecords(t)
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.EndReason != conversations.EndNormal || rec.Turns != 2 || rec.DurationSeconds != 20 {
		t.Fatalf("record = %+v", rec)
	}
	want := []struct {
		speaker session.Speaker
		text    string
	}{
		{session.SpeakerAgent, devGreeting},
		{session.SpeakerCaller, "That's all, thanks"},
		{session.SpeakerAgent, "You're welcome. THANK YOU FOR CALLING, take care."},
	}
	if len(rec.Transcript) != len(want) {
		t.Fatalf("transcript = %+v", rec.Transcript)
	}
	for i, w := range want {
		if rec.Transcript[i].Speaker != w.speaker || rec.Transcript[i].Text != w.text {
			t.Fatalf("transcript[%d] = %+v, want %v %q", i, rec.Transcript[i], w.speaker, w.text)
		}
	}
}

func TestSynthesisFailureOnOpeningTurnRegathers(t *testing.T) {
	fx := newFixture(t, nil)
	fx.synth.setFail(true)

	res := fx.post("CA1", "")
	if res.Outcome != OutcomeDegraded {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, OutcomeDegraded)
	}
	if got := strings.Join(verbNames(res.Response), ","); got != "Pause,Gather,Say,Hangup" {
		t.Fatalf("verbs = %s", got)
	}
	if _, ok := fx.sessions.Get("CA1"); !ok {
		t.Fatalf("session not stored after degraded opening turn")
	}
}

func TestSynthesisFailureOnLaterTurnEndsCall(t *testing.T) {
	fx := newFixture(t, nil)
	fx.post("CA1", "")
	fx.synth.setFail(true)

	res := fx.post("CA1", "Are you there?")
	if res.Outcome != OutcomeNoAudioEnd || res.EndReason != conversations.EndNoAudioTimeout {
		t.Fatalf("result = %+v", res)
	}
	if got := strings.Join(verbNames(res.Response), ","); got != "Pause,Hangup" {
		t.Fatalf("verbs = %s, want a terminal document without gather", got)
	}
	recs := fx.ownerRecords(t)
	if len(recs) != 1 || recs[0].EndReason != conversations.EndNoAudioTimeout {
		t.Fatalf("records = %+v", recs)
	}
	if fx.sessions.Count() != 0 {
		t.Fatalf("session still stored")
	}
}

func TestGenerationFailureInjectsFallbackLine(t *testing.T) {
	fx := newFixture(t, nil)
	fx.post("CA1", "")
	fx.provider.err = errors.New("upstream 500")

	res := fx.post("CA1", "Can I book an appointment?")
	if res.Outcome != OutcomeContinue {
		t.Fatalf("Outcome = %q, want call to continue", res.Outcome)
	}
	s, _ := fx.sessions.Get("CA1")
	if got := s.LastAgentLine(); got != brain.FallbackReply {
		t.Fatalf("agent line = %q, want fallback", got)
	}
}

func TestMalformedRequestLeavesStoreUntouched(t *testing.T) {
	fx := newFixture(t, nil)

	res := fx.handler.HandleTurn(context.Background(), Turn{CallID: "CA1", CalledNumber: testCalled})
	if res.Outcome != OutcomeMalformed {
		t.Fatalf("Outcome = %q", res.Outcome)
	}
	say := res.Response.Verbs[0].(twiml.Say)
	if say.Text != MalformedLine || say.Voice != twiml.DefaultSayVoice || !res.Response.Terminal() {
		t.Fatalf("response = %+v", res.Response)
	}
	if fx.sessions.Count() != 0 || len(fx.synth.texts) != 0 {
		t.Fatalf("malformed request touched the store or synthesizer")
	}
}

func TestDisabledReceptionistCreatesNoSession(t *testing.T) {
	fx := newFixture(t, stubConfigs{cfg: session.AgentConfig{Enabled: false}})

	res := fx.post("CA1", "")
	if res.Outcome != OutcomeUnavailable {
		t.Fatalf("Outcome = %q", res.Outcome)
	}
	if say := res.Response.Verbs[0].(twiml.Say); say.Text != UnavailableLine {
		t.Fatalf("say = %q", say.Text)
	}
	if fx.sessions.Count() != 0 {
		t.Fatalf("session created for disabled receptionist")
	}
}

func TestReceptionistDisabledMidCallFinalizesSession(t *testing.T) {
	fx := newFixture(t, nil)
	fx.post("CA1", "")

	fx.dir.Register(directory.Entry{
		PhoneNumber: testCalled,
		OwnerID:     directory.DefaultDevOwnerID,
		Config:      session.AgentConfig{Enabled: false},
	})
	fx.now = fx.now.Add(5 * time.Second)
	res := fx.post("CA1", "Are you there?")
	if res.Outcome != OutcomeUnavailable || res.EndReason != conversations.EndNormal {
		t.Fatalf("result = %q / %q", res.Outcome, res.EndReason)
	}
	if !res.Response.Terminal() {
		t.Fatalf("response does not hang up")
	}
	if fx.sessions.Count() != 0 {
		t.Fatalf("live session left for the reaper")
	}
	recs := fx.ownerRecords(t)
	if len(recs) != 1 || recs[0].EndReason != conversations.EndNormal || recs[0].DurationSeconds != 5 {
		t.Fatalf("records = %+v", recs)
	}
}

func TestDirectoryFailureFallsBackToDefaultConfig(t *testing.T) {
	fx := newFixture(t, stubConfigs{err: errors.New("connection refused")})

	fx.post("CA1", "")
	s, ok := fx.sessions.Get("CA1")
	if !ok {
		t.Fatalf("session not created")
	}
	if s.Config.BusinessName != session.DefaultBusinessName {
		t.Fatalf("BusinessName = %q", s.Config.BusinessName)
	}
	if s.Transcript[0].Text != session.DefaultAgentConfig().OpeningLine() {
		t.Fatalf("greeting = %q", s.Transcript[0].Text)
	}
}

func TestUnexpectedPanicStillAnswers(t *testing.T) {
	fx := newFixture(t, nil)
	fx.post("CA1", "")
	fx.provider.panicMsg = "nil map"

	res := fx.post("CA1", "Hello?")
	if res.Outcome != OutcomeError {
		t.Fatalf("Outcome = %q", res.Outcome)
	}
	if got := strings.Join(verbNames(res.Response), ","); got != "Say,Hangup" {
		t.Fatalf("verbs = %s", got)
	}
	if _, err := res.Response.Render(); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
}

func TestReapedCallStartsOverAsNewSession(t *testing.T) {
	fx := newFixture(t, nil)
	t0 := fx.now
	fx.post("CA1", "")

	reaper := session.NewReaper(fx.sessions, session.ReaperConfig{StaleAfter: 120 * time.Second}, fx.finalizer.Expire, discardLogger())
	if n := reaper.Sweep(context.Background(), t0.Add(130*time.Second)); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	recs := fx.ownerRecords(t)
	if len(recs) != 1 || recs[0].EndReason != conversations.EndTimeoutCleanup {
		t.Fatalf("records = %+v", recs)
	}

	fx.now = t0.Add(131 * time.Second)
	fx.post("CA1", "Hello? Are you still there?")
	s, ok := fx.sessions.Get("CA1")
	if !ok {
		t.Fatalf("follow-up turn did not create a session")
	}
	if !s.StartedAt.Equal(fx.now) || s.Turns != 1 {
		t.Fatalf("session = %+v, want a fresh session", s)
	}
	if msgs := fx.provider.requests[0].Messages; len(msgs) != 1 {
		t.Fatalf("generator saw %d messages, want only the new utterance", len(msgs))
	}
}

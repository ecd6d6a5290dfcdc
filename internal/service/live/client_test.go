package live

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep"

	"entrevistas-live-client/internal/backendtest"
	"entrevistas-live-client/internal/models"
	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/connection"
)

// holdSink keeps streams without pulling them, so playback lasts until
// paused or stopped.
type holdSink struct {
	mu      sync.Mutex
	streams []beep.Streamer
}

func (s *holdSink) Play(format beep.Format, st beep.Streamer) error {
	s.mu.Lock()
	s.streams = append(s.streams, st)
	s.mu.Unlock()
	return nil
}

func (s *holdSink) Lock()   { s.mu.Lock() }
func (s *holdSink) Unlock() { s.mu.Unlock() }

// testStream is a microphone stream fed by the test.
type testStream struct {
	chunks    chan []byte
	closeOnce sync.Once
}

func (s *testStream) Format() capture.Format  { return capture.DefaultFormat }
func (s *testStream) Chunks() <-chan []byte { return s.chunks }
func (s *testStream) Close() error {
	s.closeOnce.Do(func() { close(s.chunks) })
	return nil
}

type testMic struct {
	mu     sync.Mutex
	err    error
	gate   chan struct{} // when set, Open waits for it or for ctx
	stream *testStream
	// speakingAtOpen records the playback state when the mic was acquired
	speakingAtOpen []bool
	client         *Client
}

func (m *testMic) Open(ctx context.Context) (capture.Stream, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.speakingAtOpen = append(m.speakingAtOpen, m.client.player.IsSpeaking())
	}
	if m.err != nil {
		return nil, m.err
	}
	m.stream = &testStream{chunks: make(chan []byte)}
	return m.stream, nil
}

func (m *testMic) speak(b []byte) {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()
	s.chunks <- b
}

type testPublisher struct {
	mu       sync.Mutex
	turns    []models.TurnEvent
	sessions []models.SessionEvent
}

func (p *testPublisher) PublishTurn(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, event.(models.TurnEvent))
	return nil
}

func (p *testPublisher) PublishSession(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, event.(models.SessionEvent))
	return nil
}

func wavBytes() []byte {
	return capture.EncodeWAV(capture.Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, make([]byte, 1600))
}

type fixture struct {
	backend *backendtest.Server
	client  *Client
	mic     *testMic
	pub     *testPublisher
}

func newFixture(t *testing.T, timeout time.Duration, opts ...backendtest.Option) *fixture {
	t.Helper()
	// replies carry audio unless a test overrides it
	opts = append([]backendtest.Option{backendtest.WithAudio(wavBytes())}, opts...)
	backend := backendtest.New(opts...)
	mic := &testMic{}
	pub := &testPublisher{}
	client := New(Config{
		WSURL:             backend.URL,
		DialTimeout:       2 * time.Second,
		ProcessingTimeout: timeout,
		Limits:            capture.DefaultLimits(),
	}, Deps{Microphone: mic, Sink: &holdSink{}, Publisher: pub})
	mic.client = client

	t.Cleanup(func() {
		client.Close()
		backend.Close()
	})
	return &fixture{backend: backend, client: client, mic: mic, pub: pub}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startAndGreet starts a session and waits for the full greeting.
func (f *fixture) startAndGreet(t *testing.T) string {
	t.Helper()
	id, err := f.client.StartInterview(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitUntil(t, "greeting", func() bool {
		s := f.client.Snapshot()
		return s.TranscriptLength == 1 && !s.Processing && s.Speaking
	})
	return id
}

func TestStartInterview_FreshDistinctSessionIDs(t *testing.T) {
	f := newFixture(t, time.Second, backendtest.WithGreeting(""))

	first, err := f.client.StartInterview(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.client.StartInterview(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first == second {
		t.Errorf("expected distinct session ids, got %s twice", first)
	}

	waitUntil(t, "two channels", func() bool { return len(f.backend.Sessions()) == 2 })
	if s := f.backend.Sessions(); s[0] != first || s[1] != second {
		t.Errorf("expected channels tagged %s and %s, got %v", first, second, s)
	}

	snap := f.client.Snapshot()
	if !snap.Active || !snap.Connected || snap.SessionID != second {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestStartInterview_GreetingBecomesAssistantTurn(t *testing.T) {
	f := newFixture(t, time.Second)
	f.startAndGreet(t)

	entries := f.client.Transcript()
	if entries[0].Role != models.RoleAssistant || entries[0].Text != backendtest.DefaultGreeting {
		t.Errorf("unexpected greeting entry %+v", entries[0])
	}
}

func TestMic_NotStarted(t *testing.T) {
	f := newFixture(t, time.Second)

	if err := f.client.PressMic(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if err := f.client.ToggleMic(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	if f.client.Snapshot().Recording {
		t.Error("expected recording false")
	}
}

func TestHoldToTalk_SendsExactlyOneMessage(t *testing.T) {
	f := newFixture(t, time.Second,
		backendtest.WithGreeting(""),
		backendtest.WithTurns(backendtest.Turn{Recognized: "Soy Ana", Reply: "Encantada, Ana"}),
	)
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.client.PressMic(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.mic.speak([]byte{1, 2, 3, 4})
	f.mic.speak([]byte{5, 6})
	if err := f.client.ReleaseMic(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.client.Snapshot().Recording {
		t.Error("expected recording false right after release")
	}

	waitUntil(t, "reply", func() bool { return f.client.Snapshot().TranscriptLength == 2 })

	received := f.backend.Received()
	if len(received) != 1 {
		t.Fatalf("expected exactly one message for the gesture, got %d", len(received))
	}
	if received[0].Type != models.KindAudio {
		t.Errorf("expected audio message, got %s", received[0].Type)
	}
	raw, err := base64.StdEncoding.DecodeString(received[0].Data)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if string(raw[:4]) != "RIFF" || len(raw) != 44+6 {
		t.Errorf("expected a 50 byte WAV unit, got %d bytes", len(raw))
	}

	entries := f.client.Transcript()
	if entries[0].Role != models.RoleCandidate || entries[0].Text != "Soy Ana" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Role != models.RoleAssistant || entries[1].Text != "Encantada, Ana" {
		t.Errorf("unexpected second entry %+v", entries[1])
	}
}

func TestToggleMic(t *testing.T) {
	f := newFixture(t, time.Second, backendtest.WithGreeting(""))
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.client.ToggleMic(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.client.Snapshot().Recording {
		t.Fatal("expected recording after first toggle")
	}
	if err := f.client.ToggleMic(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.client.Snapshot().Recording {
		t.Error("expected recording false after second toggle")
	}
	waitUntil(t, "audio unit", func() bool { return len(f.backend.Received()) == 1 })
}

func TestPressMic_BargeInPausesPlaybackFirst(t *testing.T) {
	f := newFixture(t, time.Second)
	f.startAndGreet(t)

	if err := f.client.PressMic(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.client.ReleaseMic(context.Background())

	if len(f.mic.speakingAtOpen) != 1 || f.mic.speakingAtOpen[0] {
		t.Errorf("expected playback paused before the mic opened, got %v", f.mic.speakingAtOpen)
	}
	if f.client.Snapshot().Speaking {
		t.Error("expected speaking false while recording")
	}
}

func TestPressMic_PermissionErrorLeavesRecordingFalse(t *testing.T) {
	f := newFixture(t, time.Second, backendtest.WithGreeting(""))
	f.mic.err = errors.New("permission denied")
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := f.client.PressMic(context.Background())
	var permErr *capture.PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if f.client.Snapshot().Recording {
		t.Error("expected recording false after permission error")
	}

	notices := f.client.Notices()
	if len(notices) != 1 || notices[0].Kind != NoticePermission {
		t.Errorf("expected one permission notice, got %+v", notices)
	}
}

func TestMic_BusyWhileProcessing(t *testing.T) {
	f := newFixture(t, time.Second,
		backendtest.WithGreeting(""),
		backendtest.WithTurns(backendtest.Turn{Stall: true}),
	)
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = f.client.PressMic(context.Background())
	_ = f.client.ReleaseMic(context.Background())
	waitUntil(t, "processing", func() bool { return f.client.Snapshot().Processing })

	if err := f.client.PressMic(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while processing, got %v", err)
	}
	if f.client.Snapshot().Recording {
		t.Error("expected no recording started while busy")
	}
}

func TestProcessingTimeout_ClearsFlag(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond,
		backendtest.WithGreeting(""),
		backendtest.WithTurns(backendtest.Turn{Stall: true}),
	)
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = f.client.PressMic(context.Background())
	_ = f.client.ReleaseMic(context.Background())
	waitUntil(t, "processing", func() bool { return f.client.Snapshot().Processing })
	waitUntil(t, "timeout", func() bool { return !f.client.Snapshot().Processing })

	notices := f.client.Notices()
	if len(notices) != 1 || notices[0].Kind != NoticeLiveness {
		t.Errorf("expected one liveness notice, got %+v", notices)
	}
	if !f.client.Snapshot().Active {
		t.Error("expected the session to stay active after a timeout")
	}

	// the user may try again
	if err := f.client.PressMic(context.Background()); err != nil {
		t.Errorf("expected mic available after timeout, got %v", err)
	}
	f.client.recorder.Cancel()
}

func TestProcessingTimeout_SynthesisNeverArrives(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, backendtest.WithGreeting(""))
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitUntil(t, "channel", func() bool { return len(f.backend.Sessions()) == 1 })

	if err := f.backend.Push(models.ServerMessage{Type: models.KindSynthesisStart}); err != nil {
		t.Fatalf("push: %v", err)
	}
	waitUntil(t, "processing", func() bool { return f.client.Snapshot().Processing })

	time.Sleep(150 * time.Millisecond)
	if f.client.Snapshot().Processing {
		t.Error("expected processing false after the timeout window")
	}
}

func TestCompletionDisarmsTimeout(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, backendtest.WithGreeting(""))
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitUntil(t, "channel", func() bool { return len(f.backend.Sessions()) == 1 })

	_ = f.backend.Push(models.ServerMessage{Type: models.KindReplyStart})
	_ = f.backend.Push(models.ServerMessage{Type: models.KindReplyText, Data: "hola"})
	waitUntil(t, "reply", func() bool { return f.client.Snapshot().TranscriptLength == 1 })

	time.Sleep(150 * time.Millisecond)
	if n := len(f.client.Notices()); n != 0 {
		t.Errorf("expected no liveness notice after completion, got %d", n)
	}
}

func TestServerError_ClearsProcessingAndSpeaking(t *testing.T) {
	f := newFixture(t, time.Second)
	f.startAndGreet(t)

	_ = f.backend.Push(models.ServerMessage{Type: models.KindRecognitionStart})
	waitUntil(t, "processing", func() bool { return f.client.Snapshot().Processing })
	if !f.client.Snapshot().Speaking {
		t.Fatal("expected greeting still speaking")
	}

	_ = f.backend.Push(models.ServerMessage{Type: models.KindError, Data: "speech service unavailable"})
	waitUntil(t, "error notice", func() bool { return len(f.client.Notices()) == 1 })

	snap := f.client.Snapshot()
	if snap.Processing || snap.Speaking {
		t.Errorf("expected processing and speaking false, got %+v", snap)
	}
	n := f.client.Notices()[0]
	if n.Kind != NoticeServer || n.Message != "speech service unavailable" {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestTranscript_FollowsTextMessagesInOrder(t *testing.T) {
	f := newFixture(t, time.Second, backendtest.WithGreeting(""))
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitUntil(t, "channel", func() bool { return len(f.backend.Sessions()) == 1 })

	audio := base64.StdEncoding.EncodeToString(wavBytes())
	msgs := []models.ServerMessage{
		{Type: models.KindReplyStart},
		{Type: models.KindReplyText, Data: "a1"},
		{Type: models.KindSynthesisStart},
		{Type: models.KindSynthesizedAudio, Data: audio},
		{Type: models.KindRecognitionStart},
		{Type: models.KindRecognizedText, Data: "c1"},
		{Type: models.KindError, Data: "transient"},
		{Type: models.KindRecognizedText, Data: "c2"},
		{Type: models.KindReplyText, Data: "a2"},
		{Type: models.KindReplyText, Data: "a3"},
	}
	for _, m := range msgs {
		if err := f.backend.Push(m); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	want := []struct {
		role models.Role
		text string
	}{
		{models.RoleAssistant, "a1"},
		{models.RoleCandidate, "c1"},
		{models.RoleCandidate, "c2"},
		{models.RoleAssistant, "a2"},
		{models.RoleAssistant, "a3"},
	}
	waitUntil(t, "transcript", func() bool { return f.client.Snapshot().TranscriptLength == len(want) })

	for i, e := range f.client.Transcript() {
		if e.Role != want[i].role || e.Text != want[i].text {
			t.Errorf("entry %d: expected %s/%s, got %s/%s", i, want[i].role, want[i].text, e.Role, e.Text)
		}
	}
}

func TestClearTranscript(t *testing.T) {
	f := newFixture(t, time.Second)
	f.startAndGreet(t)

	f.client.ClearTranscript()
	if n := len(f.client.Transcript()); n != 0 {
		t.Errorf("expected empty transcript, got %d", n)
	}
}

func TestDisconnect_ForcesSessionInactive(t *testing.T) {
	f := newFixture(t, time.Second,
		backendtest.WithGreeting(""),
		backendtest.WithTurns(backendtest.Turn{Stall: true}),
	)
	var mu sync.Mutex
	var statuses []Status
	f.client.OnStatus(func(s Status) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = f.client.PressMic(context.Background())
	_ = f.client.ReleaseMic(context.Background())
	waitUntil(t, "processing", func() bool { return f.client.Snapshot().Processing })

	f.backend.DropChannels()
	waitUntil(t, "disconnect", func() bool { return !f.client.Snapshot().Connected })

	snap := f.client.Snapshot()
	if snap.Active || snap.Processing || snap.Recording {
		t.Errorf("expected baseline flags after disconnect, got %+v", snap)
	}
	notices := f.client.Notices()
	if len(notices) != 1 || notices[0].Kind != NoticeConnection {
		t.Errorf("expected one connection notice, got %+v", notices)
	}
	if err := f.client.PressMic(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted after disconnect, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	last := statuses[len(statuses)-1]
	if last.Connected || last.Active {
		t.Errorf("expected last status disconnected, got %+v", last)
	}
}

func TestReleaseMic_ChannelGoneDropsUnit(t *testing.T) {
	f := newFixture(t, time.Second, backendtest.WithGreeting(""))
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.client.PressMic(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// close the channel behind the orchestrator's back
	_ = f.client.conn.Close()

	err := f.client.ReleaseMic(context.Background())
	var txErr *connection.TransmissionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransmissionError, got %v", err)
	}
	if f.client.Snapshot().Recording {
		t.Error("expected recording false after failed send")
	}
	if n := f.client.Notices(); len(n) != 1 || n[0].Kind != NoticeTransmission {
		t.Errorf("expected one transmission notice, got %+v", n)
	}
	if len(f.backend.Received()) != 0 {
		t.Error("expected the unit to be dropped")
	}
}

func TestStartInterview_ConnectionFailure(t *testing.T) {
	client := New(Config{WSURL: "ws://127.0.0.1:1/ws", DialTimeout: time.Second}, Deps{
		Microphone: &testMic{},
		Sink:       &holdSink{},
	})
	defer client.Close()

	_, err := client.StartInterview(context.Background())
	var connErr *connection.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	snap := client.Snapshot()
	if snap.Active || snap.Connected {
		t.Errorf("expected inactive session, got %+v", snap)
	}
	if n := client.Notices(); len(n) != 1 || n[0].Kind != NoticeConnection {
		t.Errorf("expected one connection notice, got %+v", n)
	}
}

func TestPublishesTurnsAndLifecycle(t *testing.T) {
	f := newFixture(t, time.Second)
	id := f.startAndGreet(t)

	f.client.Close()

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	if len(f.pub.turns) != 1 {
		t.Fatalf("expected one turn event, got %d", len(f.pub.turns))
	}
	turn := f.pub.turns[0]
	if turn.SessionID != id || turn.Sequence != 1 || turn.Role != models.RoleAssistant {
		t.Errorf("unexpected turn event %+v", turn)
	}
	if len(f.pub.sessions) != 2 {
		t.Fatalf("expected started and closed events, got %+v", f.pub.sessions)
	}
	if f.pub.sessions[0].EventType != models.EventSessionStarted || f.pub.sessions[1].EventType != models.EventSessionClosed {
		t.Errorf("unexpected session events %+v", f.pub.sessions)
	}
}

func TestClose_Idempotent(t *testing.T) {
	f := newFixture(t, time.Second, backendtest.WithGreeting(""))
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.client.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.client.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
	if _, err := f.client.StartInterview(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if len(f.client.Notices()) != 0 {
		t.Error("expected no notice for our own close")
	}
}

func TestNoticeRing_Bounded(t *testing.T) {
	var r ring
	for i := 0; i < maxNotices+10; i++ {
		r.add(Notice{Kind: NoticeServer, Message: string(rune('a' + i%26))})
	}
	if n := len(r.list()); n != maxNotices {
		t.Errorf("expected %d notices, got %d", maxNotices, n)
	}
}

func TestSnapshot_ResponsiveWhileMicrophoneOpens(t *testing.T) {
	f := newFixture(t, time.Second)
	f.startAndGreet(t)

	f.mic.mu.Lock()
	f.mic.gate = make(chan struct{})
	f.mic.mu.Unlock()

	pressed := make(chan error, 1)
	go func() { pressed <- f.client.PressMic(context.Background()) }()
	waitUntil(t, "microphone acquisition", f.client.recorder.IsAcquiring)

	snap := make(chan Snapshot, 1)
	go func() { snap <- f.client.Snapshot() }()
	select {
	case s := <-snap:
		if s.Recording {
			t.Error("expected recording false while the microphone opens")
		}
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked while the microphone was opening")
	}

	// a new session abandons the pending acquisition
	if _, err := f.client.StartInterview(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case err := <-pressed:
		if !errors.Is(err, capture.ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending acquisition not cancelled by a new session")
	}
	for _, n := range f.client.Notices() {
		if n.Kind == NoticePermission {
			t.Errorf("expected no permission notice for a cancelled press, got %+v", n)
		}
	}
}

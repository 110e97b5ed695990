package interview

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeTrack struct {
	kind TrackKind

	mu       sync.Mutex
	enabled  bool
	stops    int
	disabled bool
}

func (t *fakeTrack) Kind() TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	t.enabled = false
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeRoom struct {
	mu        sync.Mutex
	published []TrackHandle
	leaves    int
	events    chan ParticipantEvent
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{events: make(chan ParticipantEvent, 4)}
}

func (r *fakeRoom) Publish(ctx context.Context, tracks ...TrackHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, tracks...)
	return nil
}

func (r *fakeRoom) Events() <-chan ParticipantEvent { return r.events }

func (r *fakeRoom) Leave() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves++
	return nil
}

func (r *fakeRoom) leaveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaves
}

type fakeProvider struct {
	acquireErr error
	joinErr    error
	room       *fakeRoom

	mu        sync.Mutex
	joins     int
	audio     *fakeTrack
	video     *fakeTrack
}

func (p *fakeProvider) AcquireLocalMedia(ctx context.Context, audio AudioConfig, video VideoConfig) (*LocalMedia, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = &fakeTrack{kind: TrackAudio, enabled: true}
	p.video = &fakeTrack{kind: TrackVideo, enabled: true}
	return &LocalMedia{Audio: p.audio, Video: p.video}, nil
}

func (p *fakeProvider) JoinRoom(ctx context.Context, room, identity string) (Room, error) {
	p.mu.Lock()
	p.joins++
	p.mu.Unlock()
	if p.joinErr != nil {
		return nil, p.joinErr
	}
	return p.room, nil
}

func (p *fakeProvider) joinCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joins
}

func testConfig(interval time.Duration) Config {
	return Config{
		Questions:        []string{"q1", "q2", "q3"},
		QuestionInterval: interval,
		NextStage:        "hr",
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestSelectModeRequiresAllCredentials(t *testing.T) {
	full := Credentials{URL: "wss://rtc.example.com", APIKey: "key", APISecret: "secret"}
	if got := SelectMode(full); got != ModeLive {
		t.Fatalf("expected live mode, got %s", got)
	}
	cases := []Credentials{
		{},
		{URL: "wss://rtc.example.com"},
		{URL: "wss://rtc.example.com", APIKey: "key"},
		{URL: "wss://rtc.example.com", APIKey: "key", APISecret: "  "},
		{URL: "YOUR_LIVEKIT_URL", APIKey: "key", APISecret: "secret"},
		{URL: "wss://rtc.example.com", APIKey: "your-api-key", APISecret: "secret"},
	}
	for i, c := range cases {
		if got := SelectMode(c); got != ModeDemo {
			t.Fatalf("case %d: expected demo mode, got %s", i, got)
		}
	}
}

func TestDemoModeNeverJoinsRoom(t *testing.T) {
	p := &fakeProvider{}
	s := NewSession("s1", "room", "cand", ModeDemo, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.End()

	if s.State() != StateConnected {
		t.Fatalf("expected connected, got %s", s.State())
	}
	if s.Mode() != ModeDemo {
		t.Fatalf("expected demo mode, got %s", s.Mode())
	}
	if p.joinCount() != 0 {
		t.Fatalf("demo session attempted a room join")
	}
	if p.audio == nil || p.video == nil {
		t.Fatalf("local media was not acquired")
	}
}

func TestMediaPermissionDeniedLeavesNoTracks(t *testing.T) {
	p := &fakeProvider{acquireErr: fmt.Errorf("getUserMedia: %w", ErrPermissionDenied)}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}

	snap := s.Snapshot()
	if snap.State != StateFailed {
		t.Fatalf("expected failed state, got %s", snap.State)
	}
	if snap.Failure != FailurePermissionDenied {
		t.Fatalf("expected permission_denied, got %s", snap.Failure)
	}
	if snap.Message != Remediation(FailurePermissionDenied, nil) {
		t.Fatalf("unexpected message: %q", snap.Message)
	}
	if p.joinCount() != 0 {
		t.Fatalf("join attempted after media failure")
	}
}

func TestJoinAuthFailureReleasesMedia(t *testing.T) {
	p := &fakeProvider{joinErr: fmt.Errorf("ws dial 401: %w", ErrAuthRequired)}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}

	snap := s.Snapshot()
	if snap.State != StateFailed {
		t.Fatalf("expected failed state, got %s", snap.State)
	}
	if snap.Failure != FailureAuthRequired {
		t.Fatalf("expected auth_required, got %s", snap.Failure)
	}
	if p.audio.stopCount() == 0 || p.video.stopCount() == 0 {
		t.Fatalf("media tracks left open after failed join")
	}
}

func TestFailedSessionCanRetry(t *testing.T) {
	p := &fakeProvider{joinErr: fmt.Errorf("ws dial 401: %w", ErrAuthRequired)}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}

	p.joinErr = nil
	p.room = newFakeRoom()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	defer s.End()
	if s.State() != StateConnected {
		t.Fatalf("expected connected after retry, got %s", s.State())
	}
}

func TestPublishHappensAfterAcquire(t *testing.T) {
	room := newFakeRoom()
	p := &fakeProvider{room: room}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.End()

	room.mu.Lock()
	published := append([]TrackHandle(nil), room.published...)
	room.mu.Unlock()
	if len(published) != 2 {
		t.Fatalf("expected 2 published tracks, got %d", len(published))
	}
	if published[0] != TrackHandle(p.audio) || published[1] != TrackHandle(p.video) {
		t.Fatalf("published tracks are not the acquired handles")
	}
}

func TestTeardownIdempotent(t *testing.T) {
	room := newFakeRoom()
	p := &fakeProvider{room: room}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.End()
		}()
	}
	wg.Wait()
	s.End()

	if s.State() != StateEnded {
		t.Fatalf("expected ended, got %s", s.State())
	}
	if room.leaveCount() != 1 {
		t.Fatalf("expected exactly one leave, got %d", room.leaveCount())
	}
	if p.audio.stopCount() != 1 || p.video.stopCount() != 1 {
		t.Fatalf("tracks released more than once: audio=%d video=%d", p.audio.stopCount(), p.video.stopCount())
	}
	snap := s.Snapshot()
	if snap.NextStage != "hr" {
		t.Fatalf("expected next stage hr, got %q", snap.NextStage)
	}
}

func TestQuestionTimerAdvancesAndStopsAtEnd(t *testing.T) {
	room := newFakeRoom()
	p := &fakeProvider{room: room}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(15*time.Millisecond), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.End()

	waitFor(t, func() bool { return s.Snapshot().QuestionIndex == 2 }, "timer to reach last question")

	// stays pinned at the last question
	time.Sleep(60 * time.Millisecond)
	if idx := s.Snapshot().QuestionIndex; idx != 2 {
		t.Fatalf("index moved past last question: %d", idx)
	}
}

func TestNoTimerFiringsAfterEnd(t *testing.T) {
	room := newFakeRoom()
	p := &fakeProvider{room: room}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(25*time.Millisecond), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.End()
	idx := s.Snapshot().QuestionIndex

	time.Sleep(100 * time.Millisecond)
	if got := s.Snapshot().QuestionIndex; got != idx {
		t.Fatalf("question advanced after end: %d -> %d", idx, got)
	}
}

func TestManualAdvanceBounded(t *testing.T) {
	room := newFakeRoom()
	p := &fakeProvider{room: room}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.End()

	for i := 0; i < 10; i++ {
		s.Advance()
	}
	if idx := s.Snapshot().QuestionIndex; idx != 2 {
		t.Fatalf("expected index pinned at 2, got %d", idx)
	}
}

func TestAvatarMayAppearLateOrNever(t *testing.T) {
	room := newFakeRoom()
	p := &fakeProvider{room: room}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.End()

	// no avatar yet: still connected, no failure reported
	snap := s.Snapshot()
	if snap.State != StateConnected || snap.AvatarPresent || snap.Failure != FailureNone {
		t.Fatalf("absence of avatar treated as failure: %+v", snap)
	}

	room.events <- ParticipantEvent{Participant: Participant{Identity: "sarah", Role: RoleAvatar}, Joined: true}
	waitFor(t, func() bool { return s.Snapshot().AvatarPresent }, "avatar presence")

	// other participants never count as the avatar
	room.events <- ParticipantEvent{Participant: Participant{Identity: "observer", Role: RoleCandidate}, Joined: false}
	time.Sleep(20 * time.Millisecond)
	if !s.Snapshot().AvatarPresent {
		t.Fatalf("non-avatar event cleared avatar presence")
	}
}

func TestRemoteDisconnectTriggersTeardown(t *testing.T) {
	room := newFakeRoom()
	p := &fakeProvider{room: room}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	close(room.events)
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not tear down on remote disconnect")
	}
	if s.State() != StateEnded {
		t.Fatalf("expected ended, got %s", s.State())
	}
	if p.audio.stopCount() != 1 {
		t.Fatalf("audio track not released on remote disconnect")
	}
}

func TestToggleKeepsTrackAlive(t *testing.T) {
	p := &fakeProvider{}
	s := NewSession("s1", "room", "cand", ModeDemo, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.End()

	s.SetAudioEnabled(false)
	if p.audio.Enabled() {
		t.Fatalf("audio still enabled after mute")
	}
	if p.audio.stopCount() != 0 {
		t.Fatalf("mute released the audio track")
	}
	s.SetAudioEnabled(true)
	if !p.audio.Enabled() {
		t.Fatalf("audio not re-enabled")
	}
}

func TestUnknownFailureSurfacesRawError(t *testing.T) {
	p := &fakeProvider{acquireErr: fmt.Errorf("ICE gathering exploded")}
	s := NewSession("s1", "room", "cand", ModeLive, p, testConfig(time.Hour), nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	snap := s.Snapshot()
	if snap.Failure != FailureUnknown {
		t.Fatalf("expected unknown failure, got %s", snap.Failure)
	}
	if want := "ICE gathering exploded"; !strings.Contains(snap.Message, want) {
		t.Fatalf("raw error not surfaced: %q", snap.Message)
	}
}

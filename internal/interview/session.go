package interview

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Mode selects how a session runs. Demo is the local-media-only fallback
// used when service credentials are absent.
type Mode string

const (
	ModeUninitialized Mode = "uninitialized"
	ModeDemo          Mode = "demo"
	ModeLive          Mode = "live"
)

// State is the session connection state. Transitions are monotonic except
// the explicit Failed -> (restart) retry path.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateEnded      State = "ended"
	StateFailed     State = "failed"
)

// Credentials are the three values required for live mode.
type Credentials struct {
	URL       string
	APIKey    string
	APISecret string
}

// SelectMode is the session initializer: a pure check of the configured
// credentials. Missing or placeholder values select demo mode; this is a
// valid fallback, never an error.
func SelectMode(c Credentials) Mode {
	for _, v := range []string{c.URL, c.APIKey, c.APISecret} {
		v = strings.TrimSpace(v)
		if v == "" || strings.HasPrefix(v, "YOUR_") || strings.HasPrefix(v, "your-") {
			return ModeDemo
		}
	}
	return ModeLive
}

// Config carries the per-session settings the registry resolves from the
// application config.
type Config struct {
	Questions        []string
	QuestionInterval time.Duration
	NextStage        string
	Audio            AudioConfig
	Video            VideoConfig
}

// Session drives one interview: local media acquisition, the room
// handshake, question progression and teardown. All state lives behind one
// mutex so transitions are atomic with respect to every caller.
type Session struct {
	ID       string
	Room     string
	Identity string

	cfg      Config
	provider MediaProvider
	logger   *log.Logger

	mu            sync.Mutex
	mode          Mode
	state         State
	media         *LocalMedia
	room          Room
	qIndex        int
	avatarPresent bool
	failure       FailureKind
	failureMsg    string
	connectedAt   time.Time
	endedAt       time.Time
	cancel        context.CancelFunc

	teardown sync.Once
	done     chan struct{}

	terminal func(Snapshot)
}

// Snapshot is a point-in-time copy of session state for API responses.
type Snapshot struct {
	ID             string      `json:"id"`
	Mode           Mode        `json:"mode"`
	State          State       `json:"state"`
	QuestionIndex  int         `json:"question_index"`
	TotalQuestions int         `json:"total_questions"`
	Question       string      `json:"question"`
	AvatarPresent  bool        `json:"avatar_present"`
	Failure        FailureKind `json:"failure,omitempty"`
	Message        string      `json:"message,omitempty"`
	NextStage      string      `json:"next_stage,omitempty"`
}

// NewSession builds a session in Idle state. The mode comes from SelectMode
// and never changes for the lifetime of the session.
func NewSession(id, room, identity string, mode Mode, provider MediaProvider, cfg Config, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(log.Writer(), "[INTERVIEW] ", log.LstdFlags)
	}
	return &Session{
		ID:       id,
		Room:     room,
		Identity: identity,
		cfg:      cfg,
		provider: provider,
		logger:   logger,
		mode:     mode,
		state:    StateIdle,
		done:     make(chan struct{}),
	}
}

// OnTerminal registers a hook invoked after every transition into Ended or
// Failed, with the snapshot taken at the transition. A retried session fires
// it again on its next terminal state. Set before Start.
func (s *Session) OnTerminal(fn func(Snapshot)) {
	s.mu.Lock()
	s.terminal = fn
	s.mu.Unlock()
}

// Start acquires local media and, in live mode, joins the room and
// publishes the tracks. Media acquisition always completes before any join
// is attempted; publish never happens before local tracks exist. A failed
// session may be started again (the Failed -> Idle retry path).
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return fmt.Errorf("interview %s cannot start, already torn down", s.ID)
	default:
	}
	if s.state != StateIdle && s.state != StateFailed {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("interview %s cannot start from state %s", s.ID, st)
	}
	s.state = StateConnecting
	s.failure = FailureNone
	s.failureMsg = ""
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	mode := s.mode
	s.mu.Unlock()
	metricStarted.WithLabelValues(string(mode)).Inc()

	media, err := s.provider.AcquireLocalMedia(ctx, s.cfg.Audio, s.cfg.Video)
	if err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting { // torn down while acquiring
		s.mu.Unlock()
		media.StopAll()
		return nil
	}
	s.media = media
	s.mu.Unlock()

	if mode == ModeDemo {
		// Local-only session: no room, no publish. Question progression
		// still runs so the candidate can rehearse.
		s.connected(ctx, nil)
		return nil
	}

	room, err := s.provider.JoinRoom(ctx, s.Room, s.Identity)
	if err != nil {
		s.releaseMedia()
		s.fail(err)
		return err
	}
	if err := room.Publish(ctx, media.Audio, media.Video); err != nil {
		_ = room.Leave()
		s.releaseMedia()
		s.fail(err)
		return err
	}

	s.connected(ctx, room)
	return nil
}

// connected transitions to Connected and starts the question timer and,
// when a room exists, the participant observer. A concurrent teardown wins:
// the late room is left again rather than adopted.
func (s *Session) connected(ctx context.Context, room Room) {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		if room != nil {
			_ = room.Leave()
		}
		return
	}
	s.room = room
	s.state = StateConnected
	s.connectedAt = time.Now()
	s.mu.Unlock()

	s.logger.Printf("session %s connected (%s)", s.ID, s.mode)
	go s.runTimer(ctx)
	if room != nil {
		go s.observe(ctx, room)
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if terminal(s.state) {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.state = StateFailed
	s.failure = Classify(err)
	s.failureMsg = Remediation(s.failure, err)
	snap := s.snapshotLocked()
	hook := s.terminal
	s.mu.Unlock()

	metricFailed.WithLabelValues(string(snap.Failure)).Inc()
	s.logger.Printf("session %s failed (%s): %v", s.ID, snap.Failure, err)
	if hook != nil {
		hook(snap)
	}
}

// Expire fails a session that never reached Connected and releases whatever
// it holds. Unlike End the session stays in Failed, so a retry is possible.
func (s *Session) Expire() {
	s.fail(fmt.Errorf("session expired before connecting"))
	s.mu.Lock()
	media := s.media
	room := s.room
	s.media = nil
	s.room = nil
	s.mu.Unlock()
	media.StopAll()
	if room != nil {
		_ = room.Leave()
	}
}

func (s *Session) releaseMedia() {
	s.mu.Lock()
	media := s.media
	s.media = nil
	s.mu.Unlock()
	media.StopAll()
}

// runTimer advances the question list on a fixed wall-clock interval while
// the session stays Connected, stopping once the last question is reached.
func (s *Session) runTimer(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.QuestionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.advance() {
				return
			}
		}
	}
}

// advance bumps the question index if the session is Connected and not on
// the last question. The returned bool tells the timer whether to keep
// ticking.
func (s *Session) advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return false
	}
	if s.qIndex < len(s.cfg.Questions)-1 {
		s.qIndex++
		metricAdvances.Inc()
	}
	return s.qIndex < len(s.cfg.Questions)-1
}

// Advance is the manual "next question" trigger. Advancing past the last
// question is a no-op. Returns the resulting index.
func (s *Session) Advance() int {
	s.advance()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qIndex
}

// observe watches remote participants for the AI avatar. The avatar joining
// late, or never, is tolerated indefinitely; only a closed event channel
// (remote disconnect) ends the session.
func (s *Session) observe(ctx context.Context, room Room) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-room.Events():
			if !ok {
				s.logger.Printf("session %s: room connection lost", s.ID)
				s.End()
				return
			}
			if ev.Participant.Role != RoleAvatar {
				continue
			}
			s.mu.Lock()
			s.avatarPresent = ev.Joined
			s.mu.Unlock()
		}
	}
}

// SetAudioEnabled toggles the microphone without releasing it.
func (s *Session) SetAudioEnabled(enabled bool) {
	s.setTrackEnabled(TrackAudio, enabled)
}

// SetVideoEnabled toggles the camera without releasing it.
func (s *Session) SetVideoEnabled(enabled bool) {
	s.setTrackEnabled(TrackVideo, enabled)
}

func (s *Session) setTrackEnabled(kind TrackKind, enabled bool) {
	s.mu.Lock()
	media := s.media
	s.mu.Unlock()
	if media == nil {
		return
	}
	switch kind {
	case TrackAudio:
		if media.Audio != nil {
			media.Audio.SetEnabled(enabled)
		}
	case TrackVideo:
		if media.Video != nil {
			media.Video.SetEnabled(enabled)
		}
	}
}

// End tears the session down: stop and release both tracks, leave the room
// if one was joined (demo sessions never have one), then mark Ended. A
// session already in Failed keeps that state; it held nothing by then. Safe
// to call any number of times from any goroutine; the work runs once.
func (s *Session) End() {
	s.teardown.Do(func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		media := s.media
		room := s.room
		s.media = nil
		s.room = nil
		s.mu.Unlock()

		media.StopAll()
		if room != nil {
			if err := room.Leave(); err != nil {
				s.logger.Printf("session %s: leave room: %v", s.ID, err)
			}
		}

		s.mu.Lock()
		ended := s.state != StateFailed
		if ended {
			s.state = StateEnded
			s.endedAt = time.Now()
		}
		snap := s.snapshotLocked()
		hook := s.terminal
		s.mu.Unlock()

		if ended {
			metricEnded.Inc()
			s.logger.Printf("session %s ended", s.ID)
			if hook != nil {
				hook(snap)
			}
		}
		close(s.done)
	})
}

// Done is closed once teardown has completed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Mode returns the selected mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectedAt reports when the session reached Connected, zero if never.
func (s *Session) ConnectedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectedAt
}

// Snapshot copies the current state for API responses.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:             s.ID,
		Mode:           s.mode,
		State:          s.state,
		QuestionIndex:  s.qIndex,
		TotalQuestions: len(s.cfg.Questions),
		AvatarPresent:  s.avatarPresent,
		Failure:        s.failure,
		Message:        s.failureMsg,
	}
	if s.qIndex < len(s.cfg.Questions) {
		snap.Question = s.cfg.Questions[s.qIndex]
	}
	if s.state == StateEnded {
		snap.NextStage = s.cfg.NextStage
	}
	return snap
}

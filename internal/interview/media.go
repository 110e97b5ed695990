package interview

import "context"

// TrackKind identifies a local capture track.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// AudioConfig holds desired microphone capture parameters. Values are passed
// through to the provider; capability negotiation is the platform's problem.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	BitrateKbps int
}

// VideoConfig holds desired camera capture parameters.
type VideoConfig struct {
	Width       int
	Height      int
	Framerate   int
	BitrateKbps int
}

// TrackHandle is an owned reference to a local capture stream. Exactly one
// audio and one video handle exist per session. SetEnabled flips mute/camera
// state without releasing the device; Stop releases it and must be safe to
// call more than once.
type TrackHandle interface {
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	Stop()
}

// LocalMedia bundles the two track handles a session owns.
type LocalMedia struct {
	Audio TrackHandle
	Video TrackHandle
}

// StopAll releases both tracks. Nil handles and repeated calls are fine.
func (m *LocalMedia) StopAll() {
	if m == nil {
		return
	}
	if m.Audio != nil {
		m.Audio.Stop()
	}
	if m.Video != nil {
		m.Video.Stop()
	}
}

// Role is the typed capability flag carried in participant info. Avatar
// detection checks this flag instead of matching identity substrings.
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleAvatar    Role = "ai-avatar"
)

// Participant is a weak reference to a remote room member. Observed, never
// owned; the avatar may appear at any time after connecting, or never.
type Participant struct {
	Identity string
	Role     Role
}

// ParticipantEvent reports a remote participant joining or leaving.
type ParticipantEvent struct {
	Participant Participant
	Joined      bool
}

// Room is an established real-time session on the remote service.
type Room interface {
	// Publish makes the local tracks available to the room. Never called
	// before AcquireLocalMedia has returned successfully.
	Publish(ctx context.Context, tracks ...TrackHandle) error

	// Events delivers participant joins/leaves. The channel closes when the
	// room connection is gone (remote disconnect), which the session treats
	// as an end-interview trigger.
	Events() <-chan ParticipantEvent

	// Leave disconnects from the room. Idempotent.
	Leave() error
}

// MediaProvider abstracts local capture and room connectivity so demo and
// live sessions share one state machine. Demo providers never get JoinRoom
// calls.
type MediaProvider interface {
	AcquireLocalMedia(ctx context.Context, audio AudioConfig, video VideoConfig) (*LocalMedia, error)
	JoinRoom(ctx context.Context, room, identity string) (Room, error)
}

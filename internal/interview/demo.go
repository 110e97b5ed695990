package interview

import (
	"context"
	"fmt"
	"sync"
)

// DemoProvider backs demo-mode sessions: local capture succeeds, no room
// connectivity exists. It doubles as the provider used in tests.
type DemoProvider struct{}

// NewDemoProvider returns the local-only provider.
func NewDemoProvider() *DemoProvider { return &DemoProvider{} }

// AcquireLocalMedia hands out one audio and one video handle.
func (p *DemoProvider) AcquireLocalMedia(ctx context.Context, audio AudioConfig, video VideoConfig) (*LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &LocalMedia{
		Audio: newDemoTrack(TrackAudio),
		Video: newDemoTrack(TrackVideo),
	}, nil
}

// JoinRoom is never reached in demo mode; returning an error keeps misuse
// loud instead of silently pretending a room exists.
func (p *DemoProvider) JoinRoom(ctx context.Context, room, identity string) (Room, error) {
	return nil, fmt.Errorf("demo provider has no room connectivity")
}

// demoTrack is a stand-in capture handle with the same enable/stop contract
// as a real device track.
type demoTrack struct {
	kind TrackKind

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newDemoTrack(kind TrackKind) *demoTrack {
	return &demoTrack{kind: kind, enabled: true}
}

func (t *demoTrack) Kind() TrackKind { return t.kind }

func (t *demoTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *demoTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.enabled = enabled
}

func (t *demoTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.enabled = false
}

// Stopped reports whether the track has been released. Used by tests.
func (t *demoTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

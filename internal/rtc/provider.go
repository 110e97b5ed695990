package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/onboardly/onboardly/internal/interview"
)

// opus DTX silence frame
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Provider implements interview.MediaProvider against a LiveKit deployment.
// Local media here is synthesized sample tracks; the candidate's real camera
// feed is negotiated browser-side, this side keeps the server's seat in the
// room alive and publishes its tracks.
type Provider struct {
	url       string
	apiKey    string
	apiSecret string
	tokenTTL  time.Duration
	logger    *log.Logger
}

// NewProvider builds a live provider from the LiveKit credentials.
func NewProvider(url, apiKey, apiSecret string, tokenTTL time.Duration, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.New(log.Writer(), "[RTC] ", log.LstdFlags)
	}
	return &Provider{url: url, apiKey: apiKey, apiSecret: apiSecret, tokenTTL: tokenTTL, logger: logger}
}

// AcquireLocalMedia creates one opus audio and one VP8 video sample track.
func (p *Provider) AcquireLocalMedia(ctx context.Context, audio interview.AudioConfig, video interview.VideoConfig) (*interview.LocalMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audioLocal, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: uint32(audio.SampleRate), Channels: uint16(audio.Channels)},
		"candidate-audio", "candidate",
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	videoLocal, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"candidate-video", "candidate",
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}

	frameInterval := time.Second / 30
	if video.Framerate > 0 {
		frameInterval = time.Second / time.Duration(video.Framerate)
	}

	a := newSampleTrack(interview.TrackAudio, audioLocal, 20*time.Millisecond, opusSilence)
	v := newSampleTrack(interview.TrackVideo, videoLocal, frameInterval, make([]byte, 64))
	go a.feed()
	go v.feed()

	return &interview.LocalMedia{Audio: a, Video: v}, nil
}

// JoinRoom mints a token, dials the signalling socket and sets up the peer
// connection. HTTP 401 on the dial means the token was rejected, 403 means
// the grant does not cover the room.
func (p *Provider) JoinRoom(ctx context.Context, room, identity string) (interview.Room, error) {
	token, err := GenerateAccessToken(p.apiKey, p.apiSecret, room, identity, p.tokenTTL)
	if err != nil {
		return nil, err
	}

	wsURL := p.url
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + wsURL[len("https"):]
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + wsURL[len("http"):]
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + "/rtc?access_token=" + token

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return nil, fmt.Errorf("dial %s: %w", p.url, interview.ErrAuthRequired)
			case http.StatusForbidden:
				return nil, fmt.Errorf("dial %s: %w", p.url, interview.ErrPermissionDenied)
			}
		}
		return nil, fmt.Errorf("dial %s: %w", p.url, err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	r := &liveRoom{
		name:   room,
		conn:   conn,
		pc:     pc,
		events: make(chan interview.ParticipantEvent, 16),
		logger: p.logger,
	}
	go r.readLoop()

	p.logger.Printf("joined room %s as %s", room, identity)
	return r, nil
}

// liveRoom is one signalling connection plus its peer connection.
type liveRoom struct {
	name   string
	conn   *websocket.Conn
	pc     *webrtc.PeerConnection
	events chan interview.ParticipantEvent
	logger *log.Logger
	once   sync.Once
}

// Publish adds each sample track to the peer connection.
func (r *liveRoom) Publish(ctx context.Context, tracks ...interview.TrackHandle) error {
	for _, t := range tracks {
		st, ok := t.(*sampleTrack)
		if !ok {
			return fmt.Errorf("room %s: cannot publish track of type %T", r.name, t)
		}
		if _, err := r.pc.AddTrack(st.track); err != nil {
			return fmt.Errorf("add %s track: %w", st.Kind(), err)
		}
	}
	return nil
}

// Events delivers participant joins and leaves. Closed when the signalling
// connection drops.
func (r *liveRoom) Events() <-chan interview.ParticipantEvent { return r.events }

// Leave closes the signalling socket and the peer connection. The read loop
// notices the closed socket and shuts the event channel.
func (r *liveRoom) Leave() error {
	r.once.Do(func() {
		if err := r.pc.Close(); err != nil {
			r.logger.Printf("room %s: close peer connection: %v", r.name, err)
		}
		if err := r.conn.Close(); err != nil {
			r.logger.Printf("room %s: close socket: %v", r.name, err)
		}
	})
	return nil
}

type roomMessage struct {
	Type        string `json:"type"`
	Participant struct {
		Identity string `json:"identity"`
		Role     string `json:"role"`
	} `json:"participant"`
}

func (r *liveRoom) readLoop() {
	defer close(r.events)
	for {
		_, payload, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Printf("room %s: signalling read: %v", r.name, err)
			}
			return
		}

		var msg roomMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			r.logger.Printf("room %s: bad signalling message: %v", r.name, err)
			continue
		}

		var joined bool
		switch msg.Type {
		case "participant_connected":
			joined = true
		case "participant_disconnected":
			joined = false
		default:
			continue
		}

		role := interview.Role(msg.Participant.Role)
		if role == "" {
			role = interview.RoleCandidate
		}
		ev := interview.ParticipantEvent{
			Participant: interview.Participant{Identity: msg.Participant.Identity, Role: role},
			Joined:      joined,
		}
		select {
		case r.events <- ev:
		default:
			// a stalled consumer must not block signalling reads
		}
	}
}

// sampleTrack wraps a pion sample track with the enable/stop contract. While
// enabled, the feeder writes silence or blank frames so the track stays bound.
type sampleTrack struct {
	kind     interview.TrackKind
	track    *webrtc.TrackLocalStaticSample
	interval time.Duration
	payload  []byte

	mu      sync.Mutex
	enabled bool

	stop     chan struct{}
	stopOnce sync.Once
}

func newSampleTrack(kind interview.TrackKind, track *webrtc.TrackLocalStaticSample, interval time.Duration, payload []byte) *sampleTrack {
	return &sampleTrack{
		kind:     kind,
		track:    track,
		interval: interval,
		payload:  payload,
		enabled:  true,
		stop:     make(chan struct{}),
	}
}

func (t *sampleTrack) Kind() interview.TrackKind { return t.kind }

func (t *sampleTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *sampleTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

func (t *sampleTrack) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.enabled = false
		t.mu.Unlock()
		close(t.stop)
	})
}

func (t *sampleTrack) feed() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			sample := media.Sample{Data: t.payload, Duration: t.interval}
			if err := t.track.WriteSample(sample); err != nil {
				return
			}
		}
	}
}

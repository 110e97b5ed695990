package interview

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Registry owns every in-flight interview session. It picks the mode for
// new sessions, enforces one live session per application, and reaps
// sessions the candidate walked away from.
type Registry struct {
	creds  Credentials
	cfg    Config
	ttl    time.Duration
	demo   MediaProvider
	live   MediaProvider
	rdb    *redis.Client
	logger *log.Logger

	// OnOutcome, when set before the first Start, receives the snapshot of
	// every terminal transition (Failed and Ended both, a retried session
	// reports each in turn). The server wires it to interview persistence.
	OnOutcome func(*Session, Snapshot)

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	sess          *Session
	applicationID int64
	createdAt     time.Time
}

// NewRegistry builds a registry. live may be nil, which forces demo mode
// regardless of credentials (used when the rtc client cannot be built).
// rdb may be nil; duplicate-session locking then degrades to in-process.
func NewRegistry(creds Credentials, cfg Config, ttl time.Duration, demo, live MediaProvider, rdb *redis.Client, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(log.Writer(), "[INTERVIEW] ", log.LstdFlags)
	}
	return &Registry{
		creds:   creds,
		cfg:     cfg,
		ttl:     ttl,
		demo:    demo,
		live:    live,
		rdb:     rdb,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Start creates and launches a session for the application. The HTTP
// handler gets the session back immediately while media acquisition and the
// room handshake run in the background.
func (r *Registry) Start(ctx context.Context, applicationID int64) (*Session, error) {
	mode := SelectMode(r.creds)
	provider := r.live
	if mode == ModeDemo || provider == nil {
		mode = ModeDemo
		provider = r.demo
	}

	id := uuid.NewString()
	roomName := fmt.Sprintf("interview-%d", applicationID)
	identity := fmt.Sprintf("candidate-%s", id[:8])
	sess := NewSession(id, roomName, identity, mode, provider, r.cfg, r.logger)
	// any terminal state releases the application lock, however the session
	// got there: explicit end, failure, remote disconnect, reaper
	sess.OnTerminal(func(snap Snapshot) {
		r.unlock(context.Background(), applicationID)
		if r.OnOutcome != nil {
			r.OnOutcome(sess, snap)
		}
	})

	// duplicate check and insert under one lock, so two concurrent Starts
	// for the same application cannot both pass the scan
	r.mu.Lock()
	for _, e := range r.entries {
		if e.applicationID == applicationID && !terminal(e.sess.State()) {
			r.mu.Unlock()
			return nil, fmt.Errorf("interview already in progress for application %d", applicationID)
		}
	}
	r.entries[id] = &entry{sess: sess, applicationID: applicationID, createdAt: time.Now()}
	r.mu.Unlock()

	if err := r.lock(ctx, applicationID); err != nil {
		r.mu.Lock()
		delete(r.entries, id)
		r.mu.Unlock()
		return nil, err
	}

	go func() {
		// the session outlives the HTTP request that started it
		if err := sess.Start(context.Background()); err != nil {
			r.logger.Printf("session %s start: %v", id, err)
		}
	}()
	return sess, nil
}

// lock takes the distributed guard so two instances cannot interview the
// same application at once. A redis outage degrades to the in-process check
// rather than blocking interviews.
func (r *Registry) lock(ctx context.Context, applicationID int64) error {
	if r.rdb == nil {
		return nil
	}
	lockKey := fmt.Sprintf("interview:active:%d", applicationID)
	ok, err := r.rdb.SetNX(ctx, lockKey, "1", r.ttl).Result()
	if err != nil {
		r.logger.Printf("interview lock for application %d: %v", applicationID, err)
		return nil
	}
	if !ok {
		return fmt.Errorf("interview already in progress for application %d", applicationID)
	}
	return nil
}

// Retry relaunches a failed session on the same entry. The failure released
// the application lock, so it is taken again first.
func (r *Registry) Retry(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("interview %s not found", id)
	}
	select {
	case <-e.sess.Done():
		return nil, fmt.Errorf("interview %s already ended", id)
	default:
	}
	if st := e.sess.State(); st != StateFailed {
		return nil, fmt.Errorf("interview %s is %s, only a failed interview can retry", id, st)
	}
	if err := r.lock(ctx, e.applicationID); err != nil {
		return nil, err
	}
	// restart the reap clock along with the session
	r.mu.Lock()
	e.createdAt = time.Now()
	r.mu.Unlock()
	go func() {
		if err := e.sess.Start(context.Background()); err != nil {
			r.logger.Printf("session %s retry: %v", id, err)
		}
	}()
	return e.sess, nil
}

// Get returns the session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// End tears a session down. The terminal hook releases its application lock.
func (r *Registry) End(ctx context.Context, id string) (*Session, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.sess.End()
	return e.sess, true
}

// Shutdown ends every session. Safe alongside concurrent End calls;
// teardown still runs once per session.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()
	for _, e := range entries {
		e.sess.End()
	}
}

// ReapStale fails sessions stuck before Connected and drops terminal
// sessions older than the TTL. Called by the scheduler.
func (r *Registry) ReapStale(ctx context.Context) int {
	cutoff := time.Now().Add(-r.ttl)
	r.mu.Lock()
	var stale, gone []*entry
	var goneIDs []string
	for id, e := range r.entries {
		st := e.sess.State()
		switch {
		case terminal(st) && e.createdAt.Before(cutoff):
			gone = append(gone, e)
			goneIDs = append(goneIDs, id)
		case !terminal(st) && e.createdAt.Before(cutoff):
			stale = append(stale, e)
		}
	}
	for _, id := range goneIDs {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, e := range stale {
		r.logger.Printf("reaping stale session %s", e.sess.ID)
		if e.sess.State() == StateConnected {
			e.sess.End()
		} else {
			// stuck before Connected: mark failed, keep the retry path open
			e.sess.Expire()
		}
	}
	return len(stale) + len(gone)
}

func (r *Registry) unlock(ctx context.Context, applicationID int64) {
	if r.rdb == nil {
		return
	}
	r.rdb.Del(ctx, fmt.Sprintf("interview:active:%d", applicationID))
}

func terminal(st State) bool {
	return st == StateEnded || st == StateFailed
}

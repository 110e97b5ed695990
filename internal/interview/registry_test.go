package interview

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testRegistry(ttl time.Duration) *Registry {
	cfg := testConfig(time.Hour)
	return NewRegistry(Credentials{}, cfg, ttl, NewDemoProvider(), nil, nil, nil)
}

// redisRegistry backs the registry with an in-memory redis. A non-nil live
// provider gets real-looking credentials so sessions run in live mode.
func redisRegistry(t *testing.T, live MediaProvider) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	creds := Credentials{}
	if live != nil {
		creds = Credentials{URL: "wss://rtc.example.com", APIKey: "key", APISecret: "secret"}
	}
	return NewRegistry(creds, testConfig(time.Hour), time.Hour, NewDemoProvider(), live, rdb, nil), mr
}

// roomPerJoin hands out a fresh room on every join, so a retried session
// does not inherit a dead event channel.
type roomPerJoin struct {
	fakeProvider

	roomsMu sync.Mutex
	joinErr error
	rooms   []*fakeRoom
}

func (p *roomPerJoin) setJoinErr(err error) {
	p.roomsMu.Lock()
	p.joinErr = err
	p.roomsMu.Unlock()
}

func (p *roomPerJoin) JoinRoom(ctx context.Context, room, identity string) (Room, error) {
	p.roomsMu.Lock()
	defer p.roomsMu.Unlock()
	if p.joinErr != nil {
		return nil, p.joinErr
	}
	r := newFakeRoom()
	p.rooms = append(p.rooms, r)
	return r, nil
}

func (p *roomPerJoin) roomAt(i int) *fakeRoom {
	p.roomsMu.Lock()
	defer p.roomsMu.Unlock()
	if i >= len(p.rooms) {
		return nil
	}
	return p.rooms[i]
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRegistryStartFallsBackToDemo(t *testing.T) {
	r := testRegistry(time.Hour)
	sess, err := r.Start(context.Background(), 42)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer r.Shutdown(context.Background())

	if sess.Mode() != ModeDemo {
		t.Fatalf("expected demo mode without credentials, got %s", sess.Mode())
	}
	waitFor(t, func() bool { return sess.State() == StateConnected }, "session to connect")

	got, ok := r.Get(sess.ID)
	if !ok || got != sess {
		t.Fatalf("registry lost the session")
	}
}

func TestRegistryRejectsDuplicateApplication(t *testing.T) {
	r := testRegistry(time.Hour)
	defer r.Shutdown(context.Background())

	if _, err := r.Start(context.Background(), 7); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := r.Start(context.Background(), 7); err == nil {
		t.Fatalf("second start for the same application succeeded")
	}
	// a different application is unaffected
	if _, err := r.Start(context.Background(), 8); err != nil {
		t.Fatalf("unrelated start: %v", err)
	}
}

func TestRegistryAllowsRestartAfterEnd(t *testing.T) {
	r := testRegistry(time.Hour)
	defer r.Shutdown(context.Background())

	sess, err := r.Start(context.Background(), 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, ok := r.End(context.Background(), sess.ID); !ok {
		t.Fatalf("end: session not found")
	}
	if sess.State() != StateEnded {
		t.Fatalf("expected ended, got %s", sess.State())
	}
	if _, err := r.Start(context.Background(), 7); err != nil {
		t.Fatalf("restart after end: %v", err)
	}
}

func TestRegistryEndUnknownSession(t *testing.T) {
	r := testRegistry(time.Hour)
	if _, ok := r.End(context.Background(), "nope"); ok {
		t.Fatalf("ending an unknown session reported success")
	}
}

func TestRegistryReapStale(t *testing.T) {
	r := testRegistry(30 * time.Millisecond)
	defer r.Shutdown(context.Background())

	sess, err := r.Start(context.Background(), 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return sess.State() == StateConnected }, "session to connect")

	time.Sleep(50 * time.Millisecond)
	if n := r.ReapStale(context.Background()); n != 1 {
		t.Fatalf("expected 1 reaped, got %d", n)
	}
	if sess.State() != StateEnded {
		t.Fatalf("stale session not torn down, state %s", sess.State())
	}

	// second pass removes the now-terminal entry
	time.Sleep(50 * time.Millisecond)
	if n := r.ReapStale(context.Background()); n != 1 {
		t.Fatalf("expected terminal entry dropped, got %d", n)
	}
	if _, ok := r.Get(sess.ID); ok {
		t.Fatalf("terminal session still in registry after reap")
	}
}

func TestRegistryConcurrentStartsSingleWinner(t *testing.T) {
	r := testRegistry(time.Hour)
	defer r.Shutdown(context.Background())

	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Start(context.Background(), 7); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&successes); got != 1 {
		t.Fatalf("expected exactly one start to win, got %d", got)
	}
}

func TestRegistryReleasesLockOnRemoteDisconnect(t *testing.T) {
	p := &roomPerJoin{}
	r, mr := redisRegistry(t, p)
	defer r.Shutdown(context.Background())

	sess, err := r.Start(context.Background(), 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return sess.State() == StateConnected }, "session to connect")
	if !mr.Exists("interview:active:7") {
		t.Fatalf("application lock not taken")
	}

	// the remote side drops the connection, nobody calls Registry.End
	close(p.roomAt(0).events)
	waitFor(t, func() bool { return sess.State() == StateEnded }, "teardown on disconnect")
	waitFor(t, func() bool { return !mr.Exists("interview:active:7") }, "lock release")

	again, err := r.Start(context.Background(), 7)
	if err != nil {
		t.Fatalf("restart after disconnect: %v", err)
	}
	waitFor(t, func() bool { return again.State() == StateConnected }, "fresh session to connect")
}

func TestRegistryReleasesLockOnStartFailure(t *testing.T) {
	p := &roomPerJoin{}
	p.setJoinErr(fmt.Errorf("ws dial 401: %w", ErrAuthRequired))
	r, mr := redisRegistry(t, p)
	defer r.Shutdown(context.Background())

	sess, err := r.Start(context.Background(), 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return sess.State() == StateFailed }, "session to fail")
	waitFor(t, func() bool { return !mr.Exists("interview:active:7") }, "lock release on failure")
}

func TestRegistryRetryAfterFailure(t *testing.T) {
	p := &roomPerJoin{}
	p.setJoinErr(fmt.Errorf("ws dial 401: %w", ErrAuthRequired))
	r, mr := redisRegistry(t, p)
	defer r.Shutdown(context.Background())

	var mu sync.Mutex
	var outcomes []Snapshot
	r.OnOutcome = func(_ *Session, snap Snapshot) {
		mu.Lock()
		outcomes = append(outcomes, snap)
		mu.Unlock()
	}

	sess, err := r.Start(context.Background(), 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, func() bool { return sess.State() == StateFailed }, "session to fail")
	waitFor(t, func() bool { return !mr.Exists("interview:active:7") }, "lock release on failure")

	p.setJoinErr(nil)
	again, err := r.Retry(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if again != sess {
		t.Fatalf("retry built a new session instead of reusing %s", sess.ID)
	}
	waitFor(t, func() bool { return sess.State() == StateConnected }, "session to reconnect")
	if !mr.Exists("interview:active:7") {
		t.Fatalf("lock not re-taken on retry")
	}

	if _, ok := r.End(context.Background(), sess.ID); !ok {
		t.Fatalf("end: session not found")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 2 || outcomes[0].State != StateFailed || outcomes[1].State != StateEnded {
		t.Fatalf("unexpected outcome sequence: %+v", outcomes)
	}
}

func TestRegistryRetryRejectsEndedSession(t *testing.T) {
	r := testRegistry(time.Hour)
	defer r.Shutdown(context.Background())

	sess, err := r.Start(context.Background(), 7)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	r.End(context.Background(), sess.ID)
	if _, err := r.Retry(context.Background(), sess.ID); err == nil {
		t.Fatalf("retried a torn-down session")
	}
}

func TestRegistryStartSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	var buf logBuffer
	logger := log.New(&buf, "[INTERVIEW] ", 0)
	r := NewRegistry(Credentials{}, testConfig(time.Hour), time.Hour, NewDemoProvider(), nil, rdb, logger)
	defer r.Shutdown(context.Background())

	if _, err := r.Start(context.Background(), 42); err != nil {
		t.Fatalf("start with redis down: %v", err)
	}
	if !strings.Contains(buf.String(), "interview lock for application 42") {
		t.Fatalf("redis failure not logged: %q", buf.String())
	}
	// the in-process guard still rejects duplicates
	if _, err := r.Start(context.Background(), 42); err == nil {
		t.Fatalf("duplicate start accepted with redis down")
	}
}

package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/onboardly/onboardly/internal/interview"
)

// Scheduler runs the interview reaper on the configured cron. The redis lock
// keeps multiple instances from reaping concurrently; each instance still
// cleans its own in-process sessions when the lock is taken elsewhere.
type Scheduler struct {
	Registry *interview.Registry
	Rdb      *redis.Client
	Cron     string
	Stop     chan struct{}
	Logger   *log.Logger

	lastRun *time.Time
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	if !isDue(s.Cron, s.lastRun) {
		return
	}
	now := time.Now()
	s.lastRun = &now

	ctx := context.Background()
	if s.Rdb != nil {
		ok, err := s.Rdb.SetNX(ctx, "sched:lock:reaper", "1", 2*time.Minute).Result()
		if err == nil && !ok {
			return
		}
		defer s.Rdb.Del(ctx, "sched:lock:reaper")
	}

	if n := s.Registry.ReapStale(ctx); n > 0 {
		s.Logger.Printf("reaped %d interview sessions", n)
	}
}

// isDue determines whether a cron spec should fire given the last run time.
// Supports "@hourly", "@daily" and standard 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}

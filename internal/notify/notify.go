// Package notify renders fired alarms as user-visible notifications
// through category channels, fanned out to the configured sinks.
package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"studymate/internal/alarms"
	logx "studymate/pkg/logx"
)

// Channel mirrors the mobile app's notification channels: one per alarm
// category, each with its own importance.
type Channel struct {
	ID         string `json:"id"`
	Importance string `json:"importance"`
}

var channels = map[alarms.Category]Channel{
	alarms.CategoryClass:    {ID: "classes", Importance: "high"},
	alarms.CategoryTask:     {ID: "tasks", Importance: "default"},
	alarms.CategoryPomodoro: {ID: "pomodoro", Importance: "high"},
}

// ChannelFor returns the rendering channel for a category.
func ChannelFor(c alarms.Category) Channel {
	if ch, ok := channels[c]; ok {
		return ch
	}
	return Channel{ID: "general", Importance: "default"}
}

// Notification is one rendered delivery.
type Notification struct {
	Key        int64     `json:"key"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Channel    string    `json:"channel"`
	Importance string    `json:"importance"`
	At         time.Time `json:"at"`
}

// Sink is one delivery surface (console log, Telegram, ...).
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

type Config struct {
	// RatePerSec bounds deliveries to external sinks. The log sink is
	// exempt so every fired alarm leaves a trace.
	RatePerSec int
	Telegram   TelegramConfig
}

type Service struct {
	log     logx.Logger
	sinks   []Sink
	limiter *rate.Limiter

	mu      sync.Mutex
	history []Notification
}

const historyCap = 300

func New(cfg Config, log logx.Logger) (*Service, error) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}

	s := &Service{
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}

	if cfg.Telegram.Enabled {
		tg, err := newTelegramSink(cfg.Telegram)
		if err != nil {
			return nil, err
		}
		s.sinks = append(s.sinks, tg)
		log.Info("telegram notification sink enabled", logx.Int64("chat_id", cfg.Telegram.ChatID))
	}

	return s, nil
}

// Deliver renders a fired registration. It satisfies alarms.DeliverFunc.
//
// Failures are absorbed here: a sink error is logged and the remaining
// sinks still run, so a broken external channel never breaks delivery.
func (s *Service) Deliver(ctx context.Context, r alarms.Registration) {
	ch := ChannelFor(r.Category)
	n := Notification{
		Key:        int64(r.Key),
		Title:      r.Title,
		Body:       r.Body,
		Channel:    ch.ID,
		Importance: ch.Importance,
		At:         time.Now(),
	}

	// The log sink is unconditional.
	s.log.Info("notification",
		logx.String("channel", n.Channel),
		logx.String("importance", n.Importance),
		logx.String("title", n.Title),
		logx.String("body", n.Body))

	if len(s.sinks) > 0 {
		if s.limiter.Allow() {
			for _, sink := range s.sinks {
				if err := sink.Send(ctx, n); err != nil {
					s.log.Warn("notification sink failed",
						logx.String("sink", sink.Name()), logx.Err(err))
				}
			}
		} else {
			s.log.Warn("notification rate limited, external sinks skipped",
				logx.String("title", n.Title))
		}
	}

	s.appendHistory(n)
}

// Recent returns the latest notifications, newest last.
func (s *Service) Recent(limit int) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]Notification, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

func (s *Service) appendHistory(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, n)
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
}

// addSink exists for tests.
func (s *Service) addSink(sink Sink) { s.sinks = append(s.sinks, sink) }

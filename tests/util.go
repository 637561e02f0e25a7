package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/studyhall/backend/core"
	"github.com/studyhall/backend/core/user"
)

// CreateUser stores an active user with the given role; pwd may be empty.
func CreateUser(t *testing.T, repo user.Repository, name, uname, email, pwd, role string, createdAt ...time.Time) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// Logger records what is logged, for assertions.
type Logger struct {
	mu      sync.Mutex
	Entries []string // "<level>: <msg>"
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	l.Entries = append(l.Entries, fmt.Sprintf("%s: %s", level, msg))
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("warn", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("fatal", msg) }

// Errors returns the error entries.
func (l *Logger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []string
	for _, e := range l.Entries {
		if len(e) > 7 && e[:7] == "error: " {
			errs = append(errs, e[7:])
		}
	}
	return errs
}

// Publisher records the published events.
type Publisher struct {
	mu     sync.Mutex
	Events []core.Event
}

var _ core.EventPublisher = (*Publisher)(nil)

func (p *Publisher) Publish(_ context.Context, events ...core.Event) error {
	p.mu.Lock()
	p.Events = append(p.Events, events...)
	p.mu.Unlock()
	return nil
}

func (p *Publisher) Close() error { return nil }

// Keys returns the keys of the published events, in order.
func (p *Publisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.Events))
	for _, e := range p.Events {
		keys = append(keys, e.Key)
	}
	return keys
}

// Package inmemdb implements the repositories in memory. It backs the tests and the API demo mode.
package inmemdb

import (
	"strings"
	"sync"
	"time"

	"github.com/studyhall/backend/core/audit"
	"github.com/studyhall/backend/core/booking"
	"github.com/studyhall/backend/core/notification"
	"github.com/studyhall/backend/core/payment"
	"github.com/studyhall/backend/core/studyhall"
	"github.com/studyhall/backend/core/subscription"
	"github.com/studyhall/backend/core/user"
)

// DB is a set of tables guarded by a single lock, so that every write is serialized.
type DB struct {
	mu            sync.RWMutex
	users         map[string]*user.User
	halls         map[string]*studyhall.StudyHall
	bookings      map[string]*booking.Booking
	transactions  map[string]*payment.Transaction
	subscriptions map[string]*subscription.Subscription
	auditLogs     []audit.Entry
	tokens        map[string]*notification.Token
}

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		halls:         make(map[string]*studyhall.StudyHall),
		bookings:      make(map[string]*booking.Booking),
		transactions:  make(map[string]*payment.Transaction),
		subscriptions: make(map[string]*subscription.Subscription),
		tokens:        make(map[string]*notification.Token),
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// containsFold reports whether substr is within s, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func inRange(t, from, to time.Time) bool {
	return (from.IsZero() || !t.Before(from)) && (to.IsZero() || !t.After(to))
}

// Truncate empties every table.
func (db *DB) Truncate() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]*user.User)
	db.halls = make(map[string]*studyhall.StudyHall)
	db.bookings = make(map[string]*booking.Booking)
	db.transactions = make(map[string]*payment.Transaction)
	db.subscriptions = make(map[string]*subscription.Subscription)
	db.auditLogs = nil
	db.tokens = make(map[string]*notification.Token)
}

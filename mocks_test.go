package auth_test

import (
	"context"
	"sync"

	auth "github.com/goliatone/go-noire"
	"github.com/stretchr/testify/mock"
)

// MockAccountLookup implements auth.AccountLookup
type MockAccountLookup struct {
	mock.Mock
}

func (m *MockAccountLookup) FindByID(ctx context.Context, id int64) (*auth.Identity, error) {
	args := m.Called(ctx, id)
	identity, _ := args.Get(0).(*auth.Identity)
	return identity, args.Error(1)
}

func (m *MockAccountLookup) FindByUsername(ctx context.Context, username string) (*auth.Account, error) {
	args := m.Called(ctx, username)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

func (m *MockAccountLookup) FindActiveByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*auth.Account)
	return account, args.Error(1)
}

// recordingSink keeps every event it receives
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, e auth.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Types() []auth.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *recordingSink) Last() auth.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return auth.ActivityEvent{}
	}
	return r.events[len(r.events)-1]
}

// outbox captures mail
type outbox struct {
	mu   sync.Mutex
	sent []auth.Mail
	err  error
}

func (o *outbox) Send(_ context.Context, m auth.Mail) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, m)
	return nil
}

func (o *outbox) Sent() []auth.Mail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]auth.Mail(nil), o.sent...)
}

func hashOf(password string) string {
	hash, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return hash
}

// countingHasher counts Compare calls on the wrapped hasher
type countingHasher struct {
	auth.PasswordHasher
	mu       sync.Mutex
	compares int
}

func (h *countingHasher) Compare(plaintext, hash string) (bool, error) {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()
	return h.PasswordHasher.Compare(plaintext, hash)
}

func (h *countingHasher) Compares() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.compares
}

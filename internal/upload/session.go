// Package upload coordinates multi-request chunked image uploads. A session
// is created when a client declares how many chunks it will send, collects
// chunk payloads in declaration order, and is destroyed the moment the final
// chunk arrives, before anything is persisted.
package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSession reports a chunk submitted without a live session, either
	// because none was started or because it expired.
	ErrNoSession = errors.New("no upload session")
	// ErrEmptyChunk reports a submission that carried no image data. The
	// session is left untouched so the client can resend the chunk.
	ErrEmptyChunk = errors.New("empty chunk")
)

// Session is the transient state of one chunked upload. Chunk indices are
// implicit: the n-th submission is the n-th chunk.
type Session struct {
	Token       string    `json:"token"`
	Owner       string    `json:"owner"`
	Info        *string   `json:"info,omitempty"`
	TotalChunks int       `json:"totalChunks"`
	Chunks      [][]byte  `json:"chunks"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Complete reports whether every declared chunk has been received.
func (s Session) Complete() bool {
	return len(s.Chunks) >= s.TotalChunks
}

// NextIndex is the 1-based index the next submission will be stored under.
func (s Session) NextIndex() int {
	return len(s.Chunks) + 1
}

// Bytes concatenates the collected chunks in arrival order.
func (s Session) Bytes() []byte {
	size := 0
	for _, chunk := range s.Chunks {
		size += len(chunk)
	}
	data := make([]byte, 0, size)
	for _, chunk := range s.Chunks {
		data = append(data, chunk...)
	}
	return data
}

// Store defines the persistence contract for upload sessions. Append is the
// only mutation that races with itself: implementations must serialise the
// read-modify-write per token, across every process sharing the store.
type Store interface {
	Save(ctx context.Context, session Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (Session, bool, error)
	// Append atomically records the next chunk for the session behind
	// token. When the chunk completes the declared count the session is
	// removed in the same atomic step, so at most one caller ever receives
	// the completed payload. The boolean reports whether a live session
	// existed.
	Append(ctx context.Context, token string, chunk []byte, ttl time.Duration) (Session, bool, error)
	Delete(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context, now time.Time) error
}

// Option configures a Manager instance.
type Option func(*Manager)

// WithStore injects a custom Store implementation.
func WithStore(store Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithTTL sets how long an idle session survives between chunks.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithTokenLength sets the byte length of generated session tokens.
func WithTokenLength(length int) Option {
	return func(m *Manager) {
		if length > 0 {
			m.tokenLength = length
		}
	}
}

// Manager coordinates session lifecycle against a backing store. Per-token
// serialisation of concurrent chunks lives in the store's Append, so two
// server processes sharing one store cannot interleave their writes.
type Manager struct {
	store        Store
	ttl          time.Duration
	tokenLength  int
	tokenFactory func(int) (string, error)
}

// NewManager constructs a Manager. Without options it keeps sessions in
// memory with a 30-minute idle TTL.
func NewManager(opts ...Option) *Manager {
	manager := &Manager{
		ttl:          30 * time.Minute,
		tokenLength:  16,
		tokenFactory: generateToken,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.store == nil {
		manager.store = NewMemoryStore()
	}
	return manager
}

// BeginParams declares a new upload.
type BeginParams struct {
	Owner       string
	Info        *string
	TotalChunks int
	FirstChunk  []byte
}

// Begin starts a session and records the first chunk, which always travels
// with the declaration. When only one chunk was declared the session is
// complete immediately and never touches the store.
func (m *Manager) Begin(ctx context.Context, params BeginParams) (Session, error) {
	if params.TotalChunks < 1 {
		return Session{}, fmt.Errorf("chunk count %d out of range", params.TotalChunks)
	}
	if len(params.FirstChunk) == 0 {
		return Session{}, ErrEmptyChunk
	}
	token, err := m.tokenFactory(m.tokenLength)
	if err != nil {
		return Session{}, err
	}
	session := Session{
		Token:       token,
		Owner:       params.Owner,
		Info:        params.Info,
		TotalChunks: params.TotalChunks,
		Chunks:      [][]byte{params.FirstChunk},
		UpdatedAt:   time.Now().UTC(),
	}
	if session.Complete() {
		return session, nil
	}
	if err := m.store.Save(ctx, session, m.ttl); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Append records the next chunk for the session identified by token. When the
// chunk completes the declared count the session is deleted from the store in
// the same call; the returned Session is then the only remaining copy of the
// collected payload, whatever the caller does with it next.
func (m *Manager) Append(ctx context.Context, token string, chunk []byte) (Session, error) {
	if token == "" {
		return Session{}, ErrNoSession
	}
	if len(chunk) == 0 {
		_, ok, err := m.store.Get(ctx, token)
		if err != nil {
			return Session{}, err
		}
		if !ok {
			return Session{}, ErrNoSession
		}
		return Session{}, ErrEmptyChunk
	}

	session, ok, err := m.store.Append(ctx, token, chunk, m.ttl)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrNoSession
	}
	return session, nil
}

// Abort discards a session, if any.
func (m *Manager) Abort(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, token)
}

// PurgeExpired removes idle sessions from the backing store.
func (m *Manager) PurgeExpired(ctx context.Context) error {
	return m.store.PurgeExpired(ctx, time.Now())
}

// Ping verifies the backing store is reachable when it exposes a ping method.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	if pinger, ok := m.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func generateToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrSessionEnded   = errors.New("session ended")
	ErrSessionExpired = errors.New("session expired")
)

type lifetime struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	timer  *time.Timer
}

// Lifetimes ties backend calls to the session that started them. Ending or
// expiring a session cancels every call bound to it.
type Lifetimes struct {
	mu       sync.Mutex
	sessions map[string]*lifetime
	onEnd    func(sessionID string)
}

func NewLifetimes() *Lifetimes {
	return &Lifetimes{sessions: make(map[string]*lifetime)}
}

// OnEnd registers fn to run once a session's lifetime is over, whether it
// was ended or expired.
func (l *Lifetimes) OnEnd(fn func(sessionID string)) {
	l.mu.Lock()
	l.onEnd = fn
	l.mu.Unlock()
}

// Begin starts the lifetime of sessionID, ending on its own at expiresAt. On
// refresh the running lifetime is kept and only its deadline moves, so calls
// bound before the refresh still end with the session.
func (l *Lifetimes) Begin(sessionID string, expiresAt time.Time) {
	l.mu.Lock()
	if life, ok := l.sessions[sessionID]; ok && life.ctx.Err() == nil && life.timer.Reset(time.Until(expiresAt)) {
		l.mu.Unlock()
		return
	}
	life := newLifetime(expiresAt)
	l.sessions[sessionID] = life
	l.mu.Unlock()

	l.forgetWhenDone(sessionID, life)
}

// Resume begins a lifetime for sessionID unless one is running. Sessions read
// back from a shared store after a restart have none yet.
func (l *Lifetimes) Resume(sessionID string, expiresAt time.Time) {
	l.mu.Lock()
	if _, ok := l.sessions[sessionID]; ok {
		l.mu.Unlock()
		return
	}
	life := newLifetime(expiresAt)
	l.sessions[sessionID] = life
	l.mu.Unlock()

	l.forgetWhenDone(sessionID, life)
}

func newLifetime(expiresAt time.Time) *lifetime {
	ctx, cancel := context.WithCancelCause(context.Background())
	timer := time.AfterFunc(time.Until(expiresAt), func() {
		cancel(ErrSessionExpired)
	})
	return &lifetime{ctx: ctx, timer: timer, cancel: func(cause error) {
		timer.Stop()
		cancel(cause)
	}}
}

func (l *Lifetimes) forgetWhenDone(sessionID string, life *lifetime) {
	context.AfterFunc(life.ctx, func() {
		life.timer.Stop()

		l.mu.Lock()
		current, ok := l.sessions[sessionID]
		if ok && current != life {
			// A newer lifetime owns the session now.
			l.mu.Unlock()
			return
		}
		delete(l.sessions, sessionID)
		onEnd := l.onEnd
		l.mu.Unlock()

		if onEnd != nil {
			onEnd(sessionID)
		}
	})
}

// Bind derives a context that is cancelled when either ctx or the session's
// lifetime ends. A session with no lifetime is treated as already ended.
func (l *Lifetimes) Bind(ctx context.Context, sessionID string) (context.Context, context.CancelFunc) {
	l.mu.Lock()
	life, ok := l.sessions[sessionID]
	l.mu.Unlock()

	bound, cancel := context.WithCancelCause(ctx)
	if !ok {
		cancel(ErrSessionEnded)
		return bound, func() {}
	}
	stop := context.AfterFunc(life.ctx, func() {
		cancel(context.Cause(life.ctx))
	})
	return bound, func() {
		stop()
		cancel(nil)
	}
}

// End cancels every call bound to sessionID.
func (l *Lifetimes) End(sessionID string) {
	l.mu.Lock()
	life, ok := l.sessions[sessionID]
	delete(l.sessions, sessionID)
	l.mu.Unlock()

	if ok {
		life.cancel(ErrSessionEnded)
	}
}

// settle drops a result that arrived after its session ended.
func settle[T any](ctx context.Context, value T, err error) (T, error) {
	if ctx.Err() != nil {
		var zero T
		return zero, context.Cause(ctx)
	}
	return value, err
}

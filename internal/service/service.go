package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentaldesk/console/internal/audit"
	"rentaldesk/console/internal/domain"
	"rentaldesk/console/internal/logging"
	"rentaldesk/console/internal/notify"
	"rentaldesk/console/internal/report"
	"rentaldesk/console/internal/store"
	"rentaldesk/console/internal/uniqueness"
)

const defaultUniquenessDelay = 500 * time.Millisecond

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Audit           audit.Recorder
	Notifier        notify.Notifier
	Archive         report.Archive
	Logger          *logging.Logger
	CompanyName     string
	UniquenessDelay time.Duration
	// OnAllocation is called with the action name after every allocation step.
	OnAllocation func(action string)
	// OnSessionEnd is called once a session has ended or expired.
	OnSessionEnd func(sessionID string)
	Now          func() time.Time
}

type Service struct {
	backend      store.Backend
	audit        audit.Recorder
	notifier     notify.Notifier
	archive      report.Archive
	checker      *uniqueness.Checker
	lifetimes    *Lifetimes
	logger       *logging.Logger
	company      string
	onAllocation func(string)
	now          func() time.Time
}

func New(backend store.Backend, opts Options) *Service {
	s := &Service{
		backend:      backend,
		audit:        opts.Audit,
		notifier:     opts.Notifier,
		archive:      opts.Archive,
		lifetimes:    NewLifetimes(),
		logger:       opts.Logger,
		company:      strings.TrimSpace(opts.CompanyName),
		onAllocation: opts.OnAllocation,
		now:          opts.Now,
	}
	if s.audit == nil {
		s.audit = audit.NewMemoryRecorder()
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.archive == nil {
		s.archive = report.NoopArchive{}
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	s.logger = s.logger.WithComponent("service")
	if opts.OnSessionEnd != nil {
		s.lifetimes.OnEnd(opts.OnSessionEnd)
	}
	if s.company == "" {
		s.company = "Rental Desk"
	}
	if s.now == nil {
		s.now = time.Now
	}
	delay := opts.UniquenessDelay
	if delay <= 0 {
		delay = defaultUniquenessDelay
	}
	s.checker = uniqueness.NewChecker(delay)
	return s
}

// StartSession opens the lifetime that backend calls for sessionID run under.
func (s *Service) StartSession(session domain.Session) {
	s.lifetimes.Begin(session.ID, session.ExpiresAt)
}

// EndSession cancels whatever the session still has in flight.
func (s *Service) EndSession(sessionID string) {
	s.lifetimes.End(sessionID)
}

// BindSession prepares ctx for work on behalf of an authenticated session: the
// backend token, the actor, the notice recipient, and cancellation when the
// session ends.
func (s *Service) BindSession(ctx context.Context, session domain.Session) (context.Context, context.CancelFunc) {
	s.lifetimes.Resume(session.ID, session.ExpiresAt)
	ctx = store.WithToken(ctx, session.UpstreamToken)
	ctx = WithActor(ctx, domain.Actor{
		UserID:    session.User.ID,
		Email:     session.User.Email,
		Name:      session.User.FullName(),
		SessionID: session.ID,
	})
	ctx = notify.WithRecipient(ctx, session.ID)
	return s.lifetimes.Bind(ctx, session.ID)
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (string, *domain.User, error) {
	if err := domain.Validate(req); err != nil {
		return "", nil, err
	}
	return s.backend.Login(ctx, strings.TrimSpace(req.Email), req.Password)
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	return s.audit.List(ctx, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Email == "" {
		actor = domain.Actor{Email: "system"}
	}

	// The audit row outlives the request that produced it.
	if err := s.audit.Record(context.WithoutCancel(ctx), domain.AuditLog{
		Actor:      actor.Email,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		s.logger.Warnw("failed to write audit log", "action", action, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

// failed tells the user a submission did not go through and passes err on.
func (s *Service) failed(ctx context.Context, what string, err error) error {
	if err == nil || ctx.Err() != nil {
		return err
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	s.notifier.Notify(ctx, notify.LevelError, fmt.Sprintf("Error saving %s: %s", what, describe(err)))
	s.logger.Warnw("backend rejected submission", "entity", what, "error", err)
	return err
}

// describe renders an upstream failure as "status - body".
func describe(err error) string {
	var upstreamErr *store.UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Error()
	}
	return err.Error()
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}

// validationFrom reuses a tag ValidationError so custom checks can add to it.
func validationFrom(err error) (*domain.ValidationError, error) {
	if err == nil {
		return domain.NewValidationError(), nil
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr, nil
	}
	return nil, err
}

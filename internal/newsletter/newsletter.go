// ABOUTME: Newsletter subscriptions with best-effort email provider sync
// ABOUTME: Persists subscribers first, then adds the contact and sends a welcome email

package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/identity-gateway/internal/assets"
	"github.com/2389/identity-gateway/internal/identity"
	"github.com/2389/identity-gateway/internal/store"
)

// Errors returned by Service.
var (
	ErrAlreadySubscribed = errors.New("this email is already subscribed to our newsletter")
	ErrInvalidEmail      = errors.New("please provide a valid email address")
)

// WelcomeSubject is the subject line of the confirmation email.
const WelcomeSubject = "Welcome to Web3 Platform - Newsletter Subscription Confirmed! 🚀"

// DefaultFrontendURL is linked from the welcome email when none is configured.
const DefaultFrontendURL = "https://web3-platform-three.vercel.app"

// Mailer is an email provider the service syncs subscribers to.
type Mailer interface {
	AddContact(ctx context.Context, email string) error
	SendEmail(ctx context.Context, to string, email *assets.Email) error
}

// FailureRecorder is notified of provider failures. *metrics.Recorder satisfies it.
type FailureRecorder interface {
	RecordMailFailure(operation string)
}

// Service manages newsletter subscriptions.
type Service struct {
	subscribers store.SubscriberStore
	mailer      Mailer // nil when no provider is configured
	frontendURL string
	failures    FailureRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMailer syncs new subscribers to m.
func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

// WithFrontendURL sets the URL linked from the welcome email.
func WithFrontendURL(u string) Option {
	return func(s *Service) {
		if u != "" {
			s.frontendURL = u
		}
	}
}

// WithFailureRecorder reports provider failures to r.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(s *Service) { s.failures = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service.
func NewService(subscribers store.SubscriberStore, opts ...Option) *Service {
	s := &Service{
		subscribers: subscribers,
		frontendURL: DefaultFrontendURL,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "newsletter")
	return s
}

// Subscribe records email as a subscriber. The provider sync runs after the
// subscriber is saved and its failures are logged, never returned.
func (s *Service) Subscribe(ctx context.Context, email string) (*store.Subscriber, error) {
	email = identity.NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidEmail
	}

	_, err := s.subscribers.GetSubscriberByEmail(ctx, email)
	if err == nil {
		return nil, ErrAlreadySubscribed
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up subscriber: %w", err)
	}

	sub := &store.Subscriber{
		Email:        email,
		Status:       store.SubscriberStatusActive,
		SubscribedAt: s.now().UTC(),
	}
	if err := s.subscribers.CreateSubscriber(ctx, sub); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("saving subscription: %w", err)
	}

	s.logger.Info("new subscriber", "subscriber_id", sub.ID)
	s.syncProvider(ctx, email)
	return sub, nil
}

// syncProvider adds the contact, then sends the welcome email. A failed
// contact add skips the email.
func (s *Service) syncProvider(ctx context.Context, email string) {
	if s.mailer == nil {
		return
	}

	if err := s.mailer.AddContact(ctx, email); err != nil {
		s.recordFailure("add_contact", err)
		return
	}

	msg, err := assets.Welcome(WelcomeSubject, s.frontendURL)
	if err != nil {
		s.recordFailure("render", err)
		return
	}
	if err := s.mailer.SendEmail(ctx, email, msg); err != nil {
		s.recordFailure("send_email", err)
	}
}

func (s *Service) recordFailure(op string, err error) {
	s.logger.Error("email provider error", "op", op, "error", err)
	if s.failures != nil {
		s.failures.RecordMailFailure(op)
	}
}

// List returns every subscriber, oldest first.
func (s *Service) List(ctx context.Context) ([]*store.Subscriber, error) {
	subs, err := s.subscribers.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	return subs, nil
}

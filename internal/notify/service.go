package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brightkind/clinic-platform/internal/users"
	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Directory resolves staff members so notifications can be addressed.
type Directory interface {
	GetByID(ctx context.Context, id string) (*users.User, error)
}

// Service records in-app notifications for clinic staff and, when an email
// sender is configured, mirrors the important ones to email. All methods are
// best effort: callers never fail their primary operation because of a
// delivery problem.
type Service struct {
	email  EmailSender
	users  Directory
	store  Store
	logger *logging.Logger
}

// NewService creates a notification service. email and store may each be nil
// to disable that delivery path.
func NewService(email EmailSender, users Directory, store Store, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:  email,
		users:  users,
		store:  store,
		logger: logger,
	}
}

// EmailEnabled reports whether the service can deliver email.
func (s *Service) EmailEnabled() bool {
	return s != nil && s.email != nil && s.users != nil
}

// NotifyTaskAssigned records an inbox item for the assignee and emails them.
func (s *Service) NotifyTaskAssigned(ctx context.Context, assigneeID, assignerName, title string, dueAt *time.Time) error {
	if s == nil {
		return nil
	}
	if assignerName == "" {
		assignerName = "A colleague"
	}
	s.record(ctx, &Notification{
		UserID: assigneeID,
		Kind:   KindTaskAssigned,
		Title:  fmt.Sprintf("New task: %s", title),
		Body:   fmt.Sprintf("%s assigned you a task.", assignerName),
	})

	if !s.EmailEnabled() {
		return nil
	}
	user, err := s.users.GetByID(ctx, assigneeID)
	if err != nil {
		s.logger.Error("notify: failed to resolve assignee", "error", err, "userId", assigneeID)
		return fmt.Errorf("notify: resolve assignee: %w", err)
	}
	if user.Email == "" {
		s.logger.Debug("notify: assignee has no email, skipping", "userId", assigneeID)
		return nil
	}

	dueInfo := ""
	if dueAt != nil {
		dueInfo = fmt.Sprintf("\nDue: %s", dueAt.Format("Monday, January 2 at 3:04 PM"))
	}
	msg := EmailMessage{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf("New task: %s", title),
		Body: fmt.Sprintf("Hi %s,\n\n%s assigned you a task:\n\n%s%s\n\nOpen the clinic portal to see the details.",
			user.Name, assignerName, title, dueInfo),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: task assignment email: %w", err)
	}
	return nil
}

// NotifyAppointmentCancelled records an inbox item for the clinician and
// emails them about the freed slot.
func (s *Service) NotifyAppointmentCancelled(ctx context.Context, clinicianID, clientName string, startAt time.Time) error {
	if s == nil {
		return nil
	}
	if clientName == "" {
		clientName = "A client"
	}
	s.record(ctx, &Notification{
		UserID: clinicianID,
		Kind:   KindAppointmentCancelled,
		Title:  fmt.Sprintf("Appointment cancelled: %s", startAt.Format("Jan 2, 3:04 PM")),
		Body:   fmt.Sprintf("The appointment with %s was cancelled.", clientName),
	})

	if !s.EmailEnabled() {
		return nil
	}
	user, err := s.users.GetByID(ctx, clinicianID)
	if err != nil {
		s.logger.Error("notify: failed to resolve clinician", "error", err, "userId", clinicianID)
		return fmt.Errorf("notify: resolve clinician: %w", err)
	}
	if user.Email == "" {
		s.logger.Debug("notify: clinician has no email, skipping", "userId", clinicianID)
		return nil
	}

	msg := EmailMessage{
		To:      user.Email,
		ToName:  user.Name,
		Subject: fmt.Sprintf("Appointment cancelled: %s", startAt.Format("Jan 2, 3:04 PM")),
		Body: fmt.Sprintf("Hi %s,\n\nThe appointment with %s on %s was cancelled.\n\nThe time slot is open again on your schedule.",
			user.Name, clientName, startAt.Format("Monday, January 2 at 3:04 PM")),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: cancellation email: %w", err)
	}
	return nil
}

// NotifyNewMessage records an inbox item for each thread participant other
// than the sender. Messages stay in-app; no email.
func (s *Service) NotifyNewMessage(ctx context.Context, recipientIDs []string, senderName, subject, threadID string) {
	if s == nil {
		return
	}
	if senderName == "" {
		senderName = "A colleague"
	}
	for _, id := range recipientIDs {
		s.record(ctx, &Notification{
			UserID: id,
			Kind:   KindNewMessage,
			Title:  fmt.Sprintf("New message from %s", senderName),
			Body:   subject,
			RefID:  threadID,
		})
	}
}

// record persists one inbox item. Best effort.
func (s *Service) record(ctx context.Context, n *Notification) {
	if s.store == nil || n.UserID == "" {
		return
	}
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	if err := s.store.Create(ctx, n); err != nil {
		s.logger.Warn("notify: failed to store notification", "userId", n.UserID, "kind", n.Kind, "error", err)
	}
}

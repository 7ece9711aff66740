// Package tracking processes the unauthenticated, token-keyed events coming
// back from simulation emails: opens, clicks, phish reports, and remediation
// acknowledgments. Every transition is a forward-only set-if-unset update, so
// replays from mail scanners and link pre-fetchers are harmless.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/calderasec/lurelab/internal/database/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound covers unknown and malformed tokens alike; the caller
	// cannot tell which, so tokens cannot be probed for format validity.
	ErrNotFound = errors.New("tracking token not found")

	ErrNotAcknowledged = errors.New("remediation must be explicitly acknowledged")
	ErrNotAssigned     = errors.New("no remediation assigned for this target")
	ErrNotSent         = errors.New("email has not been sent to this target")
)

// Event is the state returned to the unauthenticated caller: just enough to
// render the confirmation page, nothing more.
type Event struct {
	Token                  string
	EmployeeFirstName      string
	CampaignName           string
	RemediationAssignedAt  *time.Time
	RemediationCompletedAt *time.Time
}

type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// RecordClick marks the first click on a target's tracking link and assigns
// remediation training. Both writes are conditional on the field being
// unset, so concurrent or repeated clicks converge to the first timestamp
// and the call still succeeds.
func (s *Service) RecordClick(ctx context.Context, token string) (*Event, error) {
	target, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.setIfUnset(ctx, target.ID, "link_clicked_at", now); err != nil {
		return nil, err
	}
	// Remediation is assigned unconditionally on first click.
	if err := s.setIfUnset(ctx, target.ID, "remediation_assigned_at", now); err != nil {
		return nil, err
	}

	return s.finish(ctx, target.ID)
}

// RecordOpen marks the tracking pixel fetch. Idempotent like RecordClick.
func (s *Service) RecordOpen(ctx context.Context, token string) (*Event, error) {
	target, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := s.setIfUnset(ctx, target.ID, "email_opened_at", time.Now()); err != nil {
		return nil, err
	}

	return s.finish(ctx, target.ID)
}

// CompleteRemediation records the employee's acknowledgment of the training
// material. Requires an explicit acknowledgment and a prior assignment;
// repeat submissions keep the first completion timestamp.
func (s *Service) CompleteRemediation(ctx context.Context, token string, acknowledged bool) (*Event, error) {
	if !acknowledged {
		return nil, ErrNotAcknowledged
	}

	target, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if target.RemediationAssignedAt == nil {
		return nil, ErrNotAssigned
	}

	if err := s.setIfUnset(ctx, target.ID, "remediation_completed_at", time.Now()); err != nil {
		return nil, err
	}

	return s.finish(ctx, target.ID)
}

// ReportPhish records that the employee reported the simulation as
// suspicious. Allowed any time after the email went out, independent of the
// open/click progression.
func (s *Service) ReportPhish(ctx context.Context, token string) (*Event, error) {
	target, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if target.SentAt == nil {
		return nil, ErrNotSent
	}

	if err := s.setIfUnset(ctx, target.ID, "reported_at", time.Now()); err != nil {
		return nil, err
	}

	return s.finish(ctx, target.ID)
}

func (s *Service) lookup(ctx context.Context, token string) (*models.Target, error) {
	var target models.Target
	err := s.db.WithContext(ctx).
		Preload("Employee").
		Preload("Campaign").
		Where("token = ?", token).
		First(&target).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up target: %w", err)
	}
	return &target, nil
}

// setIfUnset performs the atomic conditional update
// "SET column = now WHERE column IS NULL". Zero rows affected means another
// request won the race or the field was already set; both are fine.
func (s *Service) setIfUnset(ctx context.Context, targetID interface{}, column string, now time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.Target{}).
		Where("id = ? AND "+column+" IS NULL", targetID).
		Update(column, now).Error
	if err != nil {
		return fmt.Errorf("setting %s: %w", column, err)
	}
	return nil
}

// finish recomputes the cached status from the authoritative timestamps and
// builds the public event view.
func (s *Service) finish(ctx context.Context, targetID interface{}) (*Event, error) {
	var target models.Target
	err := s.db.WithContext(ctx).
		Preload("Employee").
		Preload("Campaign").
		First(&target, "id = ?", targetID).Error
	if err != nil {
		return nil, fmt.Errorf("reloading target: %w", err)
	}

	if computed := target.ComputedStatus(); computed != target.Status {
		if err := s.db.WithContext(ctx).Model(&target).
			Update("status", computed).Error; err != nil {
			return nil, fmt.Errorf("updating status: %w", err)
		}
		target.Status = computed
	}

	event := &Event{
		Token:                  target.Token,
		RemediationAssignedAt:  target.RemediationAssignedAt,
		RemediationCompletedAt: target.RemediationCompletedAt,
	}
	if target.Employee != nil {
		event.EmployeeFirstName = target.Employee.FirstName
	}
	if target.Campaign != nil {
		event.CampaignName = target.Campaign.Name
	}
	return event, nil
}

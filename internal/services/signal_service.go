package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/isdelr/signaldesk-be/internal/apperr"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/isdelr/signaldesk-be/internal/policy"
	"github.com/isdelr/signaldesk-be/internal/store"
	"github.com/rs/zerolog/log"
)

const (
	maxInstrumentLen = 50
	maxChartRefLen   = 255
)

// Notification actions pushed to the live feed.
const (
	ActionSignalCreated  = "signal.created"
	ActionSignalApproved = "signal.approved"
	ActionSignalRejected = "signal.rejected"
	ActionSignalUpdated  = "signal.updated"
	ActionSignalDeleted  = "signal.deleted"

	// ActionSignalWithdrawn tells the public feed that a previously approved
	// signal is no longer approved.
	ActionSignalWithdrawn = "signal.withdrawn"
)

// SignalServiceProvider defines the interface for the signal lifecycle.
type SignalServiceProvider interface {
	ListVisible(ctx context.Context, identity models.Identity, status string) ([]models.Signal, error)
	ListApproved(ctx context.Context, identity models.Identity) ([]models.Signal, error)
	ListOwn(ctx context.Context, identity models.Identity) ([]models.Signal, error)
	GetSignal(ctx context.Context, identity models.Identity, id string) (models.Signal, error)
	CreateSignal(ctx context.Context, identity models.Identity, fields models.SignalFields) (models.Signal, error)
	TransitionStatus(ctx context.Context, identity models.Identity, id, status string) (models.Signal, error)
	UpdateSignal(ctx context.Context, identity models.Identity, id string, fields models.SignalFields) (models.Signal, error)
	DeleteSignal(ctx context.Context, identity models.Identity, id string) error
	CountPending(ctx context.Context, identity models.Identity) (int, error)
	ChartUploadURL(ctx context.Context, identity models.Identity, contentType string) (ChartUpload, error)
	ChartURL(ctx context.Context, identity models.Identity, id string) (string, error)
}

// SignalNotifier receives lifecycle notifications after successful writes.
type SignalNotifier interface {
	SignalChanged(action string, signal models.Signal)
	PendingCount(count int)
}

// ChartStorage presigns chart attachment transfers.
type ChartStorage interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, time.Time, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

// ChartUpload is a presigned upload slot for a chart image.
type ChartUpload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var chartExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// SignalService implements the signal lifecycle. Every operation consults
// the authorization policy before touching the store.
type SignalService struct {
	signals  store.SignalStore
	events   EventServiceProvider
	notifier SignalNotifier
	charts   ChartStorage
	now      func() time.Time
}

// NewSignalService creates a new SignalService. notifier and charts may be
// nil.
func NewSignalService(signals store.SignalStore, events EventServiceProvider, notifier SignalNotifier, charts ChartStorage) *SignalService {
	return &SignalService{
		signals:  signals,
		events:   events,
		notifier: notifier,
		charts:   charts,
		now:      time.Now,
	}
}

// ListVisible returns the signals the caller's role may browse: approved
// ones for users, their own for callmakers, everything for admins
// (optionally filtered by status).
func (s *SignalService) ListVisible(ctx context.Context, identity models.Identity, status string) ([]models.Signal, error) {
	var requested models.SignalStatus
	if status != "" {
		requested = models.SignalStatus(strings.ToLower(strings.TrimSpace(status)))
		if !requested.Valid() {
			return nil, fmt.Errorf("%w: invalid status filter %q", apperr.ErrInvalidInput, status)
		}
	}
	if !identity.Role.Valid() {
		return nil, forbidden("list signals")
	}
	return s.signals.List(ctx, policy.VisibleFilter(identity, requested))
}

// ListApproved returns all approved signals.
func (s *SignalService) ListApproved(ctx context.Context, identity models.Identity) ([]models.Signal, error) {
	if !policy.Authorize(identity, policy.ListApproved, policy.Resource{}) {
		return nil, forbidden("list approved signals")
	}
	return s.signals.List(ctx, models.SignalFilter{Status: models.StatusApproved})
}

// ListOwn returns the caller's own signals regardless of status.
func (s *SignalService) ListOwn(ctx context.Context, identity models.Identity) ([]models.Signal, error) {
	if !policy.Authorize(identity, policy.ListOwn, policy.Resource{}) {
		return nil, forbidden("list own signals")
	}
	return s.signals.List(ctx, models.SignalFilter{OwnerID: identity.ID})
}

// GetSignal returns a single signal the caller may view.
func (s *SignalService) GetSignal(ctx context.Context, identity models.Identity, id string) (models.Signal, error) {
	signal, err := s.signals.Get(ctx, id)
	if err != nil {
		return models.Signal{}, err
	}
	if !policy.Authorize(identity, policy.ViewSignal, resourceOf(signal)) {
		return models.Signal{}, forbidden("view signal")
	}
	return signal, nil
}

// CreateSignal stores a new signal owned by the caller. Admin submissions
// are published immediately; callmaker submissions wait for review.
func (s *SignalService) CreateSignal(ctx context.Context, identity models.Identity, fields models.SignalFields) (models.Signal, error) {
	if !policy.Authorize(identity, policy.CreateSignal, policy.Resource{}) {
		return models.Signal{}, forbidden("create signal")
	}
	if err := validateCreate(fields); err != nil {
		return models.Signal{}, err
	}

	signal := models.Signal{
		Instrument:  strings.TrimSpace(*fields.Instrument),
		EntryPrice:  *fields.EntryPrice,
		TargetPrice: *fields.TargetPrice,
		StopLoss:    *fields.StopLoss,
		Status:      policy.InitialStatus(identity.Role),
		OwnerID:     identity.ID,
		CreatedAt:   s.now(),
	}
	if fields.Note != nil {
		signal.Note = strings.TrimSpace(*fields.Note)
	}
	if fields.ChartImage != nil {
		signal.ChartImage = strings.TrimSpace(*fields.ChartImage)
	}

	created, err := s.signals.Create(ctx, signal)
	if err != nil {
		return models.Signal{}, err
	}

	s.record(ctx, "signal.create", "info", identity, created.ID,
		fmt.Sprintf("Signal %s for %s submitted by %s with status %s.", created.ID, created.Instrument, identity.Username, created.Status))
	s.notify(ActionSignalCreated, created)
	if created.Status == models.StatusApproved {
		s.notify(ActionSignalApproved, created)
	} else {
		s.publishPendingCount(ctx)
	}
	return created, nil
}

// TransitionStatus approves or rejects a signal. Only admins may do this.
// Decided signals may be transitioned again; the audit trail flags it.
func (s *SignalService) TransitionStatus(ctx context.Context, identity models.Identity, id, status string) (models.Signal, error) {
	if !policy.Authorize(identity, policy.TransitionStatus, policy.Resource{}) {
		return models.Signal{}, forbidden("change signal status")
	}
	target := models.SignalStatus(strings.ToLower(strings.TrimSpace(status)))
	if target != models.StatusApproved && target != models.StatusRejected {
		return models.Signal{}, fmt.Errorf("%w: status must be approved or rejected", apperr.ErrInvalidInput)
	}

	signal, err := s.signals.Get(ctx, id)
	if err != nil {
		return models.Signal{}, err
	}
	previous := signal.Status

	now := s.now()
	if err := s.signals.UpdateStatus(ctx, id, target, now); err != nil {
		return models.Signal{}, err
	}
	signal.Status = target
	signal.UpdatedAt = now.UTC().Truncate(time.Microsecond)

	level := "info"
	if previous.Terminal() {
		level = "warn"
		log.Warn().Str("signal_id", id).Str("from", string(previous)).Str("to", string(target)).
			Str("admin", identity.Username).Msg("Re-transitioning a decided signal")
	}
	eventType := "signal.approve"
	action := ActionSignalApproved
	if target == models.StatusRejected {
		eventType = "signal.reject"
		action = ActionSignalRejected
	}
	s.record(ctx, eventType, level, identity, id,
		fmt.Sprintf("Signal %s moved from %s to %s by %s.", id, previous, target, identity.Username))
	s.notify(action, signal)
	if previous == models.StatusApproved && target != models.StatusApproved {
		s.notify(ActionSignalWithdrawn, signal)
	}
	s.publishPendingCount(ctx)
	return signal, nil
}

// UpdateSignal applies field updates to a signal the caller may edit.
// Status and owner are never changed here.
func (s *SignalService) UpdateSignal(ctx context.Context, identity models.Identity, id string, fields models.SignalFields) (models.Signal, error) {
	signal, err := s.signals.Get(ctx, id)
	if err != nil {
		return models.Signal{}, err
	}
	if !policy.Authorize(identity, policy.EditSignal, resourceOf(signal)) {
		return models.Signal{}, forbidden("edit signal")
	}
	if err := validateUpdate(fields); err != nil {
		return models.Signal{}, err
	}
	if !fields.Any() {
		return signal, nil
	}

	if fields.Instrument != nil {
		signal.Instrument = strings.TrimSpace(*fields.Instrument)
	}
	if fields.EntryPrice != nil {
		signal.EntryPrice = *fields.EntryPrice
	}
	if fields.TargetPrice != nil {
		signal.TargetPrice = *fields.TargetPrice
	}
	if fields.StopLoss != nil {
		signal.StopLoss = *fields.StopLoss
	}
	if fields.Note != nil {
		signal.Note = strings.TrimSpace(*fields.Note)
	}
	if fields.ChartImage != nil {
		signal.ChartImage = strings.TrimSpace(*fields.ChartImage)
	}
	signal.UpdatedAt = s.now()

	if err := s.signals.Update(ctx, signal); err != nil {
		return models.Signal{}, err
	}
	updated, err := s.signals.Get(ctx, id)
	if err != nil {
		return models.Signal{}, err
	}

	s.record(ctx, "signal.update", "info", identity, id,
		fmt.Sprintf("Signal %s updated by %s.", id, identity.Username))
	s.notify(ActionSignalUpdated, updated)
	return updated, nil
}

// DeleteSignal removes a signal the caller owns, or any signal for admins.
func (s *SignalService) DeleteSignal(ctx context.Context, identity models.Identity, id string) error {
	signal, err := s.signals.Get(ctx, id)
	if err != nil {
		return err
	}
	if !policy.Authorize(identity, policy.DeleteSignal, resourceOf(signal)) {
		return forbidden("delete signal")
	}
	if err := s.signals.Delete(ctx, id); err != nil {
		return err
	}

	s.record(ctx, "signal.delete", "warn", identity, id,
		fmt.Sprintf("Signal %s for %s deleted by %s.", id, signal.Instrument, identity.Username))
	s.notify(ActionSignalDeleted, signal)
	if signal.Status == models.StatusPending {
		s.publishPendingCount(ctx)
	}
	return nil
}

// CountPending returns the size of the review backlog. Admin only.
func (s *SignalService) CountPending(ctx context.Context, identity models.Identity) (int, error) {
	if !policy.Authorize(identity, policy.CountPending, policy.Resource{}) {
		return 0, forbidden("count pending signals")
	}
	return s.signals.CountByStatus(ctx, models.StatusPending)
}

// ChartUploadURL reserves a storage key for a chart image and presigns an
// upload to it.
func (s *SignalService) ChartUploadURL(ctx context.Context, identity models.Identity, contentType string) (ChartUpload, error) {
	if !policy.Authorize(identity, policy.UploadChart, policy.Resource{}) {
		return ChartUpload{}, forbidden("upload chart")
	}
	if s.charts == nil {
		return ChartUpload{}, fmt.Errorf("%w: chart storage is not configured", apperr.ErrUnavailable)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := chartExtensions[contentType]
	if !ok {
		return ChartUpload{}, fmt.Errorf("%w: unsupported chart content type %q", apperr.ErrInvalidInput, contentType)
	}

	key := chartKey(identity.ID, s.now(), ext)
	url, expiresAt, err := s.charts.PresignUpload(ctx, key, contentType)
	if err != nil {
		return ChartUpload{}, fmt.Errorf("%w: presign chart upload: %w", apperr.ErrStore, err)
	}
	return ChartUpload{Key: key, UploadURL: url, ExpiresAt: expiresAt}, nil
}

// ChartURL returns a URL the caller can fetch the signal's chart from.
func (s *SignalService) ChartURL(ctx context.Context, identity models.Identity, id string) (string, error) {
	signal, err := s.GetSignal(ctx, identity, id)
	if err != nil {
		return "", err
	}
	if signal.ChartImage == "" {
		return "", fmt.Errorf("%w: signal has no chart", apperr.ErrNotFound)
	}
	if isAbsoluteURL(signal.ChartImage) {
		return signal.ChartImage, nil
	}
	if s.charts == nil {
		return "", fmt.Errorf("%w: chart storage is not configured", apperr.ErrUnavailable)
	}
	url, err := s.charts.PresignDownload(ctx, signal.ChartImage)
	if err != nil {
		return "", fmt.Errorf("%w: presign chart download: %w", apperr.ErrStore, err)
	}
	return url, nil
}

func (s *SignalService) record(ctx context.Context, eventType, level string, identity models.Identity, signalID, message string) {
	if s.events == nil {
		return
	}
	actor := identity.ID
	if err := s.events.CreateEvent(ctx, eventType, level, message, &actor, &signalID); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Str("signal_id", signalID).Msg("Failed to record audit event")
	}
}

func (s *SignalService) notify(action string, signal models.Signal) {
	if s.notifier != nil {
		s.notifier.SignalChanged(action, signal)
	}
}

func (s *SignalService) publishPendingCount(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	count, err := s.signals.CountByStatus(ctx, models.StatusPending)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to count pending signals for notification")
		return
	}
	s.notifier.PendingCount(count)
}

func resourceOf(signal models.Signal) policy.Resource {
	return policy.Resource{OwnerID: signal.OwnerID, Status: signal.Status}
}

func forbidden(action string) error {
	return fmt.Errorf("%w: not allowed to %s", apperr.ErrForbidden, action)
}

func chartKey(ownerID string, at time.Time, ext string) string {
	at = at.UTC()
	return fmt.Sprintf("charts/%s/%d/%02d/%s%s", ownerID, at.Year(), at.Month(), uuid.New(), ext)
}

func isAbsoluteURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

func validateCreate(f models.SignalFields) error {
	var missing []string
	if f.Instrument == nil || strings.TrimSpace(*f.Instrument) == "" {
		missing = append(missing, "coin_name")
	}
	if f.EntryPrice == nil {
		missing = append(missing, "entry_price")
	}
	if f.TargetPrice == nil {
		missing = append(missing, "target_price")
	}
	if f.StopLoss == nil {
		missing = append(missing, "stop_loss")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", apperr.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return validateUpdate(f)
}

func validateUpdate(f models.SignalFields) error {
	var problems []error
	if f.Instrument != nil {
		name := strings.TrimSpace(*f.Instrument)
		if name == "" {
			problems = append(problems, errors.New("coin_name must not be empty"))
		} else if utf8.RuneCountInString(name) > maxInstrumentLen {
			problems = append(problems, fmt.Errorf("coin_name must be at most %d characters", maxInstrumentLen))
		}
	}
	for _, p := range []struct {
		name  string
		value *float64
	}{
		{"entry_price", f.EntryPrice},
		{"target_price", f.TargetPrice},
		{"stop_loss", f.StopLoss},
	} {
		if p.value == nil {
			continue
		}
		if math.IsNaN(*p.value) || math.IsInf(*p.value, 0) || *p.value <= 0 {
			problems = append(problems, fmt.Errorf("%s must be a positive number", p.name))
		}
	}
	if f.ChartImage != nil {
		ref := strings.TrimSpace(*f.ChartImage)
		switch {
		case len(ref) > maxChartRefLen:
			problems = append(problems, fmt.Errorf("chart_image must be at most %d characters", maxChartRefLen))
		case ref != "" && !isAbsoluteURL(ref) && !strings.HasPrefix(ref, "charts/"):
			problems = append(problems, errors.New("chart_image must be an uploaded chart key or an http(s) URL"))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, errors.Join(problems...))
	}
	return nil
}

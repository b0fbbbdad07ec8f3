package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
)

// DispatcherConfig controls delivery attempts.
type DispatcherConfig struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	DeliveryTimeout time.Duration
	// RatePerSecond limits deliveries per channel; zero disables the limit.
	RatePerSecond float64
	RateBurst     int
	BatchSize     int
}

// DefaultDispatcherConfig returns the stock retry policy.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		MaxAttempts:     3,
		BackoffBase:     time.Second,
		BackoffMax:      time.Minute,
		DeliveryTimeout: 10 * time.Second,
		BatchSize:       100,
	}
}

// Dispatcher plans notification records and drives their delivery.
type Dispatcher struct {
	store     storage.Storage
	notifiers map[model.Channel]alerts.Notifier
	limiters  map[model.Channel]*rate.Limiter
	operator  alerts.OperatorNotifier
	cfg       DispatcherConfig
	logger    *slog.Logger
	recorder  Recorder
	now       func() time.Time
}

// NewDispatcher creates a dispatcher with one notifier per channel.
func NewDispatcher(store storage.Storage, notifiers []alerts.Notifier, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = max(def.BackoffMax, cfg.BackoffBase)
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = def.DeliveryTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}

	d := &Dispatcher{
		store:     store,
		notifiers: make(map[model.Channel]alerts.Notifier, len(notifiers)),
		limiters:  make(map[model.Channel]*rate.Limiter),
		cfg:       cfg,
		logger:    logger,
		recorder:  NopRecorder{},
		now:       time.Now,
	}
	for _, n := range notifiers {
		d.notifiers[n.Channel()] = n
		if cfg.RatePerSecond > 0 {
			d.limiters[n.Channel()] = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.RateBurst, 1))
		}
	}
	return d
}

// WithOperator sets who is told about notifications that reach FAILED.
func (d *Dispatcher) WithOperator(op alerts.OperatorNotifier) *Dispatcher {
	d.operator = op
	return d
}

// WithRecorder sets the metrics recorder.
func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

// WithClock replaces the time source.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Backoff returns the wait after the given failed attempt: base * 2^(attempt-1), capped.
func (d *Dispatcher) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := d.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.BackoffMax {
			return d.cfg.BackoffMax
		}
	}
	return min(delay, d.cfg.BackoffMax)
}

// Plan builds the notifications an alert event raises for the given
// audiences. Nothing is stored; the alert store writes them together with
// the alert change.
//
// Dashboard and email get one notification per recipient; email skips
// recipients without an address. The webhook gets one per event and URL, so
// audiences sharing a hook are called once.
func (d *Dispatcher) Plan(alert *model.DeviationAlert, event model.EventType, audiences []Audience) []*model.AlertNotification {
	content := alerts.Render(alert, event)
	hooks := make(map[string]bool)

	var out []*model.AlertNotification
	for _, a := range audiences {
		for _, ch := range a.Config.Channels.Enabled() {
			if !event.Notifies(ch) {
				continue
			}
			switch ch {
			case model.ChannelWebhook:
				url := a.Config.Channels.Webhook.URL
				if hooks[url] {
					continue
				}
				hooks[url] = true
				out = append(out, d.notification(alert, event, ch, content, "", url))
			case model.ChannelEmail:
				for _, r := range a.Recipients {
					if r.Email == "" {
						continue
					}
					out = append(out, d.notification(alert, event, ch, content, r.UserID, r.Email))
				}
			case model.ChannelDashboard:
				for _, r := range a.Recipients {
					out = append(out, d.notification(alert, event, ch, content, r.UserID, ""))
				}
				if a.Broadcast {
					out = append(out, d.notification(alert, event, ch, content, "", ""))
				}
			}
		}
	}
	return out
}

func (d *Dispatcher) notification(alert *model.DeviationAlert, event model.EventType, ch model.Channel, content alerts.Content, recipientID, address string) *model.AlertNotification {
	return &model.AlertNotification{
		AlertID:     alert.ID,
		TenantID:    alert.TenantID,
		RecipientID: recipientID,
		Channel:     ch,
		Event:       event,
		Severity:    alert.Severity,
		Status:      model.NotificationPending,
		MaxAttempts: d.cfg.MaxAttempts,
		Payload: model.NotificationData{
			Template: content.Template,
			Title:    content.Title,
			Message:  content.Body,
			Address:  address,
		},
	}
}

// Deliver attempts each stored notification of an alert once. Failures stay
// on the notification records for ProcessPending and are never returned.
func (d *Dispatcher) Deliver(ctx context.Context, alert *model.DeviationAlert, notes []*model.AlertNotification) {
	if len(notes) == 0 {
		return
	}
	ctx, span := tracer.Start(ctx, "engine.Deliver", trace.WithAttributes(
		attribute.String("alert.id", alert.ID),
		attribute.String("alert.event", string(notes[0].Event)),
		attribute.Int("notifications", len(notes)),
	))
	defer span.End()

	for _, n := range notes {
		d.attempt(ctx, n, alert)
	}
}

// attempt makes one delivery attempt and persists the result. A notification
// whose attempt could not start because ctx ended is left untouched.
func (d *Dispatcher) attempt(ctx context.Context, n *model.AlertNotification, alert *model.DeviationAlert) {
	if lim := d.limiters[n.Channel]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	start := time.Now()
	err := d.send(ctx, n, alert)
	d.recorder.DeliveryAttempted(n.Channel, err, time.Since(start))

	now := d.now().UTC()
	n.Attempts++
	switch {
	case err == nil:
		n.Status = model.NotificationSent
		n.SentAt = &now
		n.NextAttemptAt = nil
		n.Payload.LastError = ""
	case n.Attempts >= n.MaxAttempts:
		n.Status = model.NotificationFailed
		n.NextAttemptAt = nil
		n.Payload.LastError = err.Error()
	default:
		delay := d.Backoff(n.Attempts)
		if !apperrors.IsRetryable(err) {
			delay = d.cfg.BackoffMax
		}
		next := now.Add(delay)
		n.NextAttemptAt = &next
		n.Payload.LastError = err.Error()
	}

	// Persist even if the caller's context ended mid-delivery.
	if uerr := d.store.UpdateNotification(context.WithoutCancel(ctx), n); uerr != nil {
		d.logger.Error("persist notification", "notification", n.ID, "error", uerr)
		return
	}

	switch n.Status {
	case model.NotificationSent:
		d.logger.Info("notification sent",
			"notification", n.ID,
			"alert", n.AlertID,
			"channel", n.Channel,
			"attempt", n.Attempts,
		)
		d.recorder.NotificationSettled(n.Channel, n.Status)
	case model.NotificationFailed:
		d.logger.Error("notification failed permanently",
			"notification", n.ID,
			"alert", n.AlertID,
			"channel", n.Channel,
			"attempts", n.Attempts,
			"error", err,
		)
		d.recorder.NotificationSettled(n.Channel, n.Status)
		if d.operator != nil {
			if oerr := d.operator.NotifyFailure(context.WithoutCancel(ctx), *n, alert); oerr != nil {
				d.logger.Warn("operator notification failed", "notification", n.ID, "error", oerr)
			}
		}
	default:
		d.logger.Warn("notification delivery failed, will retry",
			"notification", n.ID,
			"channel", n.Channel,
			"attempt", n.Attempts,
			"next_attempt_at", n.NextAttemptAt,
			"error", err,
		)
	}
}

func (d *Dispatcher) send(ctx context.Context, n *model.AlertNotification, alert *model.DeviationAlert) error {
	notifier, ok := d.notifiers[n.Channel]
	if !ok {
		return &apperrors.DeliveryError{Channel: string(n.Channel), Err: errors.New("no notifier configured")}
	}
	if alert == nil {
		return &apperrors.DeliveryError{Channel: string(n.Channel), Err: fmt.Errorf("alert %s not found", n.AlertID)}
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	return notifier.Send(ctx, alerts.Message{
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		Event:          n.Event,
		Alert:          *alert,
		RecipientID:    n.RecipientID,
		Address:        n.Payload.Address,
		Content: alerts.Content{
			Template: n.Payload.Template,
			Title:    n.Payload.Title,
			Body:     n.Payload.Message,
		},
	})
}

// ProcessResult summarizes a dispatcher pass.
type ProcessResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

// ProcessPending retries the tenant's due PENDING notifications.
func (d *Dispatcher) ProcessPending(ctx context.Context, tenantID string) (*ProcessResult, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("process notifications")
	}

	due, err := d.store.ListDueNotifications(ctx, tenantID, d.now().UTC(), d.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	res := &ProcessResult{}
	alertCache := make(map[string]*model.DeviationAlert)
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		n := &due[i]

		alert, ok := alertCache[n.AlertID]
		if !ok {
			alert, err = d.store.GetAlert(ctx, tenantID, n.AlertID)
			if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				return res, err
			}
			alertCache[n.AlertID] = alert
		}

		d.attempt(ctx, n, alert)
		res.Processed++
		switch n.Status {
		case model.NotificationSent:
			res.Sent++
		case model.NotificationFailed:
			res.Failed++
		default:
			res.Pending++
		}
	}
	return res, ctx.Err()
}

// Resend returns a FAILED notification to PENDING with a fresh attempt budget
// and attempts it immediately.
func (d *Dispatcher) Resend(ctx context.Context, tenantID, id string) (*model.AlertNotification, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("resend notification")
	}
	n, err := d.store.GetNotification(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if n.Status != model.NotificationFailed {
		return nil, apperrors.InvalidRequest("resend",
			fmt.Sprintf("only FAILED notifications can be resent, %s is %s", n.ID, n.Status))
	}

	alert, err := d.store.GetAlert(ctx, tenantID, n.AlertID)
	if err != nil {
		return nil, err
	}

	n.Status = model.NotificationPending
	n.Attempts = 0
	n.MaxAttempts = d.cfg.MaxAttempts
	n.NextAttemptAt = nil
	if err := d.store.UpdateNotification(ctx, n); err != nil {
		return nil, err
	}

	d.logger.Info("notification resend requested", "notification", n.ID, "channel", n.Channel)
	d.attempt(ctx, n, alert)
	return n, nil
}

// MarkRead flags a notification as read. A user can only read their own
// notifications; tenant-wide ones can be read by anyone in the tenant.
func (d *Dispatcher) MarkRead(ctx context.Context, tenantID, id, userID string) (*model.AlertNotification, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("mark notification read")
	}
	n, err := d.store.GetNotification(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != "" && userID != "" && n.RecipientID != userID {
		return nil, apperrors.NotFound("notification", id)
	}
	if n.Read {
		return n, nil
	}

	now := d.now().UTC()
	n.Read = true
	n.ReadAt = &now
	if err := d.store.UpdateNotification(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

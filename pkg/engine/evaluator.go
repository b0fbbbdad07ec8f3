package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
)

var tracer = otel.Tracer("github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine")

// Project evaluation outcomes reported to the Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// PartitionReport is what happened to one partition of a project.
type PartitionReport struct {
	Key      model.PartitionKey `json:"key"`
	Result   deviation.Result   `json:"result"`
	Severity model.Severity     `json:"severity,omitempty"`
	Change   Change             `json:"change"`
	AlertID  string             `json:"alert_id,omitempty"`
}

// PartitionError reports a partition that could not be evaluated.
type PartitionError struct {
	Key    model.PartitionKey `json:"key"`
	Reason string             `json:"reason"`
	Code   string             `json:"code"`
}

// ProjectReport summarizes the evaluation of one project.
type ProjectReport struct {
	ProjectID    string            `json:"project_id"`
	Skipped      bool              `json:"skipped,omitempty"`
	SkipReason   string            `json:"skip_reason,omitempty"`
	Created      int               `json:"alerts_created"`
	Escalated    int               `json:"alerts_escalated"`
	Updated      int               `json:"alerts_updated"`
	AutoResolved int               `json:"alerts_auto_resolved"`
	Partitions   []PartitionReport `json:"partitions,omitempty"`
	Errors       []PartitionError  `json:"errors,omitempty"`
}

func (r *ProjectReport) tally(c Change) {
	switch c {
	case ChangeCreated:
		r.Created++
	case ChangeEscalated:
		r.Escalated++
	case ChangeUpdated:
		r.Updated++
	case ChangeAutoResolved:
		r.AutoResolved++
	}
}

// Evaluator runs calculator, classifier, alert store and dispatcher for a project.
type Evaluator struct {
	calc       *deviation.Calculator
	projects   deviation.ProjectSource
	store      storage.Storage
	alerts     *AlertStore
	dispatcher *Dispatcher
	logger     *slog.Logger
	recorder   Recorder
	defaults   model.AlertConfiguration
	workers    int
	now        func() time.Time
}

// NewEvaluator creates an evaluator. partitionWorkers bounds how many partitions
// of one project are evaluated at the same time.
func NewEvaluator(projects deviation.ProjectSource, expenditures deviation.ExpenditureSource, store storage.Storage, dispatcher *Dispatcher, partitionWorkers int, logger *slog.Logger) *Evaluator {
	if partitionWorkers < 1 {
		partitionWorkers = 1
	}
	return &Evaluator{
		calc:       deviation.NewCalculator(projects, expenditures),
		projects:   projects,
		store:      store,
		alerts:     NewAlertStore(store, logger),
		dispatcher: dispatcher,
		logger:     logger,
		recorder:   NopRecorder{},
		defaults:   model.DefaultConfiguration(),
		workers:    partitionWorkers,
		now:        time.Now,
	}
}

// WithRecorder sets the metrics recorder.
func (e *Evaluator) WithRecorder(r Recorder) *Evaluator {
	e.recorder = r
	return e
}

// WithDefaults replaces the configuration applied to projects that have none.
func (e *Evaluator) WithDefaults(cfg model.AlertConfiguration) *Evaluator {
	e.defaults = cfg
	return e
}

// WithClock replaces the time source of the evaluator and its alert store.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	e.alerts.WithClock(now)
	return e
}

// Configuration returns the project-wide configuration used for evaluation,
// or the system default when the project has none.
func (e *Evaluator) Configuration(ctx context.Context, tenantID, projectID string) (*model.AlertConfiguration, error) {
	cfg, err := e.store.GetConfiguration(ctx, tenantID, projectID, "")
	if errors.Is(err, apperrors.ErrNotFound) {
		def := e.defaults
		def.TenantID = tenantID
		def.ProjectID = projectID
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Policy loads the configurations and recipients that govern a project.
func (e *Evaluator) Policy(ctx context.Context, tenantID, projectID string) (*Policy, error) {
	cfgs, err := e.store.ListConfigurations(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	recipients, err := e.projects.ListRecipients(ctx, tenantID, projectID)
	if err != nil {
		var coded apperrors.Coder
		if !errors.As(err, &coded) {
			err = apperrors.DataAccess("list recipients", err)
		}
		return nil, err
	}
	return newPolicy(e.defaults, tenantID, projectID, cfgs, recipients), nil
}

// EvaluateProject evaluates a single project regardless of its cadence.
// A project whose policy is inactive is reported as skipped.
func (e *Evaluator) EvaluateProject(ctx context.Context, tenantID, projectID string) (*ProjectReport, error) {
	if tenantID == "" {
		return nil, apperrors.TenantRequired("evaluate project")
	}
	project, err := e.calc.Project(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	policy, err := e.Policy(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	if !policy.Active() {
		return e.Skip(projectID, "alert configuration inactive"), nil
	}
	return e.Evaluate(ctx, project, policy)
}

// Skip reports a project left out of an evaluation.
func (e *Evaluator) Skip(projectID, reason string) *ProjectReport {
	e.recorder.ProjectEvaluated(OutcomeSkipped, 0)
	e.logger.Debug("project skipped", "project", projectID, "reason", reason)
	return &ProjectReport{ProjectID: projectID, Skipped: true, SkipReason: reason}
}

// Evaluate evaluates every partition of project under policy and records the
// evaluation time. The project-level partition is evaluated first and its
// failure fails the project; a failing category or stage is reported in the
// result without affecting the others.
func (e *Evaluator) Evaluate(ctx context.Context, project *model.Project, policy *Policy) (report *ProjectReport, err error) {
	ctx, span := tracer.Start(ctx, "engine.Evaluate", trace.WithAttributes(
		attribute.String("tenant.id", project.TenantID),
		attribute.String("project.id", project.ID),
	))
	start := time.Now()
	defer func() {
		outcome := OutcomeSuccess
		if err != nil {
			outcome = OutcomeFailure
			span.RecordError(err)
			span.SetStatus(codes.Error, "evaluation failed")
		}
		e.recorder.ProjectEvaluated(outcome, time.Since(start))
		span.End()
	}()

	e.logger.Debug("evaluating project", "tenant", project.TenantID, "project", project.ID)

	keys, err := e.calc.Partitions(ctx, project.TenantID, project.ID, policy.PerCategory(), policy.PerStage())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("partitions", len(keys)))

	report = &ProjectReport{ProjectID: project.ID}
	parts := make([]*PartitionReport, len(keys))
	perrs := make([]error, len(keys))

	// Project level first.
	parts[0], err = e.evaluatePartition(ctx, project, policy, keys[0])
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 1; i < len(keys); i++ {
		g.Go(func() error {
			part, perr := e.evaluatePartition(gctx, project, policy, keys[i])
			if perr != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			parts[i], perrs[i] = part, perr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, part := range parts {
		if perrs[i] != nil {
			e.logger.Error("partition evaluation failed",
				"tenant", project.TenantID,
				"project", project.ID,
				"partition", keys[i].String(),
				"error", perrs[i],
			)
			report.Errors = append(report.Errors, PartitionError{
				Key:    keys[i],
				Reason: perrs[i].Error(),
				Code:   apperrors.Code(perrs[i]),
			})
			continue
		}
		if part == nil {
			continue
		}
		report.tally(part.Change)
		report.Partitions = append(report.Partitions, *part)
	}

	if err := e.store.RecordEvaluation(ctx, project.TenantID, project.ID, e.now().UTC()); err != nil {
		return nil, err
	}

	e.logger.Info("project evaluated",
		"tenant", project.TenantID,
		"project", project.ID,
		"partitions", len(report.Partitions),
		"created", report.Created,
		"escalated", report.Escalated,
		"auto_resolved", report.AutoResolved,
		"errors", len(report.Errors),
	)
	return report, nil
}

// evaluatePartition returns nil for a partition without an allocation.
func (e *Evaluator) evaluatePartition(ctx context.Context, project *model.Project, policy *Policy, key model.PartitionKey) (*PartitionReport, error) {
	res, ok, err := e.calc.Calculate(ctx, project, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	sev, alerting := policy.Classify(res)
	ev := Evaluation{
		Result:      res,
		Severity:    sev,
		Alerting:    alerting,
		Description: deviation.Describe(project.Name, res),
	}
	if e.dispatcher != nil {
		audiences := policy.Audiences()
		ev.Plan = func(alert *model.DeviationAlert, event model.EventType) []*model.AlertNotification {
			return e.dispatcher.Plan(alert, event, audiences)
		}
	}
	out, err := e.alerts.Apply(ctx, project.TenantID, project.ID, key, ev)
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", key, err)
	}

	part := &PartitionReport{Key: key, Result: res, Severity: sev, Change: out.Change}
	if out.Alert != nil {
		part.AlertID = out.Alert.ID
	}

	if _, notify := out.Change.Event(); !notify {
		return part, nil
	}

	e.recorder.AlertChanged(out.Change, out.Alert.Severity)
	e.logger.Info("deviation alert "+string(out.Change),
		"tenant", project.TenantID,
		"project", project.ID,
		"partition", key.String(),
		"alert", out.Alert.ID,
		"severity", out.Alert.Severity,
		"previous_severity", out.PreviousSeverity,
		"deviation_pct", deviation.FormatPct(res.DeviationPct),
	)

	// The notifications were committed with the alert; a failed attempt
	// leaves them PENDING for the next dispatcher pass.
	if e.dispatcher != nil {
		e.dispatcher.Deliver(ctx, out.Alert, out.Notifications)
	}
	return part, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/storage"
)

// Request starts an evaluation. An empty ProjectID evaluates every eligible
// project of the tenant.
type Request struct {
	TenantID    string            `json:"tenant_id"`
	ProjectID   string            `json:"project_id,omitempty"`
	TriggerType model.TriggerType `json:"trigger_type"`
}

// ProjectError is a project whose evaluation failed.
type ProjectError struct {
	ProjectID string `json:"project_id"`
	Reason    string `json:"reason"`
	Code      string `json:"code"`
}

// Result aggregates a trigger run.
type Result struct {
	Success            bool            `json:"success"`
	ProjectsProcessed  int             `json:"projects_processed"`
	ProjectsSkipped    int             `json:"projects_skipped"`
	ProjectsFailed     int             `json:"projects_failed"`
	AlertsCreated      int             `json:"alerts_created"`
	AlertsEscalated    int             `json:"alerts_escalated"`
	AlertsAutoResolved int             `json:"alerts_auto_resolved"`
	Errors             []ProjectError  `json:"errors"`
	Reports            []ProjectReport `json:"reports,omitempty"`
}

// TriggerConfig bounds a bulk run.
type TriggerConfig struct {
	Workers        int
	ProjectTimeout time.Duration
}

// Trigger evaluates one project or all eligible projects of a tenant.
type Trigger struct {
	evaluator *Evaluator
	projects  deviation.ProjectSource
	store     storage.Storage
	cfg       TriggerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewTrigger creates a batch trigger.
func NewTrigger(evaluator *Evaluator, projects deviation.ProjectSource, store storage.Storage, cfg TriggerConfig, logger *slog.Logger) *Trigger {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.ProjectTimeout <= 0 {
		cfg.ProjectTimeout = 2 * time.Minute
	}
	return &Trigger{
		evaluator: evaluator,
		projects:  projects,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source used for eligibility and cadence.
func (t *Trigger) WithClock(now func() time.Time) *Trigger {
	t.now = now
	return t
}

// Run evaluates the requested projects. A failing project is reported in the
// result and never stops the others. If ctx ends, projects not yet started are
// left out and the partial result is returned with ctx's error.
func (t *Trigger) Run(ctx context.Context, req Request) (*Result, error) {
	if req.TenantID == "" {
		return nil, apperrors.TenantRequired("trigger evaluation")
	}
	switch req.TriggerType {
	case "":
		req.TriggerType = model.TriggerManual
	case model.TriggerManual, model.TriggerScheduled:
	default:
		return nil, apperrors.InvalidRequest("trigger", fmt.Sprintf("unknown trigger type %q", req.TriggerType))
	}

	ctx, span := tracer.Start(ctx, "engine.Trigger", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("trigger.type", string(req.TriggerType)),
	))
	defer span.End()

	projects, err := t.targets(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("projects", len(projects)))

	reports := make([]*ProjectReport, len(projects))
	errs := make([]error, len(projects))

	var g errgroup.Group
	g.SetLimit(t.cfg.Workers)
	for i := range projects {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			reports[i], errs[i] = t.runProject(ctx, &projects[i], req.TriggerType)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Errors: []ProjectError{}}
	for i, rep := range reports {
		switch {
		case errs[i] != nil:
			res.ProjectsFailed++
			res.Errors = append(res.Errors, ProjectError{
				ProjectID: projects[i].ID,
				Reason:    errs[i].Error(),
				Code:      apperrors.Code(errs[i]),
			})
		case rep == nil:
			// never started
		case rep.Skipped:
			res.ProjectsSkipped++
			res.Reports = append(res.Reports, *rep)
		default:
			res.ProjectsProcessed++
			res.AlertsCreated += rep.Created
			res.AlertsEscalated += rep.Escalated
			res.AlertsAutoResolved += rep.AutoResolved
			res.Reports = append(res.Reports, *rep)
		}
	}
	res.Success = ctx.Err() == nil

	t.logger.Info("evaluation trigger finished",
		"tenant", req.TenantID,
		"trigger_type", req.TriggerType,
		"projects", len(projects),
		"processed", res.ProjectsProcessed,
		"skipped", res.ProjectsSkipped,
		"failed", res.ProjectsFailed,
		"alerts_created", res.AlertsCreated,
		"alerts_escalated", res.AlertsEscalated,
		"alerts_auto_resolved", res.AlertsAutoResolved,
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (t *Trigger) targets(ctx context.Context, req Request) ([]model.Project, error) {
	if req.ProjectID != "" {
		p, err := t.evaluator.calc.Project(ctx, req.TenantID, req.ProjectID)
		if err != nil {
			return nil, err
		}
		return []model.Project{*p}, nil
	}

	projects, err := t.projects.ListEligibleProjects(ctx, req.TenantID, t.now().UTC())
	if err != nil {
		var coded apperrors.Coder
		if !errors.As(err, &coded) {
			err = apperrors.DataAccess("list eligible projects", err)
		}
		return nil, err
	}
	return projects, nil
}

// runProject evaluates one project under its own timeout, retrying once on a
// transient data-layer fault.
func (t *Trigger) runProject(ctx context.Context, p *model.Project, tt model.TriggerType) (*ProjectReport, error) {
	report, err := t.evaluateOnce(ctx, p, tt)
	if err != nil && apperrors.IsRetryable(err) && ctx.Err() == nil {
		t.logger.Warn("retrying project evaluation", "tenant", p.TenantID, "project", p.ID, "error", err)
		report, err = t.evaluateOnce(ctx, p, tt)
	}
	if err != nil {
		t.logger.Error("project evaluation failed", "tenant", p.TenantID, "project", p.ID, "error", err)
	}
	return report, err
}

func (t *Trigger) evaluateOnce(ctx context.Context, p *model.Project, tt model.TriggerType) (*ProjectReport, error) {
	pctx, cancel := context.WithTimeout(ctx, t.cfg.ProjectTimeout)
	defer cancel()

	report, err := t.evaluate(pctx, p, tt)
	if err != nil && errors.Is(pctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("evaluation timed out after %s: %w", t.cfg.ProjectTimeout, err)
	}
	return report, err
}

func (t *Trigger) evaluate(ctx context.Context, p *model.Project, tt model.TriggerType) (*ProjectReport, error) {
	policy, err := t.evaluator.Policy(ctx, p.TenantID, p.ID)
	if err != nil {
		return nil, err
	}
	if !policy.Active() {
		return t.evaluator.Skip(p.ID, "alert configuration inactive"), nil
	}

	if tt == model.TriggerScheduled {
		last, err := t.store.LastEvaluation(ctx, p.TenantID, p.ID)
		if err != nil {
			return nil, err
		}
		if !last.IsZero() && t.now().Sub(last) < policy.CheckFrequency() {
			return t.evaluator.Skip(p.ID, "evaluated within check frequency"), nil
		}
	}

	return t.evaluator.Evaluate(ctx, p, policy)
}

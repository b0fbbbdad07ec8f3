package engine

import (
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// Policy is the set of alert configurations that govern one project's
// evaluation.
//
// A stored project-wide configuration decides classification, cadence and
// partitioning on its own. Without one, the active configurations of the
// project's recipients decide together, and the system default covers a
// project nobody configured.
type Policy struct {
	// Project is the project-wide configuration, or the system default when
	// none is stored.
	Project *model.AlertConfiguration
	// Stored reports whether Project was read from storage.
	Stored bool
	// Users are the recipients' own configurations, ordered by user.
	Users      []*model.AlertConfiguration
	Recipients []model.Recipient
}

// Audience is a group of recipients notified through the same channels.
type Audience struct {
	Config     *model.AlertConfiguration
	Recipients []model.Recipient
	// Broadcast is set on a project without recipients; its dashboard entry
	// goes to the whole tenant.
	Broadcast bool
}

func newPolicy(defaults model.AlertConfiguration, tenantID, projectID string, cfgs []model.AlertConfiguration, recipients []model.Recipient) *Policy {
	members := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		members[r.UserID] = true
	}

	p := &Policy{Recipients: recipients}
	for i := range cfgs {
		c := &cfgs[i]
		switch {
		case c.UserID == "":
			p.Project, p.Stored = c, true
		case members[c.UserID]:
			p.Users = append(p.Users, c)
		}
	}
	if p.Project == nil {
		def := defaults
		def.TenantID = tenantID
		def.ProjectID = projectID
		p.Project = &def
	}
	return p
}

func (p *Policy) user(id string) *model.AlertConfiguration {
	for _, c := range p.Users {
		if c.UserID == id {
			return c
		}
	}
	return nil
}

// governing returns the configurations that classify the project.
func (p *Policy) governing() []*model.AlertConfiguration {
	if p.Stored {
		return []*model.AlertConfiguration{p.Project}
	}
	var out []*model.AlertConfiguration
	for _, c := range p.Users {
		if c.Active {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return []*model.AlertConfiguration{p.Project}
	}
	return out
}

// Active reports whether the project is evaluated at all. Without a
// project-wide configuration, recipients who all switched their own off
// switch the project off.
func (p *Policy) Active() bool {
	if p.Stored || len(p.Users) == 0 {
		return p.Project.Active
	}
	for _, c := range p.Users {
		if c.Active {
			return true
		}
	}
	return false
}

// CheckFrequency is the shortest cadence among the governing configurations.
func (p *Policy) CheckFrequency() time.Duration {
	var freq time.Duration
	for i, c := range p.governing() {
		if f := c.CheckFrequency(); i == 0 || f < freq {
			freq = f
		}
	}
	return freq
}

// PerCategory reports whether any governing configuration splits by category.
func (p *Policy) PerCategory() bool {
	for _, c := range p.governing() {
		if c.PerCategory {
			return true
		}
	}
	return false
}

// PerStage reports whether any governing configuration splits by stage.
func (p *Policy) PerStage() bool {
	for _, c := range p.governing() {
		if c.PerStage {
			return true
		}
	}
	return false
}

// Classify returns the highest tier any governing configuration assigns to r.
func (p *Policy) Classify(r deviation.Result) (model.Severity, bool) {
	var (
		best     model.Severity
		alerting bool
	)
	for _, c := range p.governing() {
		sev, ok := deviation.ClassifyResult(r, c.Thresholds)
		if ok && sev.Rank() > best.Rank() {
			best, alerting = sev, true
		}
	}
	return best, alerting
}

// Audiences splits the recipients by the channels that reach them. A
// recipient with an active configuration of their own gets its channels, one
// whose own configuration is inactive gets nothing, and everyone else shares
// the project-wide configuration.
func (p *Policy) Audiences() []Audience {
	shared := Audience{Config: p.Project, Broadcast: len(p.Recipients) == 0}
	var own []Audience
	for _, r := range p.Recipients {
		c := p.user(r.UserID)
		switch {
		case c == nil:
			shared.Recipients = append(shared.Recipients, r)
		case c.Active:
			own = append(own, Audience{Config: c, Recipients: []model.Recipient{r}})
		}
	}
	if len(shared.Recipients) == 0 && !p.Stored && len(own) > 0 {
		return own
	}
	return append([]Audience{shared}, own...)
}

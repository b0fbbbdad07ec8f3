package alerts

import (
	"strings"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// EmailSubject is the subject line of every alert email.
const EmailSubject = "ObrasAI - Alerta de Desvio Orçamentário"

// Template names stored in the notification payload.
const (
	TemplateCreated      = "deviation_alert"
	TemplateEscalated    = "deviation_escalation"
	TemplateAutoResolved = "deviation_auto_resolved"
)

// Content is the text rendered for one event.
type Content struct {
	Template string `json:"template"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// Render builds the pt-BR texts shown to users for an alert event.
func Render(alert *model.DeviationAlert, event model.EventType) Content {
	info := alert.Severity.Info()

	c := Content{
		Template: TemplateCreated,
		Title:    "Alerta de Desvio " + info.Label,
	}
	switch event {
	case model.EventEscalated:
		c.Template = TemplateEscalated
		c.Title = "Alerta de Desvio " + info.Label + " (severidade alterada)"
	case model.EventAutoResolved:
		c.Template = TemplateAutoResolved
		c.Title = "Desvio Orçamentário Normalizado"
	}

	var b strings.Builder
	b.WriteString(alert.Description)
	b.WriteString("\n\n")
	b.WriteString("Valor orçado: " + deviation.FormatBRL(alert.Planned) + "\n")
	b.WriteString("Valor realizado: " + deviation.FormatBRL(alert.Realized) + "\n")
	b.WriteString("Valor do desvio: " + deviation.FormatBRL(alert.DeviationValue) + "\n")
	b.WriteString("Percentual: " + deviation.FormatPct(alert.DeviationPct) + "\n")
	b.WriteString("Severidade: " + info.Label)
	if event == model.EventAutoResolved {
		b.WriteString("\n\nO desvio voltou a ficar abaixo do limite configurado e o alerta foi resolvido automaticamente.")
	}
	c.Body = b.String()
	return c
}

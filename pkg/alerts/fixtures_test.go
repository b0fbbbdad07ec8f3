package alerts_test

import (
	"math"
	"time"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

func sampleAlert() model.DeviationAlert {
	return model.DeviationAlert{
		ID:             "a1",
		TenantID:       "t1",
		ProjectID:      "p1",
		Category:       "materiais",
		Severity:       model.SeverityMedium,
		DeviationPct:   30,
		Planned:        100000,
		Realized:       130000,
		DeviationValue: 30000,
		Description:    "Desvio de 30,0% na categoria materiais",
		Status:         model.StatusActive,
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func sampleMessage(event model.EventType) alerts.Message {
	a := sampleAlert()
	return alerts.Message{
		NotificationID: "n1",
		TenantID:       "t1",
		Event:          event,
		Alert:          a,
		RecipientID:    "u1",
		Content:        alerts.Render(&a, event),
	}
}

func unboundedMessage() alerts.Message {
	msg := sampleMessage(model.EventCreated)
	msg.Alert.Planned = 0
	msg.Alert.Realized = 1000
	msg.Alert.DeviationValue = 1000
	msg.Alert.DeviationPct = model.Percentage(math.Inf(1))
	msg.Alert.Severity = model.SeverityCritical
	return msg
}

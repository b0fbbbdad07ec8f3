package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/metrics"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := metrics.Recorder{}

	before := testutil.ToFloat64(metrics.ProjectEvaluationsTotal.WithLabelValues(engine.OutcomeSuccess))
	r.ProjectEvaluated(engine.OutcomeSuccess, 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ProjectEvaluationsTotal.WithLabelValues(engine.OutcomeSuccess)))

	before = testutil.ToFloat64(metrics.AlertChangesTotal.WithLabelValues("escalated", "CRITICAL"))
	r.AlertChanged(engine.ChangeEscalated, model.SeverityCritical)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AlertChangesTotal.WithLabelValues("escalated", "CRITICAL")))

	okBefore := testutil.ToFloat64(metrics.DeliveryAttemptsTotal.WithLabelValues("webhook", "ok"))
	errBefore := testutil.ToFloat64(metrics.DeliveryAttemptsTotal.WithLabelValues("webhook", "error"))
	r.DeliveryAttempted(model.ChannelWebhook, nil, time.Millisecond)
	r.DeliveryAttempted(model.ChannelWebhook, errors.New("boom"), time.Millisecond)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.DeliveryAttemptsTotal.WithLabelValues("webhook", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.DeliveryAttemptsTotal.WithLabelValues("webhook", "error")))

	before = testutil.ToFloat64(metrics.NotificationsSettledTotal.WithLabelValues("email", "FAILED"))
	r.NotificationSettled(model.ChannelEmail, model.NotificationFailed)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsSettledTotal.WithLabelValues("email", "FAILED")))
}

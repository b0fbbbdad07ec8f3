package deviation_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/deviation"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
	"github.com/stretchr/testify/assert"
)

var thresholds = model.Thresholds{Low: 10, Medium: 25, High: 50, Critical: 80}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		pct    float64
		want   model.Severity
		alerts bool
	}{
		{0, "", false},
		{9.999, "", false},
		{10, model.SeverityLow, true},
		{24.9, model.SeverityLow, true},
		{25, model.SeverityMedium, true},
		{30, model.SeverityMedium, true},
		{49.999, model.SeverityMedium, true},
		{50, model.SeverityHigh, true},
		{79.99, model.SeverityHigh, true},
		{80, model.SeverityCritical, true},
		{250, model.SeverityCritical, true},
		{-12, model.SeverityLow, true},
		{-50, model.SeverityHigh, true},
		{-9, "", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%g", tt.pct), func(t *testing.T) {
			got, ok := deviation.Classify(model.Percentage(tt.pct), thresholds)
			assert.Equal(t, tt.alerts, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Unbounded(t *testing.T) {
	got, ok := deviation.Classify(model.Percentage(math.Inf(1)), thresholds)
	assert.True(t, ok)
	assert.Equal(t, model.SeverityCritical, got)
}

func TestClassify_NaN(t *testing.T) {
	_, ok := deviation.Classify(model.Percentage(math.NaN()), thresholds)
	assert.False(t, ok)
}

func TestClassifyResult_ZeroBudget(t *testing.T) {
	r := deviation.Compute(model.PartitionKey{}, 0, 1000)
	got, ok := deviation.ClassifyResult(r, thresholds)
	assert.True(t, ok)
	assert.Equal(t, model.SeverityCritical, got)
	assert.True(t, r.DeviationPct.Unbounded())
	assert.InDelta(t, 1000.0, r.DeviationValue, 0.001)

	empty := deviation.Compute(model.PartitionKey{}, 0, 0)
	_, ok = deviation.ClassifyResult(empty, thresholds)
	assert.False(t, ok)
}

func TestDescribe(t *testing.T) {
	r := deviation.Compute(model.PartitionKey{Category: "materiais"}, 1000, 1300)
	assert.Equal(t, "Desvio de 30,0% na categoria materiais", deviation.Describe("Residencial Aurora", r))

	r = deviation.Compute(model.PartitionKey{}, 100000, 80000)
	assert.Equal(t, "Desvio de -20,0% no orçamento da obra Residencial Aurora", deviation.Describe("Residencial Aurora", r))

	r = deviation.Compute(model.PartitionKey{Stage: "fundação"}, 0, 500)
	got := deviation.Describe("Residencial Aurora", r)
	assert.True(t, strings.HasPrefix(got, "Gasto de R$ "))
	assert.True(t, strings.HasSuffix(got, "sem valor orçado na etapa fundação"))
}

func TestFormatBRL(t *testing.T) {
	got := deviation.FormatBRL(30000)
	assert.True(t, strings.HasPrefix(got, "R$ "))
	assert.True(t, strings.HasSuffix(got, ",00"))
}

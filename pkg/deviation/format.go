package deviation

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

var printer = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders an amount in reais, e.g. "R$ 30.000,00".
func FormatBRL(v float64) string {
	return printer.Sprintf("R$ %.2f", v)
}

// FormatPct renders a deviation percentage with one decimal.
func FormatPct(p model.Percentage) string {
	if p.Unbounded() {
		return "∞%"
	}
	return printer.Sprintf("%.1f%%", float64(p))
}

// Describe builds the human-readable description stored with an alert.
func Describe(projectName string, r Result) string {
	where := "no orçamento da obra " + projectName
	switch {
	case r.Key.Category != "" && r.Key.Stage != "":
		where = "na categoria " + r.Key.Category + " da etapa " + r.Key.Stage
	case r.Key.Category != "":
		where = "na categoria " + r.Key.Category
	case r.Key.Stage != "":
		where = "na etapa " + r.Key.Stage
	}

	if r.DeviationPct.Unbounded() {
		return "Gasto de " + FormatBRL(r.Realized) + " sem valor orçado " + where
	}
	return "Desvio de " + FormatPct(r.DeviationPct) + " " + where
}

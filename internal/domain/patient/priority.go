package patient

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// PriorityRules are the thresholds used by ScorePriority.
type PriorityRules struct {
	// DiabetesYears is the diabetes duration above which diabetes counts as a
	// risk flag.
	DiabetesYears float64
	// LowEjectionFraction is the LVEF percentage below which the ejection
	// fraction counts as a risk flag.
	LowEjectionFraction float64
	HighThreshold       int
	MediumThreshold     int
}

var DefaultPriorityRules = PriorityRules{
	DiabetesYears:       10,
	LowEjectionFraction: 40,
	HighThreshold:       3,
	MediumThreshold:     1,
}

// RiskFlags counts the high-risk conditions present in c.
func (r PriorityRules) RiskFlags(c Clinical) int {
	flags := []bool{
		c.HeartFailure,
		c.KidneyFailure,
		c.DiabetesMellitus && c.EvolutionDiabetes > r.DiabetesYears,
		c.AtrialFibrillation,
		c.EjectionFraction < r.LowEjectionFraction,
	}
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func (r PriorityRules) Score(c Clinical) string {
	switch n := r.RiskFlags(c); {
	case n >= r.HighThreshold:
		return PriorityHigh
	case n >= r.MediumThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ScorePriority grades c with the default rules.
func ScorePriority(c Clinical) string {
	return DefaultPriorityRules.Score(c)
}

// formatYears prints v in its shortest form but always with a fractional
// part, so 5 reads "5.0" and 5.25 reads "5.25".
func formatYears(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Summarize lists the notable findings in c, joined by "; ".
func Summarize(c Clinical) string {
	var parts []string
	if c.DiabetesMellitus {
		parts = append(parts, fmt.Sprintf("Diabetes (%sy)", formatYears(c.EvolutionDiabetes)))
	}
	if c.HighBloodPressure {
		parts = append(parts, "Hypertension")
	}
	if c.HeartFailure {
		parts = append(parts, "Heart Failure")
	}
	if c.KidneyFailure {
		parts = append(parts, "Kidney Failure")
	}
	if c.AtrialFibrillation {
		parts = append(parts, "A-Fib")
	}
	if c.Dyslipidemia {
		parts = append(parts, "Dyslipidemia")
	}
	if c.Smoker {
		parts = append(parts, "Smoker")
	}
	if c.BMI > 0 {
		parts = append(parts, fmt.Sprintf("BMI: %.1f", c.BMI))
	}
	if c.EjectionFraction > 0 {
		parts = append(parts, fmt.Sprintf("EF: %.0f%%", c.EjectionFraction))
	}
	if c.VesselsAffected > 0 {
		parts = append(parts, fmt.Sprintf("%d vessel(s)", c.VesselsAffected))
	}
	if len(parts) == 0 {
		return "No significant conditions recorded"
	}
	return strings.Join(parts, "; ")
}

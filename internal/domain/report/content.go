package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/patient"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/notification"
)

const generatedLayout = "2006-01-02 15:04:05"

var indications = map[int]string{
	0: "No specific indication",
	1: "Stable angina",
	2: "Unstable angina",
	3: "Myocardial infarction",
	4: "Heart failure",
	5: "Other",
}

// Indication names a clinical indication for angiography code.
func Indication(code int) string {
	if s, ok := indications[code]; ok {
		return s
	}
	return "Unknown"
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// PredictionLabel capitalizes the stored label, or returns "N/A".
func PredictionLabel(label *string) string {
	if label == nil || *label == "" {
		return "N/A"
	}
	l := *label
	return strings.ToUpper(l[:1]) + strings.ToLower(l[1:])
}

// BuildReportData lays out rec as the sections shared by the email body and
// the PDF attachment.
func BuildReportData(rec *patient.Record, doctorName string, at time.Time) notification.ReportData {
	c := rec.Clinical
	return notification.ReportData{
		PatientID: rec.ID,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Sections: []notification.ReportSection{
			{Title: "Patient Information", Rows: []notification.ReportRow{
				{Label: "Full Name", Value: rec.FullName()},
				{Label: "Age", Value: strconv.Itoa(c.Age)},
				{Label: "Sex", Value: patient.SexLabel(c.Sex)},
				{Label: "BMI", Value: num(c.BMI)},
			}},
			{Title: "Medical Conditions", Rows: []notification.ReportRow{
				{Label: "Diabetes Mellitus", Value: yesNo(c.DiabetesMellitus)},
				{Label: "Diabetes Evolution (years)", Value: num(c.EvolutionDiabetes)},
				{Label: "Dyslipidemia", Value: yesNo(c.Dyslipidemia)},
				{Label: "Smoker", Value: yesNo(c.Smoker)},
				{Label: "High Blood Pressure", Value: yesNo(c.HighBloodPressure)},
				{Label: "Kidney Failure", Value: yesNo(c.KidneyFailure)},
				{Label: "Heart Failure", Value: yesNo(c.HeartFailure)},
				{Label: "Atrial Fibrillation", Value: yesNo(c.AtrialFibrillation)},
			}},
			{Title: "Cardiac Assessment", Rows: []notification.ReportRow{
				{Label: "Left Ventricular Ejection Fraction", Value: num(c.EjectionFraction) + "%"},
				{Label: "Clinical Indication for Angiography", Value: Indication(c.AngiographyIndication)},
			}},
			{Title: "Diagnostic Results", Rows: []notification.ReportRow{
				{Label: "Number of Vessels Affected", Value: strconv.Itoa(c.VesselsAffected)},
				{Label: "Maximum Degree of Coronary Artery Involvement", Value: num(c.MaxArteryInvolvement) + "%"},
				{Label: "Prediction Result", Value: PredictionLabel(rec.PredictionLabel)},
			}},
		},
		DoctorName:  doctorName,
		GeneratedAt: at.Format(generatedLayout),
	}
}

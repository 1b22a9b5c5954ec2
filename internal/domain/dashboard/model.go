package dashboard

import (
	"time"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/patient"
)

// NurseCounts are the hospital-wide tallies on the nurse overview.
type NurseCounts struct {
	PatientsToday      int `json:"patients_today"`
	Reviewed           int `json:"reviewed"`
	Pending            int `json:"pending"`
	Completed          int `json:"completed"`
	ReadyForPrediction int `json:"ready_for_prediction"`
}

type NurseRecentPatient struct {
	PatientID        int64     `json:"patient_id"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"created_at"`
	ReviewedByDoctor bool      `json:"reviewed_by_doctor"`
	Prediction       string    `json:"prediction"`
	ImageID          *int64    `json:"image_id"`
}

type NurseOverview struct {
	HospitalName string `json:"hospital_name"`
	NurseCounts
	RecentPatients []NurseRecentPatient `json:"recent_patients"`
}

type PredictionSummary struct {
	Lesion       int `json:"lesion"`
	NonLesion    int `json:"nonlesion"`
	NotPredicted int `json:"not_predicted"`
	HighRisk     int `json:"high_risk"`
}

type Alert struct {
	PatientID            int64     `json:"patient_id"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	PredictionConfidence float64   `json:"prediction_confidence"`
	CreatedAt            time.Time `json:"created_at"`
}

type Demographics struct {
	AgeGroups map[string]int `json:"age_groups"`
	Sex       map[string]int `json:"sex"`
}

type WorkloadStats struct {
	AvgDaysToPrediction   *float64 `json:"avg_days_to_prediction"`
	PatientsAddedLastWeek int      `json:"patients_added_last_week"`
}

type DoctorRecentPatient struct {
	PatientID            int64     `json:"patient_id"`
	FirstName            string    `json:"first_name"`
	LastName             string    `json:"last_name"`
	Age                  int       `json:"age"`
	Sex                  int       `json:"sex"`
	Status               string    `json:"status"`
	PredictionLabel      *string   `json:"prediction_label"`
	PredictionConfidence *float64  `json:"prediction_confidence"`
	CreatedAt            time.Time `json:"created_at"`
}

type DoctorDashboard struct {
	DoctorID              int64                 `json:"doctor_id"`
	DoctorName            string                `json:"doctor_name"`
	TotalAssignedPatients int                   `json:"total_assigned_patients"`
	StatusBreakdown       map[string]int        `json:"status_breakdown"`
	PredictionSummary     PredictionSummary     `json:"prediction_summary"`
	Alerts                []Alert               `json:"alerts"`
	Demographics          Demographics          `json:"demographics"`
	WorkloadStats         WorkloadStats         `json:"workload_stats"`
	RecentPatients        []DoctorRecentPatient `json:"recent_patients"`
}

// AssignedPatient is a patient with its creating nurse and every image.
type AssignedPatient struct {
	patient.Patient
	NurseFirstName *string         `json:"nurse_first_name"`
	NurseLastName  *string         `json:"nurse_last_name"`
	Images         []patient.Image `json:"images"`
}

type AssignedPatients struct {
	DoctorID         int64             `json:"doctor_id"`
	DoctorName       string            `json:"doctor_name"`
	AssignedPatients []AssignedPatient `json:"assigned_patients"`
}

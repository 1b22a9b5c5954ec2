package patient

import (
	"strconv"
	"time"
)

const (
	StatusPending   = "Pending Doctor Review"
	StatusReady     = "Ready for Prediction"
	StatusCompleted = "Completed"
)

// ValidStatus reports whether s is one of the workflow statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusReady, StatusCompleted:
		return true
	}
	return false
}

// Clinical holds the fifteen screening measurements recorded for a patient.
// The JSON names are the column names, including the historical spelling of
// clinical_indication_for_angiogrphy.
type Clinical struct {
	Age                   int     `json:"age" validate:"gte=0,lte=130"`
	Sex                   int     `json:"sex" validate:"oneof=0 1"`
	BMI                   float64 `json:"bmi" validate:"gte=0,lte=100"`
	DiabetesMellitus      bool    `json:"diabetes_mellitus"`
	EvolutionDiabetes     float64 `json:"evolution_diabetes" validate:"gte=0"`
	Dyslipidemia          bool    `json:"dyslipidemia"`
	Smoker                bool    `json:"smoker"`
	HighBloodPressure     bool    `json:"high_blood_pressure"`
	KidneyFailure         bool    `json:"kidney_failure"`
	HeartFailure          bool    `json:"heart_failure"`
	AtrialFibrillation    bool    `json:"atrial_fibrillation"`
	EjectionFraction      float64 `json:"left_ventricular_ejection_fraction" validate:"gte=0,lte=100"`
	AngiographyIndication int     `json:"clinical_indication_for_angiogrphy" validate:"gte=0"`
	VesselsAffected       int     `json:"number_of_vessels_affected" validate:"gte=0"`
	MaxArteryInvolvement  float64 `json:"maximum_degree_of_the_coronary_artery_involvement" validate:"gte=0,lte=100"`
}

type Patient struct {
	ID        int64  `db:"patient_id" json:"patient_id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Clinical
	Status               string     `db:"status" json:"status"`
	PredictionResult     *int       `db:"prediction_result" json:"prediction_result"`
	PredictionLabel      *string    `db:"prediction_label" json:"prediction_label"`
	PredictionConfidence *float64   `db:"prediction_confidence" json:"prediction_confidence"`
	PredictedAt          *time.Time `db:"predicted_at" json:"predicted_at"`
	ReviewedBy           *int64     `db:"reviewed_by" json:"reviewed_by"`
	ReviewedAt           *time.Time `db:"reviewed_at" json:"reviewed_at"`
	HospitalID           int64      `db:"hospital_id" json:"hospital_id"`
	AssignedDoctorID     *int64     `db:"assigned_doctor_id" json:"assigned_doctor_id"`
	CreatedBy            *int64     `db:"created_by" json:"created_by"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// SexLabel renders the stored sex code.
func SexLabel(sex int) string {
	if sex == 1 {
		return "Male"
	}
	return "Female"
}

type Image struct {
	ID               int64     `db:"image_id" json:"image_id"`
	PatientID        int64     `db:"patient_id" json:"patient_id"`
	ImagePath        string    `db:"image_path" json:"image_path"`
	Base64Image      string    `db:"base64_image" json:"base64_image"`
	PredictionResult *string   `db:"prediction_result" json:"prediction_result"`
	UploadedAt       time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// ImagePath is the stored path for a patient's uploaded image.
func ImagePath(patientID int64) string {
	return "patient_" + strconv.FormatInt(patientID, 10) + "_image"
}

// Record is a patient joined with the names shown alongside it.
type Record struct {
	Patient
	DoctorFirstName  *string
	DoctorLastName   *string
	CreatorFirstName *string
	CreatorLastName  *string
	HospitalName     string
	LatestImage      *Image
}

// DoctorName is "Dr. First Last", or empty when no doctor is assigned.
func (r *Record) DoctorName() string {
	if r.DoctorFirstName == nil {
		return ""
	}
	return "Dr. " + joinName(r.DoctorFirstName, r.DoctorLastName)
}

func (r *Record) CreatorName() string {
	if r.CreatorFirstName == nil {
		return ""
	}
	return joinName(r.CreatorFirstName, r.CreatorLastName)
}

func joinName(first, last *string) string {
	name := deref(first)
	if l := deref(last); l != "" {
		name += " " + l
	}
	return name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type Doctor struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// UploadedImage is an image file received with a new patient.
type UploadedImage struct {
	Filename string
	Data     []byte
}

type CreateInput struct {
	FirstName        string
	LastName         string
	Clinical         Clinical
	Status           string
	AssignedDoctorID *int64
	Image            *UploadedImage
}

type CreateResult struct {
	Message          string `json:"message"`
	PatientID        int64  `json:"patient_id"`
	HasImage         bool   `json:"has_image"`
	AssignedDoctorID *int64 `json:"assigned_doctor_id"`
}

type RecentItem struct {
	PatientID          int64  `json:"patient_id"`
	PatientName        string `json:"patient_name"`
	AssignedDoctor     string `json:"assigned_doctor"`
	Priority           string `json:"priority"`
	MedicalDataSummary string `json:"medical_data_summary"`
	Status             string `json:"status"`
	Recorded           string `json:"recorded"`
}

// Detail is the full nurse-facing view of a patient.
type Detail struct {
	PatientID int64  `json:"patient_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Clinical
	Sex                  string   `json:"sex"`
	Status               string   `json:"status"`
	PredictionResult     *int     `json:"prediction_result"`
	PredictionLabel      *string  `json:"prediction_label"`
	PredictionConfidence *float64 `json:"prediction_confidence"`
	PredictedAt          *string  `json:"predicted_at"`
	ReviewedAt           *string  `json:"reviewed_at"`
	CreatedAt            string   `json:"created_at"`
	AssignedDoctorID     *int64   `json:"assigned_doctor_id"`
	AssignedDoctorName   *string  `json:"assigned_doctor_name"`
	CreatedByName        *string  `json:"created_by_name"`
	HospitalName         string   `json:"hospital_name"`
	Priority             string   `json:"priority"`
	MedicalDataSummary   string   `json:"medical_data_summary"`
	ImageData            *string  `json:"image_data"`
	ImagePrediction      *string  `json:"image_prediction"`
	ImageUploadedAt      *string  `json:"image_uploaded_at"`
}

// Prediction is a classifier outcome for one image of a patient.
type Prediction struct {
	PatientID  int64
	ImageID    int64
	Label      string
	Confidence float64
	At         time.Time
}

// Result is the stored numeric outcome: 1 for lesion, 0 otherwise.
func (p Prediction) Result() int {
	if p.Label == LabelLesion {
		return 1
	}
	return 0
}

const (
	LabelLesion    = "lesion"
	LabelNonLesion = "nonlesion"
)

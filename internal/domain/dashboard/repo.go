package dashboard

import (
	"context"
	"time"
)

type Repository interface {
	NurseCounts(ctx context.Context, hospitalID int64, since time.Time) (*NurseCounts, error)
	NurseRecent(ctx context.Context, hospitalID int64, limit int) ([]NurseRecentPatient, error)

	StatusBreakdown(ctx context.Context, doctorID int64) (map[string]int, error)
	PredictionSummary(ctx context.Context, doctorID int64, highRisk float64) (*PredictionSummary, error)
	// Alerts returns lesion predictions above highRisk, most confident first.
	Alerts(ctx context.Context, doctorID int64, highRisk float64, limit int) ([]Alert, error)
	Demographics(ctx context.Context, doctorID int64) (*Demographics, error)
	// AvgDaysToPrediction is nil when no assigned patient has a prediction.
	AvgDaysToPrediction(ctx context.Context, doctorID int64) (*float64, error)
	CountAddedSince(ctx context.Context, doctorID int64, since time.Time) (int, error)
	DoctorRecent(ctx context.Context, doctorID int64, limit int) ([]DoctorRecentPatient, error)

	// AssignedPatients lists the doctor's patients newest first, images included.
	AssignedPatients(ctx context.Context, doctorID int64) ([]AssignedPatient, error)
}

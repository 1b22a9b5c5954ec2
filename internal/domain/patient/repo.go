package patient

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	AddImage(ctx context.Context, img *Image) error
	// FindDoctor returns the doctor with id in hospitalID, or nil.
	FindDoctor(ctx context.Context, doctorID, hospitalID int64) (*Doctor, error)
	ListDoctors(ctx context.Context, hospitalID int64) ([]Doctor, error)
	ListRecords(ctx context.Context, hospitalID int64, limit, offset int) ([]*Record, error)
	CountByHospital(ctx context.Context, hospitalID int64) (int, error)
	// GetRecord returns ErrPatientNotFound when id is not in hospitalID.
	GetRecord(ctx context.Context, id, hospitalID int64) (*Record, error)
	// GetAssignedRecord returns ErrNotAssigned when id is not assigned to doctorID.
	GetAssignedRecord(ctx context.Context, id, doctorID int64) (*Record, error)

	MarkReviewed(ctx context.Context, id, doctorID int64, at time.Time) error
	// SavePrediction writes the outcome onto the patient and the scored image.
	SavePrediction(ctx context.Context, pred Prediction) error
}

// Package patient holds the nurse-facing patient intake and listing
// workflows.
package patient

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/websocket"
	"github.com/memorysinkhonde/cad-Backend/pkg/pagination"
)

var (
	ErrPatientNotFound = apperr.NotFound("Patient not found in your hospital")
	ErrNotAssigned     = apperr.NotFound("Patient not found or not assigned to this doctor")
	ErrInvalidDoctor   = apperr.BadRequest("Invalid doctor assignment: Doctor not found or not in the same hospital")
	ErrInvalidStatus   = apperr.BadRequest("Invalid status")
)

const (
	recentLimit    = 10
	recordedLayout = "2006-01-02 15:04"
	detailLayout   = "2006-01-02 15:04:05"
)

// Users resolves the hospital a caller belongs to.
type Users interface {
	HospitalIDForUser(ctx context.Context, userID int64) (int64, error)
}

type Service struct {
	repo   Repository
	users  Users
	tx     db.Transactor
	events websocket.EventPublisher
	logger zerolog.Logger
}

func NewService(repo Repository, users Users, tx db.Transactor, events websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, users: users, tx: tx, events: events, logger: logger}
}

// CreatePatient stores a new patient, and its image when one is supplied,
// in the caller's hospital.
func (s *Service) CreatePatient(ctx context.Context, nurseID int64, in CreateInput) (*CreateResult, error) {
	hospitalID, err := s.users.HospitalIDForUser(ctx, nurseID)
	if err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if !ValidStatus(in.Status) {
		return nil, ErrInvalidStatus
	}
	if in.FirstName == "" {
		in.FirstName = "Unknown"
	}
	if in.LastName == "" {
		in.LastName = "Unknown"
	}

	p := &Patient{
		FirstName:        in.FirstName,
		LastName:         in.LastName,
		Clinical:         in.Clinical,
		Status:           in.Status,
		HospitalID:       hospitalID,
		AssignedDoctorID: in.AssignedDoctorID,
		CreatedBy:        &nurseID,
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if in.AssignedDoctorID != nil {
			doc, err := s.repo.FindDoctor(ctx, *in.AssignedDoctorID, hospitalID)
			if err != nil {
				return err
			}
			if doc == nil {
				return ErrInvalidDoctor
			}
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		if in.Image == nil {
			return nil
		}
		return s.repo.AddImage(ctx, &Image{
			PatientID:   p.ID,
			ImagePath:   ImagePath(p.ID),
			Base64Image: base64.StdEncoding.EncodeToString(in.Image.Data),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("patient_id", p.ID).Int64("hospital_id", hospitalID).Bool("has_image", in.Image != nil).Msg("patient created")

	payload := map[string]any{"patient_id": p.ID, "status": p.Status, "assigned_doctor_id": p.AssignedDoctorID}
	s.publish(ctx, websocket.NewEvent(websocket.EventPatientCreated, websocket.HospitalTopic(hospitalID), p.ID, payload))
	if p.AssignedDoctorID != nil {
		s.publish(ctx, websocket.NewEvent(websocket.EventPatientAssigned, websocket.DoctorTopic(*p.AssignedDoctorID), p.ID, payload))
	}

	return &CreateResult{
		Message:          "Patient created successfully",
		PatientID:        p.ID,
		HasImage:         in.Image != nil,
		AssignedDoctorID: p.AssignedDoctorID,
	}, nil
}

func (s *Service) publish(ctx context.Context, ev websocket.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", ev.Type).Msg("failed to publish event")
	}
}

func (s *Service) ListDoctors(ctx context.Context, userID int64) ([]Doctor, error) {
	hospitalID, err := s.users.HospitalIDForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDoctors(ctx, hospitalID)
}

// RecentPatients returns the newest patients of the caller's hospital.
func (s *Service) RecentPatients(ctx context.Context, userID int64) ([]RecentItem, error) {
	hospitalID, err := s.users.HospitalIDForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListRecords(ctx, hospitalID, recentLimit, 0)
	if err != nil {
		return nil, err
	}
	items := make([]RecentItem, 0, len(records))
	for _, rec := range records {
		doctor := rec.DoctorName()
		if doctor == "" {
			doctor = "Unassigned"
		}
		items = append(items, RecentItem{
			PatientID:          rec.ID,
			PatientName:        rec.FullName(),
			AssignedDoctor:     doctor,
			Priority:           ScorePriority(rec.Clinical),
			MedicalDataSummary: Summarize(rec.Clinical),
			Status:             rec.Status,
			Recorded:           rec.CreatedAt.Format(recordedLayout),
		})
	}
	return items, nil
}

func (s *Service) ListPatients(ctx context.Context, userID int64, page pagination.Params) (*pagination.Response, error) {
	hospitalID, err := s.users.HospitalIDForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountByHospital(ctx, hospitalID)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.ListRecords(ctx, hospitalID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	details := make([]Detail, 0, len(records))
	for _, rec := range records {
		details = append(details, ToDetail(rec))
	}
	return pagination.NewResponse(details, total, page), nil
}

func (s *Service) PatientDetail(ctx context.Context, userID, patientID int64) (*Detail, error) {
	hospitalID, err := s.users.HospitalIDForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.GetRecord(ctx, patientID, hospitalID)
	if err != nil {
		return nil, err
	}
	d := ToDetail(rec)
	return &d, nil
}

// ToDetail renders rec for display.
func ToDetail(rec *Record) Detail {
	d := Detail{
		PatientID:            rec.ID,
		FirstName:            rec.FirstName,
		LastName:             rec.LastName,
		Clinical:             rec.Clinical,
		Sex:                  SexLabel(rec.Clinical.Sex),
		Status:               rec.Status,
		PredictionResult:     rec.PredictionResult,
		PredictionLabel:      rec.PredictionLabel,
		PredictionConfidence: rec.PredictionConfidence,
		PredictedAt:          formatTime(rec.PredictedAt),
		ReviewedAt:           formatTime(rec.ReviewedAt),
		CreatedAt:            rec.CreatedAt.Format(detailLayout),
		AssignedDoctorID:     rec.AssignedDoctorID,
		AssignedDoctorName:   optional(rec.DoctorName()),
		CreatedByName:        optional(rec.CreatorName()),
		HospitalName:         rec.HospitalName,
		Priority:             ScorePriority(rec.Clinical),
		MedicalDataSummary:   Summarize(rec.Clinical),
	}
	if img := rec.LatestImage; img != nil {
		data := "data:image/jpeg;base64," + img.Base64Image
		d.ImageData = &data
		d.ImagePrediction = img.PredictionResult
		d.ImageUploadedAt = formatTime(&img.UploadedAt)
	}
	return d
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(detailLayout)
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

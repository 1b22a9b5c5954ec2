// Package report delivers diagnostic reports to patients by email and
// exports a doctor's caseload as a spreadsheet.
package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/dashboard"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/patient"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/notification"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/websocket"
)

var (
	ErrSendFailed = apperr.Internal("Failed to send email.")
	ErrNoDoctor   = apperr.NotFound("Patient not found or not assigned to this doctor")
)

// Records is the patient storage a report needs.
type Records interface {
	GetAssignedRecord(ctx context.Context, id, doctorID int64) (*patient.Record, error)
	MarkReviewed(ctx context.Context, id, doctorID int64, at time.Time) error
}

// Caseload lists a doctor's assigned patients.
type Caseload interface {
	AssignedPatients(ctx context.Context, doctorID int64) (*dashboard.AssignedPatients, error)
}

type Service struct {
	records   Records
	caseload  Caseload
	tx        db.Transactor
	sender    notification.EmailSender
	templates *notification.TemplateEngine
	events    websocket.EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(
	records Records,
	caseload Caseload,
	tx db.Transactor,
	sender notification.EmailSender,
	templates *notification.TemplateEngine,
	events websocket.EventPublisher,
	logger zerolog.Logger,
) *Service {
	return &Service{
		records:   records,
		caseload:  caseload,
		tx:        tx,
		sender:    sender,
		templates: templates,
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SendPatientReport emails the report for patientID to email and marks the
// patient reviewed once the message is accepted.
func (s *Service) SendPatientReport(ctx context.Context, doctorID, patientID int64, email string) (string, error) {
	rec, err := s.records.GetAssignedRecord(ctx, patientID, doctorID)
	if err != nil {
		return "", err
	}
	doctorName := rec.DoctorName()
	if doctorName == "" {
		return "", ErrNoDoctor
	}

	now := s.now()
	data := BuildReportData(rec, doctorName, now)
	rendered, err := s.templates.Render(notification.TemplatePatientReport, data)
	if err != nil {
		return "", err
	}
	pdf, err := RenderPDF(data)
	if err != nil {
		return "", err
	}

	msg := notification.Message{
		To:       email,
		Subject:  rendered.Subject,
		HTMLBody: rendered.HTMLBody,
		TextBody: rendered.TextBody,
		Attachments: []notification.Attachment{{
			Filename:    fmt.Sprintf("patient_report_%d.pdf", rec.ID),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	}
	if img := rec.LatestImage; img != nil && img.Base64Image != "" {
		raw, err := decodeImage(img.Base64Image)
		if err != nil {
			s.logger.Warn().Err(err).Int64("patient_id", rec.ID).Msg("skipping undecodable diagnostic image")
		} else {
			msg.Attachments = append(msg.Attachments, notification.Attachment{
				Filename:    "diagnostic_image.jpg",
				ContentType: "image/jpeg",
				Data:        raw,
			})
		}
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error().Err(err).Int64("patient_id", rec.ID).Msg("patient report email failed")
		return "", ErrSendFailed
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.records.MarkReviewed(ctx, rec.ID, doctorID, now)
	})
	if err != nil {
		return "", err
	}
	s.logger.Info().Int64("patient_id", rec.ID).Int64("doctor_id", doctorID).Msg("patient report sent")

	if s.events != nil {
		ev := websocket.NewEvent(websocket.EventPatientReviewed, websocket.HospitalTopic(rec.HospitalID), rec.ID,
			map[string]any{"patient_id": rec.ID, "status": patient.StatusCompleted, "reviewed_by": doctorID})
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("event", ev.Type).Msg("failed to publish event")
		}
	}

	return fmt.Sprintf("Patient report sent to %s successfully.", email), nil
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, after, ok := strings.Cut(s, ","); ok {
			s = after
		}
	}
	return base64.StdEncoding.DecodeString(s)
}

// ExportAssignedPatients renders the doctor's caseload as an xlsx workbook.
func (s *Service) ExportAssignedPatients(ctx context.Context, doctorID int64) ([]byte, error) {
	a, err := s.caseload.AssignedPatients(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return BuildWorkbook(a.AssignedPatients)
}

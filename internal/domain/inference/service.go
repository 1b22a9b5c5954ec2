// Package inference runs the CAD models: the angiography image classifier
// and the tabular clinical risk model.
package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/patient"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/websocket"
)

var (
	ErrRecordNotFound = apperr.NotFound("Patient record not found")
	ErrInvalidImage   = apperr.BadRequest("Invalid image data format")
	ErrImageTooSmall  = apperr.BadRequest("Invalid image data: Image resolution too small (min 100x100 pixels)")
	ErrModelOutput    = apperr.Internal("Model output format error")
)

// Rejection is a prediction the gates refused. It is returned as an error
// and rendered as a 422 body.
type Rejection struct {
	Status       string   `json:"status"`
	Message      string   `json:"message"`
	EntropyScore *float64 `json:"entropy_score,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Threshold    float64  `json:"threshold"`
	TimeSec      *float64 `json:"time_sec,omitempty"`
	PatientID    int64    `json:"patient_id"`
}

func (r *Rejection) Error() string { return r.Message }

// Result is an accepted image prediction.
type Result struct {
	Status            string  `json:"status"`
	PredictedClass    string  `json:"predicted_class"`
	ConfidenceScore   float64 `json:"confidence_score"`
	PredictionTimeSec float64 `json:"prediction_time_sec"`
	PatientID         int64   `json:"patient_id"`
	CircledImage      string  `json:"circled_image"`
	WorkflowStatus    string  `json:"workflow_status"`
	PreviousStatus    string  `json:"previous_status"`
	Note              string  `json:"note"`
}

// Thresholds gate which predictions are accepted.
type Thresholds struct {
	MinConfidence    float64
	StrongConfidence float64
	MaxEntropy       float64
}

var DefaultThresholds = Thresholds{MinConfidence: 0.6, StrongConfidence: 0.75, MaxEntropy: 0.75}

// Records is the patient storage inference reads and updates.
type Records interface {
	GetRecord(ctx context.Context, id, hospitalID int64) (*patient.Record, error)
	SavePrediction(ctx context.Context, pred patient.Prediction) error
}

type Users interface {
	HospitalIDForUser(ctx context.Context, userID int64) (int64, error)
}

type Service struct {
	records    Records
	users      Users
	tx         db.Transactor
	classifier Classifier
	risk       RiskModel
	events     websocket.EventPublisher
	thresholds Thresholds
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(
	records Records,
	users Users,
	tx db.Transactor,
	classifier Classifier,
	risk RiskModel,
	events websocket.EventPublisher,
	thresholds Thresholds,
	logger zerolog.Logger,
) *Service {
	return &Service{
		records:    records,
		users:      users,
		tx:         tx,
		classifier: classifier,
		risk:       risk,
		events:     events,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// PredictImage classifies the latest image of patientID and, when the
// prediction passes the entropy and confidence gates, completes the patient.
func (s *Service) PredictImage(ctx context.Context, userID, patientID int64) (*Result, error) {
	start := s.now()
	hospitalID, err := s.users.HospitalIDForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.GetRecord(ctx, patientID, hospitalID)
	if err != nil {
		if errors.Is(err, patient.ErrPatientNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if rec.LatestImage == nil {
		return nil, ErrRecordNotFound
	}
	log := s.logger.With().Int64("patient_id", patientID).Logger()

	img, err := DecodeImage(rec.LatestImage.Base64Image)
	if err != nil {
		log.Warn().Err(err).Msg("image decoding failed")
		return nil, ErrInvalidImage
	}
	tensor, err := Preprocess(img)
	if err != nil {
		return nil, ErrImageTooSmall
	}

	probs, err := s.classifier.Classify(ctx, tensor)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		log.Error().Err(err).Msg("classifier response unreadable")
		return nil, ErrModelOutput
	}
	if len(probs) != len(ClassNames) {
		log.Error().Int("outputs", len(probs)).Msg("invalid model output shape")
		return nil, ErrModelOutput
	}

	if entropy := NormalizedEntropy(probs); entropy > s.thresholds.MaxEntropy {
		log.Warn().Float64("entropy", entropy).Msg("high entropy prediction")
		score := round(entropy, 4)
		return nil, &Rejection{
			Status:       "rejected",
			Message:      "Prediction rejected (high entropy)",
			EntropyScore: &score,
			Threshold:    s.thresholds.MaxEntropy,
			PatientID:    patientID,
		}
	}

	idx, confidence := Argmax(probs)
	label := ClassNames[idx]
	elapsed := round(s.now().Sub(start).Seconds(), 3)
	if confidence < s.thresholds.MinConfidence {
		log.Warn().Float64("confidence", confidence).Msg("low confidence prediction")
		conf := round(confidence, 4)
		return nil, &Rejection{
			Status:     "rejected",
			Message:    "Low confidence prediction",
			Confidence: &conf,
			Threshold:  s.thresholds.MinConfidence,
			TimeSec:    &elapsed,
			PatientID:  patientID,
		}
	}

	circled, regions := CircleDarkRegions(img)
	circledURL, err := PNGDataURL(circled)
	if err != nil {
		return nil, fmt.Errorf("encode circled image: %w", err)
	}

	pred := patient.Prediction{
		PatientID:  patientID,
		ImageID:    rec.LatestImage.ID,
		Label:      label,
		Confidence: confidence,
		At:         s.now().UTC(),
	}
	if err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.records.SavePrediction(ctx, pred)
	}); err != nil {
		return nil, err
	}
	log.Info().Str("label", label).Float64("confidence", confidence).Int("dark_regions", regions).Msg("prediction completed")
	s.publish(ctx, rec, pred)

	res := &Result{
		Status:            "borderline",
		PredictedClass:    label,
		ConfidenceScore:   round(confidence, 4),
		PredictionTimeSec: elapsed,
		PatientID:         patientID,
		CircledImage:      circledURL,
		WorkflowStatus:    "completed",
		PreviousStatus:    rec.Status,
		Note:              "Consider manual verification",
	}
	if confidence >= s.thresholds.StrongConfidence {
		res.Status = "confident"
		res.Note = "High confidence prediction"
	}
	return res, nil
}

func (s *Service) publish(ctx context.Context, rec *patient.Record, pred patient.Prediction) {
	if s.events == nil {
		return
	}
	data := map[string]any{
		"patient_id":            pred.PatientID,
		"prediction_label":      pred.Label,
		"prediction_confidence": round(pred.Confidence, 4),
		"status":                patient.StatusCompleted,
	}
	topics := []string{websocket.HospitalTopic(rec.HospitalID)}
	if rec.AssignedDoctorID != nil {
		topics = append(topics, websocket.DoctorTopic(*rec.AssignedDoctorID))
	}
	for _, topic := range topics {
		ev := websocket.NewEvent(websocket.EventPredictionCompleted, topic, pred.PatientID, data)
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
		}
	}
}

// CADRequest carries the clinical features in the encoding the risk model
// was trained on: flags as 0 or 1.
type CADRequest struct {
	Age                   int     `json:"age" validate:"gte=0,lte=130"`
	Sex                   int     `json:"sex" validate:"oneof=0 1"`
	BMI                   float64 `json:"bmi" validate:"gte=0,lte=100"`
	DiabetesMellitus      int     `json:"diabetes_mellitus" validate:"oneof=0 1"`
	EvolutionDiabetes     float64 `json:"evolution_diabetes" validate:"gte=0"`
	Dyslipidemia          int     `json:"dyslipidemia" validate:"oneof=0 1"`
	Smoker                int     `json:"smoker" validate:"oneof=0 1"`
	HighBloodPressure     int     `json:"high_blood_pressure" validate:"oneof=0 1"`
	KidneyFailure         int     `json:"kidney_failure" validate:"oneof=0 1"`
	HeartFailure          int     `json:"heart_failure" validate:"oneof=0 1"`
	AtrialFibrillation    int     `json:"atrial_fibrillation" validate:"oneof=0 1"`
	EjectionFraction      float64 `json:"left_ventricular_ejection_fraction" validate:"gte=0,lte=100"`
	AngiographyIndication int     `json:"clinical_indication_for_angiogrphy" validate:"gte=0"`
	VesselsAffected       int     `json:"number_of_vessels_affected" validate:"gte=0"`
	MaxArteryInvolvement  float64 `json:"maximum_degree_of_the_coronary_artery_involvement" validate:"gte=0,lte=100"`
}

// Features keys r by the training column names.
func (r CADRequest) Features() map[string]float64 {
	return map[string]float64{
		"age_(years)":                        float64(r.Age),
		"sex":                                float64(r.Sex),
		"bmi":                                r.BMI,
		"diabetes_mellitus":                  float64(r.DiabetesMellitus),
		"evolution_diabetes_(years)":         r.EvolutionDiabetes,
		"dyslipidemia":                       float64(r.Dyslipidemia),
		"smoker":                             float64(r.Smoker),
		"high_blood_pressure":                float64(r.HighBloodPressure),
		"kidney_failure":                     float64(r.KidneyFailure),
		"heart_failure":                      float64(r.HeartFailure),
		"atrial_fibrillation":                float64(r.AtrialFibrillation),
		"left_ventricular_ejection_fraction": r.EjectionFraction,
		"clinical_indication_for_angiogrphy": float64(r.AngiographyIndication),
		"number_of_vessels_affected":         float64(r.VesselsAffected),
		"maximum_degree_of_the_coronary_artery_involvement": r.MaxArteryInvolvement,
	}
}

type CADResult struct {
	Prediction int    `json:"prediction"`
	Label      string `json:"label"`
}

func (s *Service) PredictCAD(ctx context.Context, req CADRequest) (*CADResult, error) {
	pred, err := s.risk.Predict(ctx, req.Features())
	if err != nil {
		return nil, apperr.New(http.StatusBadRequest, "Prediction failed: "+err.Error())
	}
	label := patient.LabelNonLesion
	if pred == 1 {
		label = patient.LabelLesion
	}
	return &CADResult{Prediction: pred, Label: label}, nil
}

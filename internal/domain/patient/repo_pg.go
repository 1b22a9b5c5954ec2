package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

var patientColumns = []string{
	"patient_id", "first_name", "last_name", "age", "sex", "bmi",
	"diabetes_mellitus", "evolution_diabetes", "dyslipidemia", "smoker",
	"high_blood_pressure", "kidney_failure", "heart_failure", "atrial_fibrillation",
	"left_ventricular_ejection_fraction", "clinical_indication_for_angiogrphy",
	"number_of_vessels_affected", "maximum_degree_of_the_coronary_artery_involvement",
	"status", "prediction_result", "prediction_label", "prediction_confidence", "predicted_at",
	"reviewed_by", "reviewed_at", "hospital_id", "assigned_doctor_id", "created_by", "created_at",
}

// Columns lists the patient columns qualified with alias, in the order
// ScanTargets expects.
func Columns(alias string) string {
	cols := make([]string, len(patientColumns))
	for i, c := range patientColumns {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// ScanTargets returns pointers into p matching Columns.
func ScanTargets(p *Patient) []any {
	return []any{
		&p.ID, &p.FirstName, &p.LastName, &p.Age, &p.Sex, &p.BMI,
		&p.DiabetesMellitus, &p.EvolutionDiabetes, &p.Dyslipidemia, &p.Smoker,
		&p.HighBloodPressure, &p.KidneyFailure, &p.HeartFailure, &p.AtrialFibrillation,
		&p.EjectionFraction, &p.AngiographyIndication,
		&p.VesselsAffected, &p.MaxArteryInvolvement,
		&p.Status, &p.PredictionResult, &p.PredictionLabel, &p.PredictionConfidence, &p.PredictedAt,
		&p.ReviewedBy, &p.ReviewedAt, &p.HospitalID, &p.AssignedDoctorID, &p.CreatedBy, &p.CreatedAt,
	}
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (
			first_name, last_name, age, sex, bmi, diabetes_mellitus, evolution_diabetes,
			dyslipidemia, smoker, high_blood_pressure, kidney_failure, heart_failure,
			atrial_fibrillation, left_ventricular_ejection_fraction,
			clinical_indication_for_angiogrphy, number_of_vessels_affected,
			maximum_degree_of_the_coronary_artery_involvement, status,
			hospital_id, assigned_doctor_id, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING patient_id, created_at`,
		p.FirstName, p.LastName, p.Age, p.Sex, p.BMI, p.DiabetesMellitus, p.EvolutionDiabetes,
		p.Dyslipidemia, p.Smoker, p.HighBloodPressure, p.KidneyFailure, p.HeartFailure,
		p.AtrialFibrillation, p.EjectionFraction,
		p.AngiographyIndication, p.VesselsAffected,
		p.MaxArteryInvolvement, p.Status,
		p.HospitalID, p.AssignedDoctorID, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) AddImage(ctx context.Context, img *Image) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO images (patient_id, image_path, base64_image)
		VALUES ($1, $2, $3)
		RETURNING image_id, uploaded_at`,
		img.PatientID, img.ImagePath, img.Base64Image,
	).Scan(&img.ID, &img.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (r *repoPG) FindDoctor(ctx context.Context, doctorID, hospitalID int64) (*Doctor, error) {
	var d Doctor
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT user_id, email, first_name, last_name FROM users
		WHERE user_id = $1 AND role = 'doctor' AND hospital_id = $2`, doctorID, hospitalID,
	).Scan(&d.UserID, &d.Email, &d.FirstName, &d.LastName)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) ListDoctors(ctx context.Context, hospitalID int64) ([]Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT user_id, email, first_name, last_name FROM users
		WHERE role = 'doctor' AND hospital_id = $1
		ORDER BY last_name, first_name`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	doctors := []Doctor{}
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.UserID, &d.Email, &d.FirstName, &d.LastName); err != nil {
			return nil, err
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

// recordSelect joins the names and the latest image onto each patient.
var recordSelect = `
	SELECT ` + Columns("p") + `,
		doc.first_name, doc.last_name,
		nurse.first_name, nurse.last_name,
		h.hospital_name,
		img.image_id, img.image_path, img.base64_image, img.prediction_result, img.uploaded_at
	FROM patients p
	JOIN hospitals h ON h.hospital_id = p.hospital_id
	LEFT JOIN users doc ON doc.user_id = p.assigned_doctor_id
	LEFT JOIN users nurse ON nurse.user_id = p.created_by
	LEFT JOIN LATERAL (
		SELECT image_id, image_path, base64_image, prediction_result, uploaded_at
		FROM images WHERE patient_id = p.patient_id
		ORDER BY uploaded_at DESC, image_id DESC
		LIMIT 1
	) img ON TRUE`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var (
		imgID         *int64
		imgPath       *string
		imgData       *string
		imgPrediction *string
		imgUploaded   *time.Time
	)
	dest := append(ScanTargets(&rec.Patient),
		&rec.DoctorFirstName, &rec.DoctorLastName,
		&rec.CreatorFirstName, &rec.CreatorLastName,
		&rec.HospitalName,
		&imgID, &imgPath, &imgData, &imgPrediction, &imgUploaded,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if imgID != nil {
		rec.LatestImage = &Image{
			ID:               *imgID,
			PatientID:        rec.ID,
			ImagePath:        deref(imgPath),
			Base64Image:      deref(imgData),
			PredictionResult: imgPrediction,
		}
		if imgUploaded != nil {
			rec.LatestImage.UploadedAt = *imgUploaded
		}
	}
	return &rec, nil
}

func (r *repoPG) ListRecords(ctx context.Context, hospitalID int64, limit, offset int) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx, recordSelect+`
		WHERE p.hospital_id = $1
		ORDER BY p.created_at DESC, p.patient_id DESC
		LIMIT $2 OFFSET $3`, hospitalID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repoPG) CountByHospital(ctx context.Context, hospitalID int64) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE hospital_id = $1`, hospitalID).Scan(&n)
	return n, err
}

func (r *repoPG) GetRecord(ctx context.Context, id, hospitalID int64) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, recordSelect+`
		WHERE p.patient_id = $1 AND p.hospital_id = $2`, id, hospitalID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *repoPG) GetAssignedRecord(ctx context.Context, id, doctorID int64) (*Record, error) {
	rec, err := scanRecord(r.conn(ctx).QueryRow(ctx, recordSelect+`
		WHERE p.patient_id = $1 AND p.assigned_doctor_id = $2`, id, doctorID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotAssigned
		}
		return nil, err
	}
	return rec, nil
}

func (r *repoPG) MarkReviewed(ctx context.Context, id, doctorID int64, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET status = $3, reviewed_by = $2, reviewed_at = $4
		WHERE patient_id = $1 AND assigned_doctor_id = $2`,
		id, doctorID, StatusCompleted, at)
	if err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotAssigned
	}
	return nil
}

func (r *repoPG) SavePrediction(ctx context.Context, pred Prediction) error {
	q := r.conn(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE patients
		SET prediction_result = $2, prediction_label = $3, prediction_confidence = $4,
			predicted_at = $5, status = $6
		WHERE patient_id = $1`,
		pred.PatientID, pred.Result(), pred.Label, pred.Confidence, pred.At, StatusCompleted)
	if err != nil {
		return fmt.Errorf("update patient prediction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	if _, err := q.Exec(ctx, `UPDATE images SET prediction_result = $2 WHERE image_id = $1`, pred.ImageID, pred.Label); err != nil {
		return fmt.Errorf("update image prediction: %w", err)
	}
	return nil
}

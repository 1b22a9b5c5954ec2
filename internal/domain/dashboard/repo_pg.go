package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/patient"
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

func (r *repoPG) NurseCounts(ctx context.Context, hospitalID int64, since time.Time) (*NurseCounts, error) {
	var c NurseCounts
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= $2),
			COUNT(*) FILTER (WHERE reviewed_by IS NOT NULL),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4),
			COUNT(*) FILTER (WHERE status = $5)
		FROM patients WHERE hospital_id = $1`,
		hospitalID, since, patient.StatusPending, patient.StatusCompleted, patient.StatusReady,
	).Scan(&c.PatientsToday, &c.Reviewed, &c.Pending, &c.Completed, &c.ReadyForPrediction)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) NurseRecent(ctx context.Context, hospitalID int64, limit int) ([]NurseRecentPatient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT p.patient_id, p.first_name || ' ' || p.last_name, p.created_at,
			p.reviewed_by IS NOT NULL, p.status,
			(SELECT image_id FROM images WHERE patient_id = p.patient_id
			 ORDER BY uploaded_at DESC, image_id DESC LIMIT 1)
		FROM patients p
		WHERE p.hospital_id = $1
		ORDER BY p.created_at DESC, p.patient_id DESC
		LIMIT $2`, hospitalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []NurseRecentPatient{}
	for rows.Next() {
		var p NurseRecentPatient
		if err := rows.Scan(&p.PatientID, &p.Name, &p.CreatedAt, &p.ReviewedByDoctor, &p.Prediction, &p.ImageID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) StatusBreakdown(ctx context.Context, doctorID int64) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*) FROM patients
		WHERE assigned_doctor_id = $1
		GROUP BY status`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *repoPG) PredictionSummary(ctx context.Context, doctorID int64, highRisk float64) (*PredictionSummary, error) {
	var s PredictionSummary
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE prediction_label = 'lesion'),
			COUNT(*) FILTER (WHERE prediction_label = 'nonlesion'),
			COUNT(*) FILTER (WHERE prediction_label IS NULL),
			COUNT(*) FILTER (WHERE prediction_label = 'lesion' AND prediction_confidence > $2)
		FROM patients WHERE assigned_doctor_id = $1`, doctorID, highRisk,
	).Scan(&s.Lesion, &s.NonLesion, &s.NotPredicted, &s.HighRisk)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) Alerts(ctx context.Context, doctorID int64, highRisk float64, limit int) ([]Alert, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id, first_name, last_name, prediction_confidence, created_at
		FROM patients
		WHERE assigned_doctor_id = $1
			AND prediction_label = 'lesion'
			AND prediction_confidence > $2
		ORDER BY prediction_confidence DESC
		LIMIT $3`, doctorID, highRisk, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Alert{}
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.PatientID, &a.FirstName, &a.LastName, &a.PredictionConfidence, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repoPG) Demographics(ctx context.Context, doctorID int64) (*Demographics, error) {
	var under30, mid, over50, female, male, unknown int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE age < 30),
			COUNT(*) FILTER (WHERE age BETWEEN 30 AND 50),
			COUNT(*) FILTER (WHERE age > 50),
			COUNT(*) FILTER (WHERE sex = 0),
			COUNT(*) FILTER (WHERE sex = 1),
			COUNT(*) FILTER (WHERE sex IS NULL OR sex NOT IN (0, 1))
		FROM patients WHERE assigned_doctor_id = $1`, doctorID,
	).Scan(&under30, &mid, &over50, &female, &male, &unknown)
	if err != nil {
		return nil, err
	}
	return &Demographics{
		AgeGroups: map[string]int{"<30": under30, "30-50": mid, "50+": over50},
		Sex:       map[string]int{"female": female, "male": male, "unknown": unknown},
	}, nil
}

func (r *repoPG) AvgDaysToPrediction(ctx context.Context, doctorID int64) (*float64, error) {
	var avg *float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (predicted_at - created_at)) / 86400)::float8
		FROM patients
		WHERE assigned_doctor_id = $1 AND predicted_at IS NOT NULL`, doctorID,
	).Scan(&avg)
	return avg, err
}

func (r *repoPG) CountAddedSince(ctx context.Context, doctorID int64, since time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM patients
		WHERE assigned_doctor_id = $1 AND created_at >= $2`, doctorID, since,
	).Scan(&n)
	return n, err
}

func (r *repoPG) DoctorRecent(ctx context.Context, doctorID int64, limit int) ([]DoctorRecentPatient, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT patient_id, first_name, last_name, age, sex, status,
			prediction_label, prediction_confidence, created_at
		FROM patients
		WHERE assigned_doctor_id = $1
		ORDER BY created_at DESC, patient_id DESC
		LIMIT $2`, doctorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []DoctorRecentPatient{}
	for rows.Next() {
		var p DoctorRecentPatient
		if err := rows.Scan(&p.PatientID, &p.FirstName, &p.LastName, &p.Age, &p.Sex, &p.Status,
			&p.PredictionLabel, &p.PredictionConfidence, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) AssignedPatients(ctx context.Context, doctorID int64) ([]AssignedPatient, error) {
	q := r.conn(ctx)
	rows, err := q.Query(ctx, `
		SELECT `+patient.Columns("p")+`, nurse.first_name, nurse.last_name
		FROM patients p
		LEFT JOIN users nurse ON nurse.user_id = p.created_by
		WHERE p.assigned_doctor_id = $1
		ORDER BY p.created_at DESC, p.patient_id DESC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []AssignedPatient{}
	index := map[int64]int{}
	var ids []int64
	for rows.Next() {
		var ap AssignedPatient
		dest := append(patient.ScanTargets(&ap.Patient), &ap.NurseFirstName, &ap.NurseLastName)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ap.Images = []patient.Image{}
		index[ap.ID] = len(out)
		ids = append(ids, ap.ID)
		out = append(out, ap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	imgRows, err := q.Query(ctx, `
		SELECT image_id, patient_id, image_path, base64_image, prediction_result, uploaded_at
		FROM images
		WHERE patient_id = ANY($1)
		ORDER BY uploaded_at, image_id`, ids)
	if err != nil {
		return nil, err
	}
	defer imgRows.Close()

	for imgRows.Next() {
		var img patient.Image
		if err := imgRows.Scan(&img.ID, &img.PatientID, &img.ImagePath, &img.Base64Image, &img.PredictionResult, &img.UploadedAt); err != nil {
			return nil, err
		}
		i := index[img.PatientID]
		out[i].Images = append(out[i].Images, img)
	}
	return out, imgRows.Err()
}

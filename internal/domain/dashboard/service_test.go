package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/identity"
	"github.com/memorysinkhonde/cad-Backend/internal/domain/patient"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
)

// memRepo answers every query by scanning an in-memory patient list.
type memRepo struct {
	patients []patient.Patient
	images   map[int64][]patient.Image
	nurses   map[int64][2]string
}

func (m *memRepo) byHospital(id int64) []patient.Patient {
	var out []patient.Patient
	for _, p := range m.patients {
		if p.HospitalID == id {
			out = append(out, p)
		}
	}
	return newestFirst(out)
}

func (m *memRepo) byDoctor(id int64) []patient.Patient {
	var out []patient.Patient
	for _, p := range m.patients {
		if p.AssignedDoctorID != nil && *p.AssignedDoctorID == id {
			out = append(out, p)
		}
	}
	return newestFirst(out)
}

func newestFirst(ps []patient.Patient) []patient.Patient {
	sort.Slice(ps, func(i, j int) bool { return ps[i].CreatedAt.After(ps[j].CreatedAt) })
	return ps
}

func (m *memRepo) NurseCounts(_ context.Context, hospitalID int64, since time.Time) (*NurseCounts, error) {
	var c NurseCounts
	for _, p := range m.byHospital(hospitalID) {
		if !p.CreatedAt.Before(since) {
			c.PatientsToday++
		}
		if p.ReviewedBy != nil {
			c.Reviewed++
		}
		switch p.Status {
		case patient.StatusPending:
			c.Pending++
		case patient.StatusCompleted:
			c.Completed++
		case patient.StatusReady:
			c.ReadyForPrediction++
		}
	}
	return &c, nil
}

func (m *memRepo) NurseRecent(_ context.Context, hospitalID int64, limit int) ([]NurseRecentPatient, error) {
	out := []NurseRecentPatient{}
	for _, p := range m.byHospital(hospitalID) {
		if len(out) == limit {
			break
		}
		item := NurseRecentPatient{PatientID: p.ID, Name: p.FullName(), CreatedAt: p.CreatedAt, ReviewedByDoctor: p.ReviewedBy != nil, Prediction: p.Status}
		if imgs := m.images[p.ID]; len(imgs) > 0 {
			id := imgs[len(imgs)-1].ID
			item.ImageID = &id
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *memRepo) StatusBreakdown(_ context.Context, doctorID int64) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range m.byDoctor(doctorID) {
		out[p.Status]++
	}
	return out, nil
}

func isLesion(p patient.Patient) bool {
	return p.PredictionLabel != nil && *p.PredictionLabel == "lesion"
}

func (m *memRepo) PredictionSummary(_ context.Context, doctorID int64, highRisk float64) (*PredictionSummary, error) {
	var s PredictionSummary
	for _, p := range m.byDoctor(doctorID) {
		switch {
		case p.PredictionLabel == nil:
			s.NotPredicted++
		case isLesion(p):
			s.Lesion++
			if *p.PredictionConfidence > highRisk {
				s.HighRisk++
			}
		case *p.PredictionLabel == "nonlesion":
			s.NonLesion++
		}
	}
	return &s, nil
}

func (m *memRepo) Alerts(_ context.Context, doctorID int64, highRisk float64, limit int) ([]Alert, error) {
	out := []Alert{}
	for _, p := range m.byDoctor(doctorID) {
		if isLesion(p) && *p.PredictionConfidence > highRisk {
			out = append(out, Alert{PatientID: p.ID, FirstName: p.FirstName, LastName: p.LastName, PredictionConfidence: *p.PredictionConfidence, CreatedAt: p.CreatedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PredictionConfidence > out[j].PredictionConfidence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) Demographics(_ context.Context, doctorID int64) (*Demographics, error) {
	d := &Demographics{
		AgeGroups: map[string]int{"<30": 0, "30-50": 0, "50+": 0},
		Sex:       map[string]int{"female": 0, "male": 0, "unknown": 0},
	}
	for _, p := range m.byDoctor(doctorID) {
		switch {
		case p.Age < 30:
			d.AgeGroups["<30"]++
		case p.Age <= 50:
			d.AgeGroups["30-50"]++
		default:
			d.AgeGroups["50+"]++
		}
		switch p.Sex {
		case 0:
			d.Sex["female"]++
		case 1:
			d.Sex["male"]++
		default:
			d.Sex["unknown"]++
		}
	}
	return d, nil
}

func (m *memRepo) AvgDaysToPrediction(_ context.Context, doctorID int64) (*float64, error) {
	var total float64
	n := 0
	for _, p := range m.byDoctor(doctorID) {
		if p.PredictedAt != nil {
			total += p.PredictedAt.Sub(p.CreatedAt).Hours() / 24
			n++
		}
	}
	if n == 0 {
		return nil, nil
	}
	avg := total / float64(n)
	return &avg, nil
}

func (m *memRepo) CountAddedSince(_ context.Context, doctorID int64, since time.Time) (int, error) {
	n := 0
	for _, p := range m.byDoctor(doctorID) {
		if !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) DoctorRecent(_ context.Context, doctorID int64, limit int) ([]DoctorRecentPatient, error) {
	out := []DoctorRecentPatient{}
	for _, p := range m.byDoctor(doctorID) {
		if len(out) == limit {
			break
		}
		out = append(out, DoctorRecentPatient{PatientID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Age: p.Age, Sex: p.Sex, Status: p.Status, PredictionLabel: p.PredictionLabel, PredictionConfidence: p.PredictionConfidence, CreatedAt: p.CreatedAt})
	}
	return out, nil
}

func (m *memRepo) AssignedPatients(_ context.Context, doctorID int64) ([]AssignedPatient, error) {
	out := []AssignedPatient{}
	for _, p := range m.byDoctor(doctorID) {
		ap := AssignedPatient{Patient: p, Images: append([]patient.Image{}, m.images[p.ID]...)}
		if names, ok := m.nurses[*p.CreatedBy]; ok {
			ap.NurseFirstName, ap.NurseLastName = &names[0], &names[1]
		}
		out = append(out, ap)
	}
	return out, nil
}

type stubProfiles map[int64]*identity.Profile

func (s stubProfiles) GetProfile(_ context.Context, id int64) (*identity.Profile, error) {
	p, ok := s[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return p, nil
}

const (
	nurseID  int64 = 10
	doctorID int64 = 20
	loneUser int64 = 30
)

var now = time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

type fixture struct {
	svc  *Service
	repo *memRepo
}

func newFixture() *fixture {
	doc := doctorID
	nurse := nurseID
	predicted := func(label string, conf float64, created time.Time, days float64) func(*patient.Patient) {
		return func(p *patient.Patient) {
			p.PredictionLabel = ptr(label)
			p.PredictionConfidence = ptr(conf)
			p.PredictedAt = ptr(created.Add(time.Duration(days * 24 * float64(time.Hour))))
			p.Status = patient.StatusCompleted
		}
	}

	type seed struct {
		age     int
		sex     int
		created time.Time
		doctor  bool
		mods    []func(*patient.Patient)
	}
	seeds := []seed{
		{age: 25, sex: 0, created: now.Add(-1 * time.Hour), doctor: true},
		{age: 30, sex: 1, created: now.Add(-2 * time.Hour), doctor: true, mods: []func(*patient.Patient){predicted("lesion", 0.95, now.Add(-2*time.Hour), 1)}},
		{age: 50, sex: 1, created: now.Add(-30 * time.Hour), doctor: true, mods: []func(*patient.Patient){predicted("lesion", 0.85, now.Add(-30*time.Hour), 2)}},
		{age: 51, sex: 0, created: now.Add(-3 * 24 * time.Hour), doctor: true, mods: []func(*patient.Patient){predicted("lesion", 0.7, now.Add(-3*24*time.Hour), 0.5)}},
		{age: 70, sex: 1, created: now.Add(-10 * 24 * time.Hour), doctor: true, mods: []func(*patient.Patient){predicted("nonlesion", 0.9, now.Add(-10*24*time.Hour), 1)}},
		{age: 45, sex: 0, created: now.Add(-20 * 24 * time.Hour), doctor: true, mods: []func(*patient.Patient){func(p *patient.Patient) { p.Status = patient.StatusReady }}},
		{age: 60, sex: 1, created: now.Add(-25 * 24 * time.Hour), doctor: true, mods: []func(*patient.Patient){predicted("lesion", 0.99, now.Add(-25*24*time.Hour), 3), func(p *patient.Patient) { p.ReviewedBy = &doc }}},
		{age: 40, sex: 0, created: now.Add(-4 * time.Hour)},
	}

	repo := &memRepo{images: map[int64][]patient.Image{}, nurses: map[int64][2]string{nurseID: {"Thoko", "Kamanga"}}}
	for i, s := range seeds {
		p := patient.Patient{
			ID:         int64(i + 1),
			FirstName:  "Patient",
			LastName:   string(rune('A' + i)),
			Clinical:   patient.Clinical{Age: s.age, Sex: s.sex},
			Status:     patient.StatusPending,
			HospitalID: 1,
			CreatedBy:  &nurse,
			CreatedAt:  s.created,
		}
		if s.doctor {
			p.AssignedDoctorID = &doc
		}
		for _, m := range s.mods {
			m(&p)
		}
		repo.patients = append(repo.patients, p)
	}
	repo.images[2] = []patient.Image{{ID: 7, PatientID: 2, ImagePath: patient.ImagePath(2)}, {ID: 9, PatientID: 2, ImagePath: patient.ImagePath(2)}}

	hospital := int64(1)
	profiles := stubProfiles{
		nurseID:  {UserID: nurseID, FirstName: "Thoko", LastName: "Kamanga", Role: "nurse", HospitalID: &hospital, HospitalName: "Kamuzu Central Hospital"},
		doctorID: {UserID: doctorID, FirstName: "Grace", LastName: "Banda", Role: "doctor", HospitalID: &hospital, HospitalName: "Kamuzu Central Hospital"},
		loneUser: {UserID: loneUser, FirstName: "No", LastName: "Hospital", Role: "nurse", HospitalName: identity.NoHospital},
	}
	svc := NewService(repo, profiles, 0.8, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return &fixture{svc: svc, repo: repo}
}

func TestNurseOverview(t *testing.T) {
	f := newFixture()
	o, err := f.svc.NurseOverview(context.Background(), nurseID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.HospitalName != "Kamuzu Central Hospital" {
		t.Errorf("unexpected hospital name %q", o.HospitalName)
	}
	// Patients 1, 2 and 8 were created after midnight.
	want := NurseCounts{PatientsToday: 3, Reviewed: 1, Pending: 2, Completed: 5, ReadyForPrediction: 1}
	if o.NurseCounts != want {
		t.Errorf("expected %+v, got %+v", want, o.NurseCounts)
	}
	if len(o.RecentPatients) != recentLimit {
		t.Fatalf("expected %d recent patients, got %d", recentLimit, len(o.RecentPatients))
	}
	if o.RecentPatients[0].PatientID != 1 || o.RecentPatients[1].PatientID != 2 {
		t.Errorf("expected newest first, got %d, %d", o.RecentPatients[0].PatientID, o.RecentPatients[1].PatientID)
	}
	if id := o.RecentPatients[1].ImageID; id == nil || *id != 9 {
		t.Errorf("expected latest image 9, got %v", id)
	}
}

func TestNurseOverview_NoHospital(t *testing.T) {
	f := newFixture()
	for _, id := range []int64{loneUser, 999} {
		if _, err := f.svc.NurseOverview(context.Background(), id); !errors.Is(err, identity.ErrNoHospital) {
			t.Errorf("user %d: expected ErrNoHospital, got %v", id, err)
		}
	}
}

func TestDoctorDashboard(t *testing.T) {
	f := newFixture()
	d, err := f.svc.DoctorDashboard(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.DoctorName != "Grace Banda" || d.TotalAssignedPatients != 7 {
		t.Errorf("unexpected header: %q / %d", d.DoctorName, d.TotalAssignedPatients)
	}
	if d.StatusBreakdown[patient.StatusCompleted] != 5 || d.StatusBreakdown[patient.StatusPending] != 1 {
		t.Errorf("unexpected breakdown: %v", d.StatusBreakdown)
	}
	wantSummary := PredictionSummary{Lesion: 4, NonLesion: 1, NotPredicted: 2, HighRisk: 3}
	if d.PredictionSummary != wantSummary {
		t.Errorf("expected %+v, got %+v", wantSummary, d.PredictionSummary)
	}

	if len(d.Alerts) != alertLimit {
		t.Fatalf("expected %d alerts, got %d", alertLimit, len(d.Alerts))
	}
	for i, id := range []int64{7, 2, 3} {
		if d.Alerts[i].PatientID != id {
			t.Errorf("alert %d: expected patient %d, got %d", i, id, d.Alerts[i].PatientID)
		}
	}

	wantAges := map[string]int{"<30": 1, "30-50": 3, "50+": 3}
	for k, v := range wantAges {
		if d.Demographics.AgeGroups[k] != v {
			t.Errorf("age group %s: expected %d, got %d", k, v, d.Demographics.AgeGroups[k])
		}
	}
	if d.Demographics.Sex["male"] != 4 || d.Demographics.Sex["female"] != 3 {
		t.Errorf("unexpected sex split: %v", d.Demographics.Sex)
	}

	// (1 + 2 + 0.5 + 1 + 3) / 5 days
	if avg := d.WorkloadStats.AvgDaysToPrediction; avg == nil || *avg != 1.5 {
		t.Errorf("expected avg 1.5, got %v", avg)
	}
	if d.WorkloadStats.PatientsAddedLastWeek != 4 {
		t.Errorf("expected 4 added last week, got %d", d.WorkloadStats.PatientsAddedLastWeek)
	}
	if len(d.RecentPatients) != recentLimit || d.RecentPatients[0].PatientID != 1 {
		t.Errorf("unexpected recent patients: %+v", d.RecentPatients)
	}
}

func TestDoctorDashboard_NoPredictions(t *testing.T) {
	f := newFixture()
	f.repo.patients = nil
	d, err := f.svc.DoctorDashboard(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.WorkloadStats.AvgDaysToPrediction != nil {
		t.Errorf("expected nil average, got %v", *d.WorkloadStats.AvgDaysToPrediction)
	}
	if d.TotalAssignedPatients != 0 || len(d.Alerts) != 0 {
		t.Errorf("expected an empty dashboard, got %+v", d)
	}
}

func TestAssignedPatients(t *testing.T) {
	f := newFixture()
	a, err := f.svc.AssignedPatients(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.AssignedPatients) != 7 {
		t.Fatalf("expected 7 patients, got %d", len(a.AssignedPatients))
	}
	second := a.AssignedPatients[1]
	if second.ID != 2 || len(second.Images) != 2 {
		t.Errorf("expected patient 2 with 2 images, got %d with %d", second.ID, len(second.Images))
	}
	if second.NurseFirstName == nil || *second.NurseFirstName != "Thoko" {
		t.Errorf("expected nurse name, got %v", second.NurseFirstName)
	}
}

func TestHandler_DoctorDashboardJSON(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctor/dashboard", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: doctorID, Role: auth.RoleDoctor}))
	rec := httptest.NewRecorder()
	if err := h.DoctorDashboard(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"doctor_id", "doctor_name", "total_assigned_patients", "status_breakdown", "prediction_summary", "alerts", "demographics", "workload_stats", "recent_patients"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
}

func TestHandler_NurseOverviewFlattensCounts(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nurse/dashboard", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: nurseID, Role: auth.RoleNurse}))
	rec := httptest.NewRecorder()
	if err := h.NurseOverview(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["patients_today"] != float64(3) || body["ready_for_prediction"] != float64(1) {
		t.Errorf("expected flattened counts, got %v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/nurse/dashboard", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: loneUser, Role: auth.RoleNurse}))
	err := h.NurseOverview(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

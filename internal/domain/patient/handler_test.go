package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/validate"
)

func newTestHandler() (*Handler, *mockRepo, *echo.Echo) {
	svc, repo, _ := newTestService()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(svc), repo, e
}

func asNurse(req *http.Request, id int64) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: id, Email: "nurse@example.com", Role: auth.RoleNurse}))
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", code, err)
	}
	if he.Code != code {
		t.Fatalf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
}

func validFields() map[string]string {
	return map[string]string{
		"first_name":                         "Chikondi",
		"last_name":                          "Mwale",
		"age":                                "58",
		"sex":                                "1",
		"bmi":                                "27.4",
		"diabetes_mellitus":                  "true",
		"evolution_diabetes":                 "12",
		"dyslipidemia":                       "false",
		"smoker":                             "false",
		"high_blood_pressure":                "true",
		"kidney_failure":                     "false",
		"heart_failure":                      "false",
		"atrial_fibrillation":                "false",
		"left_ventricular_ejection_fraction": "55",
		"clinical_indication_for_angiogrphy": "1",
		"number_of_vessels_affected":         "2",
		"maximum_degree_of_the_coronary_artery_involvement": "70",
	}
}

func multipartRequest(t *testing.T, fields map[string]string, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("image_file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/nurse/patients", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return asNurse(req, nurseID)
}

func TestHandler_CreatePatient(t *testing.T) {
	h, repo, e := newTestHandler()
	fields := validFields()
	fields["assigned_doctor_id"] = "20"

	rec := httptest.NewRecorder()
	c := e.NewContext(multipartRequest(t, fields, "scan.PNG", []byte("png")), rec)
	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res CreateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.HasImage || res.AssignedDoctorID == nil || *res.AssignedDoctorID != 20 {
		t.Errorf("unexpected response: %+v", res)
	}
	p := repo.patients[res.PatientID]
	if !p.DiabetesMellitus || p.EvolutionDiabetes != 12 || p.MaxArteryInvolvement != 70 {
		t.Errorf("clinical fields not parsed: %+v", p.Clinical)
	}
}

func TestHandler_CreatePatient_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(map[string]string)
		filename string
		data     []byte
		wantMsg  string
	}{
		{"missing age", func(f map[string]string) { delete(f, "age") }, "", nil, "age is required"},
		{"non-numeric bmi", func(f map[string]string) { f["bmi"] = "heavy" }, "", nil, "bmi must be a number"},
		{"bad boolean", func(f map[string]string) { f["smoker"] = "sometimes" }, "", nil, "smoker must be a boolean"},
		{"sex out of range", func(f map[string]string) { f["sex"] = "2" }, "", nil, "sex must be one of"},
		{"bad status", func(f map[string]string) { f["status"] = "Archived" }, "", nil, "Invalid status"},
		{"bad doctor id", func(f map[string]string) { f["assigned_doctor_id"] = "abc" }, "", nil, "assigned_doctor_id"},
		{"bad extension", func(map[string]string) {}, "scan.gif", []byte("gif"), "Invalid file type"},
		{"image too large", func(map[string]string) {}, "scan.jpg", make([]byte, MaxImageSize+1), "too large"},
		{"doctor elsewhere", func(f map[string]string) { f["assigned_doctor_id"] = "30" }, "", nil, "Invalid doctor assignment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, repo, e := newTestHandler()
			fields := validFields()
			tt.mutate(fields)
			c := e.NewContext(multipartRequest(t, fields, tt.filename, tt.data), httptest.NewRecorder())
			err := h.CreatePatient(c)
			expectStatus(t, err, http.StatusBadRequest)
			if msg, _ := err.(*echo.HTTPError).Message.(string); !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("expected message containing %q, got %q", tt.wantMsg, msg)
			}
			if len(repo.patients) != 0 {
				t.Error("expected no patient stored")
			}
		})
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(multipartRequest(t, validFields(), "", nil), httptest.NewRecorder())
	if err := h.CreatePatient(c); err != nil {
		t.Fatal(err)
	}

	req := asNurse(httptest.NewRequest(http.MethodGet, "/api/v1/nurse/patients/1", nil), nurseID)
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["sex"] != "Male" {
		t.Errorf("expected sex rendered as Male, got %v", body["sex"])
	}
	if body["priority"] != PriorityLow {
		t.Errorf("expected Low priority, got %v", body["priority"])
	}

	c = e.NewContext(asNurse(httptest.NewRequest(http.MethodGet, "/", nil), nurseID), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("99")
	expectStatus(t, h.GetPatient(c), http.StatusNotFound)

	c = e.NewContext(asNurse(httptest.NewRequest(http.MethodGet, "/", nil), nurseID), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("x")
	expectStatus(t, h.GetPatient(c), http.StatusBadRequest)
}

func TestHandler_ListPatients(t *testing.T) {
	h, _, e := newTestHandler()
	for i := 0; i < 3; i++ {
		c := e.NewContext(multipartRequest(t, validFields(), "", nil), httptest.NewRecorder())
		if err := h.CreatePatient(c); err != nil {
			t.Fatal(err)
		}
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(asNurse(httptest.NewRequest(http.MethodGet, "/api/v1/nurse/patients?limit=2", nil), nurseID), rec)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data    []map[string]interface{} `json:"data"`
		Total   int                      `json:"total"`
		HasMore bool                     `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 2 || body.Total != 3 || !body.HasMore {
		t.Errorf("unexpected page: %+v", body)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET:/api/v1/nurse/doctors":         false,
		"POST:/api/v1/nurse/patients":       false,
		"GET:/api/v1/nurse/patients":        false,
		"GET:/api/v1/nurse/patients/recent": false,
		"GET:/api/v1/nurse/patients/:id":    false,
	}
	for _, r := range e.Routes() {
		key := r.Method + ":" + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for k, found := range want {
		if !found {
			t.Errorf("missing route %s", k)
		}
	}
}

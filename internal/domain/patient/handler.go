package patient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
	"github.com/memorysinkhonde/cad-Backend/pkg/pagination"
)

// MaxImageSize is the largest accepted patient image.
const MaxImageSize = 10 << 20

var allowedImageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	nurse := api.Group("/nurse", auth.RequireRole(auth.RoleNurse))
	nurse.GET("/doctors", h.ListDoctors)
	nurse.POST("/patients", h.CreatePatient)
	nurse.GET("/patients", h.ListPatients)
	nurse.GET("/patients/recent", h.RecentPatients)
	nurse.GET("/patients/:id", h.GetPatient)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	in, err := parseCreateForm(c)
	if err != nil {
		return apperr.HTTP(err, "Failed to create patient")
	}
	if err := c.Validate(&in.Clinical); err != nil {
		return apperr.HTTP(err, "Failed to create patient")
	}
	ctx := c.Request().Context()
	res, err := h.svc.CreatePatient(ctx, auth.UserIDFromContext(ctx), *in)
	if err != nil {
		return apperr.HTTP(err, "Failed to create patient")
	}
	return c.JSON(http.StatusCreated, res)
}

// form reads multipart fields, remembering the first parse failure.
type form struct {
	c   echo.Context
	err error
}

func (f *form) value(name string) (string, bool) {
	v := strings.TrimSpace(f.c.FormValue(name))
	if v == "" {
		if f.err == nil {
			f.err = apperr.BadRequest(fmt.Sprintf("%s is required", name))
		}
		return "", false
	}
	return v, true
}

func (f *form) int(name string) int {
	v, ok := f.value(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil && f.err == nil {
		f.err = apperr.BadRequest(fmt.Sprintf("%s must be an integer", name))
	}
	return n
}

func (f *form) float(name string) float64 {
	v, ok := f.value(name)
	if !ok {
		return 0
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil && f.err == nil {
		f.err = apperr.BadRequest(fmt.Sprintf("%s must be a number", name))
	}
	return n
}

func (f *form) bool(name string) bool {
	v, ok := f.value(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil && f.err == nil {
		f.err = apperr.BadRequest(fmt.Sprintf("%s must be a boolean", name))
	}
	return b
}

func parseCreateForm(c echo.Context) (*CreateInput, error) {
	f := &form{c: c}
	in := &CreateInput{
		FirstName: strings.TrimSpace(c.FormValue("first_name")),
		LastName:  strings.TrimSpace(c.FormValue("last_name")),
		Status:    strings.TrimSpace(c.FormValue("status")),
		Clinical: Clinical{
			Age:                   f.int("age"),
			Sex:                   f.int("sex"),
			BMI:                   f.float("bmi"),
			DiabetesMellitus:      f.bool("diabetes_mellitus"),
			EvolutionDiabetes:     f.float("evolution_diabetes"),
			Dyslipidemia:          f.bool("dyslipidemia"),
			Smoker:                f.bool("smoker"),
			HighBloodPressure:     f.bool("high_blood_pressure"),
			KidneyFailure:         f.bool("kidney_failure"),
			HeartFailure:          f.bool("heart_failure"),
			AtrialFibrillation:    f.bool("atrial_fibrillation"),
			EjectionFraction:      f.float("left_ventricular_ejection_fraction"),
			AngiographyIndication: f.int("clinical_indication_for_angiogrphy"),
			VesselsAffected:       f.int("number_of_vessels_affected"),
			MaxArteryInvolvement:  f.float("maximum_degree_of_the_coronary_artery_involvement"),
		},
	}
	if f.err != nil {
		return nil, f.err
	}
	if in.Status != "" && !ValidStatus(in.Status) {
		return nil, apperr.BadRequest(fmt.Sprintf("Invalid status. Must be one of: %s, %s, %s", StatusPending, StatusReady, StatusCompleted))
	}

	if raw := strings.TrimSpace(c.FormValue("assigned_doctor_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apperr.BadRequest("assigned_doctor_id must be an integer")
		}
		in.AssignedDoctorID = &id
	}

	img, err := readImage(c)
	if err != nil {
		return nil, err
	}
	in.Image = img
	return in, nil
}

func readImage(c echo.Context) (*UploadedImage, error) {
	fh, err := c.FormFile("image_file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, apperr.BadRequest("Invalid image upload")
	}
	if fh.Filename == "" {
		return nil, nil
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedImageExts[ext] {
		return nil, apperr.BadRequest("Invalid file type. Only JPG, JPEG and PNG files are allowed")
	}
	if fh.Size > MaxImageSize {
		return nil, apperr.BadRequest("Image file too large. Maximum size is 10MB")
	}
	src, err := fh.Open()
	if err != nil {
		return nil, apperr.BadRequest("Invalid image upload")
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, MaxImageSize+1))
	if err != nil {
		return nil, apperr.BadRequest("Invalid image upload")
	}
	if len(data) > MaxImageSize {
		return nil, apperr.BadRequest("Image file too large. Maximum size is 10MB")
	}
	return &UploadedImage{Filename: fh.Filename, Data: data}, nil
}

func (h *Handler) ListDoctors(c echo.Context) error {
	ctx := c.Request().Context()
	doctors, err := h.svc.ListDoctors(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err, "Failed to fetch doctors")
	}
	return c.JSON(http.StatusOK, doctors)
}

func (h *Handler) RecentPatients(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.RecentPatients(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err, "Failed to fetch recent patients")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListPatients(c echo.Context) error {
	ctx := c.Request().Context()
	resp, err := h.svc.ListPatients(ctx, auth.UserIDFromContext(ctx), pagination.FromContext(c))
	if err != nil {
		return apperr.HTTP(err, "Failed to fetch patients")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	ctx := c.Request().Context()
	d, err := h.svc.PatientDetail(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err, "Failed to fetch patient")
	}
	return c.JSON(http.StatusOK, d)
}

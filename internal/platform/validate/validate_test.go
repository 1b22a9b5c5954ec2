package validate

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
)

type signUp struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,strongpassword"`
	Role     string `json:"role" validate:"required,oneof=nurse doctor"`
	Name     string `json:"first_name" validate:"required,min=1,max=50"`
}

func TestStrongPassword(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Secret#123", true},
		{"Sh0rt!", false},
		{"alllowercase1!", false},
		{"NoDigitsHere!", false},
		{"NoSpecial123", false},
		{"Ünicode#9abc", true},
	}
	for _, tt := range tests {
		if got := StrongPassword(tt.in); got != tt.want {
			t.Errorf("StrongPassword(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	v := New()

	valid := signUp{Email: "a@b.co", Password: "Secret#123", Role: "nurse", Name: "Ada"}
	if err := v.Validate(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(s *signUp)
		wantMsg string
	}{
		{"bad email", func(s *signUp) { s.Email = "nope" }, "email must be a valid email address"},
		{"weak password", func(s *signUp) { s.Password = "password" }, "Password must be at least 8 characters"},
		{"bad role", func(s *signUp) { s.Role = "admin" }, "role must be one of: nurse doctor"},
		{"long name", func(s *signUp) { s.Name = strings.Repeat("x", 51) }, "first_name must be at most 50 characters"},
		{"missing name", func(s *signUp) { s.Name = "" }, "first_name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := v.Validate(s)
			ae, ok := apperr.As(err)
			if !ok {
				t.Fatalf("expected apperr.Error, got %v", err)
			}
			if ae.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", ae.Code)
			}
			if !strings.Contains(ae.Message, tt.wantMsg) {
				t.Errorf("expected message containing %q, got %q", tt.wantMsg, ae.Message)
			}
		})
	}
}

func TestBindAndValidate(t *testing.T) {
	e := echo.New()
	e.Validator = New()

	body := `{"email":"A@B.CO","password":"Secret#123","role":"doctor","first_name":"Grace"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var s signUp
	if err := BindAndValidate(c, &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Role != "doctor" {
		t.Errorf("expected role doctor, got %q", s.Role)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = e.NewContext(req, httptest.NewRecorder())
	err := BindAndValidate(c, &s)
	if ae, ok := apperr.As(err); !ok || ae.Message != "Invalid request body" {
		t.Errorf("expected invalid body error, got %v", err)
	}
}

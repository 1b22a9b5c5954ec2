package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", DefaultLimit, 0},
		{"custom values", "?limit=50&offset=10", 50, 10},
		{"max limit", "?limit=500", MaxLimit, 0},
		{"negative limit", "?limit=-5", DefaultLimit, 0},
		{"negative offset", "?offset=-3", DefaultLimit, 0},
		{"garbage", "?limit=abc&offset=xyz", DefaultLimit, 0},
		{"page", "?limit=10&page=3", 10, 20},
		{"page one", "?page=1", DefaultLimit, 0},
		{"offset wins over page", "?limit=10&offset=5&page=3", 10, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := paramsFor(tt.query)
			if p.Limit != tt.wantLimit {
				t.Errorf("expected limit %d, got %d", tt.wantLimit, p.Limit)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("expected offset %d, got %d", tt.wantOffset, p.Offset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	data := []string{"a", "b"}
	resp := NewResponse(data, 45, Params{Limit: 20, Offset: 20})

	if resp.Total != 45 || resp.Limit != 20 || resp.Offset != 20 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Page != 2 {
		t.Errorf("expected page 2, got %d", resp.Page)
	}
	if !resp.HasMore {
		t.Error("expected HasMore on page 2 of 3")
	}

	last := NewResponse(data, 45, Params{Limit: 20, Offset: 40})
	if last.HasMore {
		t.Error("expected no more results on the last page")
	}
}

func TestParams_Navigation(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}
	if !p.HasPrevious() {
		t.Error("expected HasPrevious")
	}
	if p.PreviousOffset() != 0 {
		t.Errorf("expected previous offset clamped to 0, got %d", p.PreviousOffset())
	}
	if p.NextOffset() != 15 {
		t.Errorf("expected next offset 15, got %d", p.NextOffset())
	}
	if !p.HasNext(16) || p.HasNext(15) {
		t.Error("unexpected HasNext result")
	}
	if (Params{}).Page() != 1 {
		t.Error("zero params should be page 1")
	}
}

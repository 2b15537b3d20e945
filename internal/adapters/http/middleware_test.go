package httpadapter

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/groundctx/ragengine/internal/core/domain"
	"github.com/groundctx/ragengine/internal/core/ports"
)

func TestAccessLogSkipsProbeTraffic(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	defer slog.SetDefault(prev)

	fake := &pipelineFake{
		contextResult: &ports.ContextResult{
			Context: domain.AssembledContext{Text: "evidence"},
		},
	}
	handler := newTestRouter(fake, Options{})

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if strings.Contains(buf.String(), "/healthz") {
		t.Fatalf("probe traffic must stay below info level: %s", buf.String())
	}

	buf.Reset()
	req := httptest.NewRequest(http.MethodPost, "/v1/context/query", strings.NewReader(`{"query":"q"}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !strings.Contains(buf.String(), "http_request") {
		t.Fatalf("expected pipeline request in access log: %s", buf.String())
	}
}

func TestIsProbePath(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/healthz", true},
		{"/metrics", true},
		{"/v1/context/query", false},
		{"/", false},
	}
	for _, tc := range cases {
		if got := isProbePath(tc.path); got != tc.want {
			t.Fatalf("isProbePath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

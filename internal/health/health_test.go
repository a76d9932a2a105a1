package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/health"
)

type readyResponse struct {
	Ready      bool                              `json:"ready"`
	Components map[string]health.ComponentStatus `json:"components"`
}

func doRequest(t *testing.T, h *health.Handler, path string) (int, []byte) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.Bytes()
}

func TestLiveness_IgnoresComponents(t *testing.T) {
	t.Parallel()
	h := health.NewHandler()
	h.AddComponent("synthesis", func(context.Context) error { return errors.New("down") })

	code, body := doRequest(t, h, "/healthz")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	var lv struct {
		Alive  bool   `json:"alive"`
		Uptime string `json:"uptime"`
	}
	if err := json.Unmarshal(body, &lv); err != nil {
		t.Fatal(err)
	}
	if !lv.Alive || lv.Uptime == "" {
		t.Errorf("liveness body = %s", body)
	}
}

func TestReadiness_AllComponentsUp(t *testing.T) {
	t.Parallel()
	h := health.NewHandler()
	h.AddComponent("discord", func(context.Context) error { return nil })
	h.AddComponent("synthesis", func(context.Context) error { return nil })

	code, body := doRequest(t, h, "/readyz")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	var res readyResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Ready {
		t.Error("ready = false with all components up")
	}
	if !res.Components["discord"].OK || !res.Components["synthesis"].OK {
		t.Errorf("components = %+v", res.Components)
	}
}

func TestReadiness_ComponentDown(t *testing.T) {
	t.Parallel()
	h := health.NewHandler()
	h.AddComponent("discord", func(context.Context) error { return nil })
	h.AddComponent("synthesis", func(context.Context) error {
		return errors.New("server unreachable")
	})

	code, body := doRequest(t, h, "/readyz")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	var res readyResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.Ready {
		t.Error("ready = true with a component down")
	}
	if !res.Components["discord"].OK {
		t.Errorf("healthy component reported down: %+v", res.Components["discord"])
	}
	down := res.Components["synthesis"]
	if down.OK || !strings.Contains(down.Error, "server unreachable") {
		t.Errorf("failing component = %+v", down)
	}
}

func TestReadiness_NoComponents(t *testing.T) {
	t.Parallel()
	code, body := doRequest(t, health.NewHandler(), "/readyz")
	if code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}
	var res readyResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Ready {
		t.Error("ready = false with nothing to probe")
	}
}

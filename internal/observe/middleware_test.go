package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// controlMux mirrors the application's control endpoints.
func controlMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("POST /hangup", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

func routeAttrs(t *testing.T, rm metricdata.ResourceMetrics) map[string]string {
	t.Helper()
	met := findMetric(rm, "nanobot.http.request.duration")
	if met == nil {
		t.Fatal("nanobot.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data = %T, want histogram", met.Data)
	}
	out := make(map[string]string)
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		out[route.AsString()] = status.AsString()
	}
	return out
}

func TestMiddleware_LabelsByRoute(t *testing.T) {
	m, reader := newTestMetrics(t)
	exp := useTracer(t)
	h := Middleware(m)(controlMux())

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/healthz", nil),
		httptest.NewRequest(http.MethodGet, "/readyz", nil),
		httptest.NewRequest(http.MethodPost, "/hangup", nil),
		httptest.NewRequest(http.MethodGet, "/no/such/path/12345", nil),
	} {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := routeAttrs(t, collect(t, reader))
	want := map[string]string{
		"GET /healthz": "200",
		"GET /readyz":  "503",
		"POST /hangup": "202",
		unmatchedRoute: "404",
	}
	for route, status := range want {
		if got[route] != status {
			t.Errorf("route %q status = %q, want %q (all: %v)", route, got[route], status, got)
		}
	}
	for route := range got {
		if strings.Contains(route, "12345") {
			t.Errorf("raw path leaked into route label %q", route)
		}
	}

	names := make(map[string]bool)
	for _, s := range exp.GetSpans() {
		names[s.Name] = true
	}
	if !names["HTTP POST /hangup"] {
		t.Errorf("span names = %v, want one named after the hangup route", names)
	}
}

func TestMiddleware_TraceHeader(t *testing.T) {
	m, _ := newTestMetrics(t)
	useTracer(t)
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	var seen string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /hangup", func(w http.ResponseWriter, r *http.Request) {
		seen = TraceID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})
	h := Middleware(m)(mux)

	req := httptest.NewRequest(http.MethodPost, "/hangup", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	const want = "4bf92f3577b34da6a3ce929d0e0e4736"
	if seen != want {
		t.Errorf("handler trace ID = %q, want the caller's %q", seen, want)
	}
	if got := rec.Header().Get(TraceHeader); got != want {
		t.Errorf("%s = %q, want %q", TraceHeader, got, want)
	}
}

func TestMiddleware_LogLevel(t *testing.T) {
	m, _ := newTestMetrics(t)
	useTracer(t)
	buf := captureLogs(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	h := Middleware(m)(mux)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2: %s", len(lines), buf)
	}
	if !strings.Contains(lines[0], "level=DEBUG") || !strings.Contains(lines[0], "trace_id=") {
		t.Errorf("healthz log = %s, want debug with trace_id", lines[0])
	}
	if !strings.Contains(lines[1], "level=WARN") {
		t.Errorf("failing readyz log = %s, want warn", lines[1])
	}
}

func TestInitProvider_InstallsGlobals(t *testing.T) {
	prevTP, prevMP, prevProp := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		otel.SetTextMapPropagator(prevProp)
	})

	tel, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	ctx, span := StartSpan(context.Background(), "op")
	if TraceID(ctx) == "" {
		t.Error("global tracer provider does not record spans")
	}
	span.End()
	if f := otel.GetTextMapPropagator().Fields(); len(f) == 0 || f[0] != "traceparent" {
		t.Errorf("propagator fields = %v, want traceparent", f)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

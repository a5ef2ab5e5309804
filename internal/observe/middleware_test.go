package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testRouter returns a chi router with the middleware installed and the
// exporters that observe it.
func testRouter(t *testing.T) (chi.Router, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := installTracer(t)

	r := chi.NewRouter()
	r.Use(Middleware(m))
	r.Get("/api/history", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("meeting_id") == "" {
			http.Error(w, "meeting_id is required", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("[]"))
	})
	r.Get("/api/fail", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r, reader, exp
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_SpanPerRoute(t *testing.T) {
	tests := []struct {
		target     string
		wantName   string
		wantRoute  string
		wantStatus int64
	}{
		{"/api/history?meeting_id=m1", "GET /api/history", "/api/history", 200},
		{"/api/history", "GET /api/history", "/api/history", 400},
		{"/api/fail", "GET /api/fail", "/api/fail", 500},
		{"/nowhere", "GET unmatched", "unmatched", 404},
	}
	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			r, _, exp := testRouter(t)
			serve(r, httptest.NewRequest(http.MethodGet, tc.target, nil))

			spans := exp.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("spans = %d, want 1", len(spans))
			}
			if spans[0].Name != tc.wantName {
				t.Errorf("name = %q, want %q", spans[0].Name, tc.wantName)
			}
			attrs := map[string]any{}
			for _, kv := range spans[0].Attributes {
				attrs[string(kv.Key)] = kv.Value.AsInterface()
			}
			if attrs["http.route"] != tc.wantRoute {
				t.Errorf("http.route = %v, want %q", attrs["http.route"], tc.wantRoute)
			}
			if attrs["http.response.status_code"] != tc.wantStatus {
				t.Errorf("status = %v, want %d", attrs["http.response.status_code"], tc.wantStatus)
			}
		})
	}
}

func TestMiddleware_DurationByRoute(t *testing.T) {
	r, reader, _ := testRouter(t)
	serve(r, httptest.NewRequest(http.MethodGet, "/api/history?meeting_id=a", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/api/history?meeting_id=b", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "lingualink.http.request.duration")
	if met == nil {
		t.Fatal("duration histogram not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data = %T, want histogram", met.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("series = %d, want both requests in one route series", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
	if v, _ := dp.Attributes.Value("route"); v.AsString() != "/api/history" {
		t.Errorf("route = %q", v.AsString())
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	r, _, exp := testRouter(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	req := httptest.NewRequest(http.MethodGet, "/api/history?meeting_id=m1", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := serve(r, req)

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if got := spans[0].SpanContext.TraceID().String(); got != traceID {
		t.Errorf("trace id = %s, want %s", got, traceID)
	}
	if tp := rec.Header().Get("traceparent"); len(tp) < 36 || tp[3:35] != traceID {
		t.Errorf("response traceparent = %q, want trace %s", tp, traceID)
	}
}

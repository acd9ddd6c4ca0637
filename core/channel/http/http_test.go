package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/masterdata/adapters/clock"
	"github.com/artpar/masterdata/adapters/idgen"
	"github.com/artpar/masterdata/adapters/memory"
	"github.com/artpar/masterdata/adapters/metrics"
	"github.com/artpar/masterdata/app"
	"github.com/artpar/masterdata/core/accessor"
	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/openapi"
	"github.com/artpar/masterdata/core/registry"
	"github.com/artpar/masterdata/core/storage"
	"github.com/artpar/masterdata/domain/group"
)

func newTestChannel(t *testing.T) (*Channel, *prometheus.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	cache := registry.New()
	builder := accessor.NewBuilder(storage.NewMemoryStore(), idgen.NewSequential("id"),
		clock.NewTicking(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond))

	schemas := app.NewSchemaService(memory.NewSchemaStore(),
		memory.NewGroupStore(group.Group{GroupID: "retail", GroupName: "Retail"}),
		builder, cache, nil, m, zerolog.Nop(), app.SchemaServiceConfig{})
	records := app.NewRecordService(cache, m, zerolog.Nop(), app.RecordServiceConfig{})

	c := New(schemas, records, zerolog.Nop(), "", Config{
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		OpenAPI:        openapi.NewService(openapi.ServiceConfig{Layouts: cache.Layouts, Logger: zerolog.Nop()}),
	})
	return c, reg
}

func do(t *testing.T, c *Channel, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func mustStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, want, w.Body.String())
	}
}

const (
	cityJSON  = `{"name":"city","fields":[{"name":"cityName","type":"string","required":true}]}`
	storeJSON = `{"name":"store","groupId":"retail","fields":[
		{"name":"name","type":"string","required":true},
		{"name":"cityRef","type":"master","masterType":"city","relationshipType":"one-to-one","required":true}]}`
)

func TestChannel_Name(t *testing.T) {
	c, _ := newTestChannel(t)
	if c.Name() != "http" {
		t.Errorf("Name() = %q, want http", c.Name())
	}
}

func TestChannel_StartStopWithoutAddr(t *testing.T) {
	c, _ := newTestChannel(t)
	if err := c.Start(t.Context()); err != nil {
		t.Errorf("Start() with no addr should not error: %v", err)
	}
	if err := c.Stop(t.Context()); err != nil {
		t.Errorf("Stop() with no server should not error: %v", err)
	}
}

func TestChannel_SchemaLifecycle(t *testing.T) {
	c, _ := newTestChannel(t)

	w := do(t, c, http.MethodPost, "/schemas", cityJSON)
	mustStatus(t, w, http.StatusCreated)

	w = do(t, c, http.MethodPost, "/schemas", storeJSON)
	mustStatus(t, w, http.StatusCreated)
	var store map[string]any
	decode(t, w, &store)
	fields := store["fields"].([]any)
	if fields[1].(map[string]any)["name"] != "cityId" {
		t.Errorf("master field = %v, want cityId", fields[1])
	}

	mustStatus(t, do(t, c, http.MethodPost, "/schemas", cityJSON), http.StatusConflict)
	mustStatus(t, do(t, c, http.MethodPost, "/schemas", `{"name":`), http.StatusBadRequest)
	mustStatus(t, do(t, c, http.MethodGet, "/schemas/STORE", ""), http.StatusOK)
	mustStatus(t, do(t, c, http.MethodGet, "/schemas/nope", ""), http.StatusNotFound)

	w = do(t, c, http.MethodGet, "/schemas", "")
	mustStatus(t, w, http.StatusOK)
	var all []map[string]any
	decode(t, w, &all)
	if len(all) != 2 {
		t.Errorf("listed %d schemas, want 2", len(all))
	}

	w = do(t, c, http.MethodGet, "/groups/retail/schemas", "")
	mustStatus(t, w, http.StatusOK)
	decode(t, w, &all)
	if len(all) != 1 || all[0]["name"] != "store" {
		t.Errorf("group schemas = %v", all)
	}
	mustStatus(t, do(t, c, http.MethodGet, "/groups/none/schemas", ""), http.StatusNotFound)

	w = do(t, c, http.MethodPut, "/schemas/city", `{"fields":[{"name":"cityName","type":"string"},{"name":"pin","type":"number"}]}`)
	mustStatus(t, w, http.StatusOK)

	w = do(t, c, http.MethodDelete, "/schemas/city", "")
	mustStatus(t, w, http.StatusConflict)
	var body errorBody
	decode(t, w, &body)
	if !strings.Contains(body.Error, "store") || body.Kind != errs.KindConflict {
		t.Errorf("conflict body = %+v", body)
	}

	mustStatus(t, do(t, c, http.MethodDelete, "/schemas/city?force=maybe", ""), http.StatusUnprocessableEntity)

	w = do(t, c, http.MethodDelete, "/schemas/city?force=true", "")
	mustStatus(t, w, http.StatusOK)
	var msg map[string]string
	decode(t, w, &msg)
	if msg["message"] == "" {
		t.Error("delete should return a message")
	}
}

func TestChannel_RecordLifecycle(t *testing.T) {
	c, _ := newTestChannel(t)
	mustStatus(t, do(t, c, http.MethodPost, "/schemas", cityJSON), http.StatusCreated)
	mustStatus(t, do(t, c, http.MethodPost, "/schemas", storeJSON), http.StatusCreated)

	w := do(t, c, http.MethodPost, "/records/city", `{"cityName":"Pune","cityId":"mine"}`)
	mustStatus(t, w, http.StatusCreated)
	var city map[string]any
	decode(t, w, &city)
	cityID, _ := city["cityId"].(string)
	if cityID == "" || cityID == "mine" {
		t.Fatalf("cityId = %v", city["cityId"])
	}
	if city["isActive"] != true || city["isDeleted"] != false {
		t.Errorf("system fields = %v", city)
	}

	w = do(t, c, http.MethodPost, "/records/city", `{}`)
	mustStatus(t, w, http.StatusUnprocessableEntity)
	var body errorBody
	decode(t, w, &body)
	if body.Field != "cityName" {
		t.Errorf("error field = %q, want cityName", body.Field)
	}

	w = do(t, c, http.MethodPost, "/records/store", `{"name":"S1","cityId":"ghost"}`)
	mustStatus(t, w, http.StatusUnprocessableEntity)
	decode(t, w, &body)
	if body.Kind != errs.KindReferentialIntegrity || body.Field != "cityId" {
		t.Errorf("reference error body = %+v", body)
	}

	w = do(t, c, http.MethodPost, "/records/store", `{"name":"S1","cityId":"`+cityID+`"}`)
	mustStatus(t, w, http.StatusCreated)
	var store map[string]any
	decode(t, w, &store)
	storeID := store["storeId"].(string)

	w = do(t, c, http.MethodPatch, "/records/store/"+storeID, `{"name":"S2"}`)
	mustStatus(t, w, http.StatusOK)
	decode(t, w, &store)
	if store["name"] != "S2" || store["cityId"] != cityID {
		t.Errorf("patched = %v", store)
	}

	mustStatus(t, do(t, c, http.MethodPut, "/records/store/missing", `{"name":"x"}`), http.StatusNotFound)
	mustStatus(t, do(t, c, http.MethodGet, "/records/store/"+storeID, ""), http.StatusOK)
	mustStatus(t, do(t, c, http.MethodGet, "/records/nope", ""), http.StatusNotFound)

	mustStatus(t, do(t, c, http.MethodDelete, "/records/store/"+storeID, ""), http.StatusOK)
	mustStatus(t, do(t, c, http.MethodDelete, "/records/store/"+storeID, ""), http.StatusNotFound)
}

func TestChannel_ListRecords(t *testing.T) {
	c, _ := newTestChannel(t)
	mustStatus(t, do(t, c, http.MethodPost, "/schemas",
		`{"name":"city","fields":[{"name":"cityName","type":"string"},{"name":"population","type":"number"}]}`), http.StatusCreated)

	for i := 1; i <= 25; i++ {
		body, _ := json.Marshal(map[string]any{"cityName": "c" + strings.Repeat("x", i), "population": i})
		mustStatus(t, do(t, c, http.MethodPost, "/records/city", string(body)), http.StatusCreated)
	}

	w := do(t, c, http.MethodGet, "/records/city?page=3&limit=10", "")
	mustStatus(t, w, http.StatusOK)
	var page struct {
		Data       []map[string]any `json:"data"`
		Total      int              `json:"total"`
		Page       int              `json:"page"`
		Limit      int              `json:"limit"`
		TotalPages int              `json:"totalPages"`
	}
	decode(t, w, &page)
	if len(page.Data) != 5 || page.Total != 25 || page.TotalPages != 3 || page.Page != 3 || page.Limit != 10 {
		t.Errorf("page = len %d total %d pages %d page %d limit %d", len(page.Data), page.Total, page.TotalPages, page.Page, page.Limit)
	}

	filters := url.QueryEscape(`{"population":{"$gt":20}}`)
	w = do(t, c, http.MethodGet, "/records/city?sort=population&order=asc&filters="+filters, "")
	mustStatus(t, w, http.StatusOK)
	decode(t, w, &page)
	if page.Total != 5 || page.Data[0]["population"] != 21.0 {
		t.Errorf("filtered total = %d first = %v", page.Total, page.Data)
	}

	tests := []struct {
		name  string
		query string
	}{
		{"bad page", "page=first"},
		{"negative limit", "limit=-1"},
		{"bad filters json", "filters=" + url.QueryEscape("{population")},
		{"unknown filter field", "filters=" + url.QueryEscape(`{"area":1}`)},
		{"bad order", "order=up"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mustStatus(t, do(t, c, http.MethodGet, "/records/city?"+tt.query, ""), http.StatusUnprocessableEntity)
		})
	}
}

func TestChannel_HealthAndMetrics(t *testing.T) {
	c, _ := newTestChannel(t)
	mustStatus(t, do(t, c, http.MethodGet, "/healthz", ""), http.StatusOK)
	mustStatus(t, do(t, c, http.MethodPost, "/schemas", cityJSON), http.StatusCreated)
	do(t, c, http.MethodGet, "/records/city/abc", "")

	w := do(t, c, http.MethodGet, "/metrics", "")
	mustStatus(t, w, http.StatusOK)
	out := w.Body.String()
	for _, want := range []string{
		`masterdata_http_requests_total{method="POST",route="/schemas",status="2xx"} 1`,
		`masterdata_http_requests_total{method="GET",route="/records/{schema}/{id}",status="4xx"} 1`,
		`masterdata_schema_operations_total{op="create",result="ok"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.NotFound("x"), http.StatusNotFound},
		{errs.Validation("x"), http.StatusUnprocessableEntity},
		{errs.MissingReference("cityId", "city", "x"), http.StatusUnprocessableEntity},
		{errs.Conflict("x"), http.StatusConflict},
		{errs.Internal(nil, "x"), http.StatusInternalServerError},
		{bytes.ErrTooLarge, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestChannel_OpenAPI(t *testing.T) {
	c, _ := newTestChannel(t)
	mustStatus(t, do(t, c, http.MethodPost, "/schemas", cityJSON), http.StatusCreated)

	w := do(t, c, http.MethodGet, "/openapi.json", "")
	mustStatus(t, w, http.StatusOK)

	var doc struct {
		Servers []struct {
			URL string `json:"url"`
		} `json:"servers"`
		Paths map[string]any `json:"paths"`
	}
	decode(t, w, &doc)
	if _, ok := doc.Paths["/records/city/{id}"]; !ok {
		t.Errorf("paths = %v", doc.Paths)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://example.com" {
		t.Errorf("servers = %+v", doc.Servers)
	}
}

func TestChannel_SwaggerUI(t *testing.T) {
	c, _ := newTestChannel(t)

	w := do(t, c, http.MethodGet, "/swagger/index.html", "")
	mustStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "swagger-ui") {
		t.Errorf("swagger page = %s", w.Body.String())
	}
}

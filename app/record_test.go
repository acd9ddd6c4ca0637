package app_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/artpar/masterdata/adapters/idgen"
	"github.com/artpar/masterdata/adapters/metrics"
	"github.com/artpar/masterdata/app"
	"github.com/artpar/masterdata/core/accessor"
	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/schema"
)

func names(recs []accessor.Record, field string) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = fmt.Sprint(r[field])
	}
	return out
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRecordService_CityAndStore(t *testing.T) {
	h := newHarness(t, idgen.Short{})
	ctx := context.Background()

	h.mustCreate(t, cityDef())
	pune, err := h.records.Create(ctx, "city", map[string]any{"cityName": "Pune"})
	if err != nil {
		t.Fatalf("Create city failed: %v", err)
	}

	cityID := pune.ID("cityId")
	if len(cityID) != idgen.ShortLength {
		t.Errorf("cityId = %q, want %d characters", cityID, idgen.ShortLength)
	}
	if pune["cityName"] != "Pune" || pune["isActive"] != true || pune["isDeleted"] != false {
		t.Errorf("record = %v", pune)
	}

	h.mustCreate(t, storeDef())

	_, err = h.records.Create(ctx, "store", map[string]any{"name": "S1", "cityId": "0000000000000000"})
	if !errs.IsValidation(err) {
		t.Fatalf("dangling reference: err = %v, want validation", err)
	}

	s1, err := h.records.Create(ctx, "store", map[string]any{"name": "S1", "cityId": cityID})
	if err != nil {
		t.Fatalf("Create store failed: %v", err)
	}
	if s1["cityId"] != cityID {
		t.Errorf("store cityId = %v, want %s", s1["cityId"], cityID)
	}
}

func TestRecordService_CreateValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.mustCreate(t, schema.Schema{Name: "product", Fields: []schema.Field{
		{Name: "title", Type: schema.FieldTypeString, Required: true},
		{Name: "price", Type: schema.FieldTypeNumber},
		{Name: "launched", Type: schema.FieldTypeDate},
		{Name: "onSale", Type: schema.FieldTypeBoolean, DefaultValue: "false"},
	}})

	_, err := h.records.Create(ctx, "product", map[string]any{"price": "12"})
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("missing required: err = %v, want validation", err)
	}
	if fe := errs.FieldsOf(err); len(fe) != 1 || fe[0].Field != "title" {
		t.Errorf("error should name title: %+v", fe)
	}

	_, err = h.records.Create(ctx, "product", map[string]any{"title": "Pen", "price": "cheap"})
	if fe := errs.FieldsOf(err); len(fe) != 1 || fe[0].Field != "price" {
		t.Errorf("bad number should name price: %v", err)
	}

	rec, err := h.records.Create(ctx, "product", map[string]any{
		"productId": "mine",
		"title":     "Pen",
		"price":     "12.5",
		"launched":  "2024-02-01",
		"extra":     "dropped",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.ID("productId") == "mine" {
		t.Error("caller-supplied identifier must be replaced")
	}
	if rec["price"] != 12.5 {
		t.Errorf("price = %v (%T)", rec["price"], rec["price"])
	}
	if rec["onSale"] != false {
		t.Errorf("onSale default = %v", rec["onSale"])
	}
	if _, ok := rec["extra"]; ok {
		t.Error("unknown fields must be dropped")
	}

	if _, err := h.records.Create(ctx, "nope", map[string]any{}); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("unknown schema: err = %v, want not found", err)
	}
}

func TestRecordService_CollectionReferences(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.mustCreate(t, schema.Schema{Name: "tag", Fields: []schema.Field{{Name: "label", Type: schema.FieldTypeString}}})
	h.mustCreate(t, schema.Schema{Name: "article", Fields: []schema.Field{
		{Name: "tags", Type: schema.FieldTypeMaster, MasterType: "tag", RelationshipType: schema.ManyToMany},
	}})

	var tagIDs []any
	for _, l := range []string{"go", "sql", "yaml"} {
		r, err := h.records.Create(ctx, "tag", map[string]any{"label": l})
		if err != nil {
			t.Fatal(err)
		}
		tagIDs = append(tagIDs, r.ID("tagId"))
	}

	if _, err := h.records.Create(ctx, "article", map[string]any{"tagId": tagIDs}); err != nil {
		t.Fatalf("all ids exist: %v", err)
	}

	_, err := h.records.Create(ctx, "article", map[string]any{"tagId": []any{tagIDs[0], "ghost", tagIDs[2]}})
	if !errs.IsValidation(err) {
		t.Fatalf("one missing id: err = %v, want validation", err)
	}
	if fe := errs.FieldsOf(err); len(fe) != 1 || fe[0].Value != "ghost" {
		t.Errorf("error should name ghost: %+v", fe)
	}
}

func TestRecordService_Pagination(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.mustCreate(t, cityDef())

	for i := 1; i <= 25; i++ {
		if _, err := h.records.Create(ctx, "city", map[string]any{"cityName": fmt.Sprintf("c%02d", i)}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := h.records.List(ctx, "city", app.ListParams{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Data) != 5 || page.Total != 25 || page.TotalPages != 3 {
		t.Errorf("page = {len %d total %d pages %d}, want {5 25 3}", len(page.Data), page.Total, page.TotalPages)
	}
	// Newest first by default, so the last page holds the oldest records.
	if got := names(page.Data, "cityName"); got[4] != "c01" {
		t.Errorf("last record = %s, want c01", got[4])
	}

	page, _ = h.records.List(ctx, "city", app.ListParams{})
	if page.Page != 1 || page.Limit != 10 || len(page.Data) != 10 {
		t.Errorf("defaults: page=%d limit=%d len=%d", page.Page, page.Limit, len(page.Data))
	}

	page, _ = h.records.List(ctx, "city", app.ListParams{Limit: 1000})
	if page.Limit != 100 || len(page.Data) != 25 || page.TotalPages != 1 {
		t.Errorf("capped: limit=%d len=%d pages=%d", page.Limit, len(page.Data), page.TotalPages)
	}

	page, _ = h.records.List(ctx, "city", app.ListParams{Page: 9})
	if len(page.Data) != 0 || page.Data == nil {
		t.Errorf("page past the end should be empty, got %v", page.Data)
	}
}

func TestRecordService_ListQuery(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.mustCreate(t, schema.Schema{Name: "city", Fields: []schema.Field{
		{Name: "cityName", Type: schema.FieldTypeString},
		{Name: "state", Type: schema.FieldTypeString},
		{Name: "population", Type: schema.FieldTypeNumber},
		{Name: "capital", Type: schema.FieldTypeBoolean},
	}})

	for _, c := range []map[string]any{
		{"cityName": "Pune", "state": "MH", "population": 3.1, "capital": false},
		{"cityName": "Mumbai", "state": "MH", "population": 12.4, "capital": true},
		{"cityName": "Bengaluru", "state": "KA", "population": 8.4, "capital": true},
		{"cityName": "Mysuru", "state": "KA", "population": 0.9, "capital": false},
	} {
		if _, err := h.records.Create(ctx, "city", c); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		params app.ListParams
		want   []string
	}{
		{"sort asc", app.ListParams{Sort: "population", Order: "asc"}, []string{"Mysuru", "Pune", "Bengaluru", "Mumbai"}},
		{"unknown sort falls back", app.ListParams{Sort: "area", Order: "ASC"}, []string{"Pune", "Mumbai", "Bengaluru", "Mysuru"}},
		{"search any string field", app.ListParams{Search: "ka", Sort: "cityName", Order: "asc"}, []string{"Bengaluru", "Mysuru"}},
		{"search case-insensitive", app.ListParams{Search: "MUM"}, []string{"Mumbai"}},
		{"scalar filter coerced", app.ListParams{Filters: map[string]any{"capital": "true"}, Sort: "cityName", Order: "asc"}, []string{"Bengaluru", "Mumbai"}},
		{"operator filter", app.ListParams{Filters: map[string]any{"population": map[string]any{"$gte": "3", "$lt": 10}}, Sort: "population", Order: "asc"}, []string{"Pune", "Bengaluru"}},
		{"in filter", app.ListParams{Filters: map[string]any{"cityName": map[string]any{"$in": []any{"Pune", "Mysuru"}}}, Order: "asc"}, []string{"Pune", "Mysuru"}},
		{"search and filter", app.ListParams{Search: "u", Filters: map[string]any{"state": "KA"}, Order: "asc"}, []string{"Bengaluru", "Mysuru"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := h.records.List(ctx, "city", tt.params)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if got := names(page.Data, "cityName"); !sameNames(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if page.Total != int64(len(tt.want)) {
				t.Errorf("total = %d, want %d", page.Total, len(tt.want))
			}
		})
	}

	bad := []app.ListParams{
		{Filters: map[string]any{"area": 1}},
		{Filters: map[string]any{"population": map[string]any{"$regex": "1"}}},
		{Filters: map[string]any{"population": "many"}},
		{Filters: map[string]any{"state": map[string]any{"$in": "KA"}}},
		{Order: "sideways"},
	}
	for i, p := range bad {
		if _, err := h.records.List(ctx, "city", p); !errs.Is(err, errs.KindValidation) {
			t.Errorf("bad[%d]: err = %v, want validation", i, err)
		}
	}
}

func TestRecordService_Update(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.mustCreate(t, cityDef())
	h.mustCreate(t, storeDef())

	pune, _ := h.records.Create(ctx, "city", map[string]any{"cityName": "Pune"})
	mumbai, _ := h.records.Create(ctx, "city", map[string]any{"cityName": "Mumbai"})
	s1, err := h.records.Create(ctx, "store", map[string]any{"name": "S1", "cityId": pune.ID("cityId")})
	if err != nil {
		t.Fatal(err)
	}
	id := s1.ID("storeId")

	// Partial: required fields may be omitted.
	got, err := h.records.Update(ctx, "store", id, map[string]any{"cityId": mumbai.ID("cityId"), "storeId": "other"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got["cityId"] != mumbai.ID("cityId") || got["name"] != "S1" || got.ID("storeId") != id {
		t.Errorf("updated = %v", got)
	}

	if _, err := h.records.Update(ctx, "store", id, map[string]any{"cityId": "ghost"}); !errs.IsValidation(err) {
		t.Errorf("dangling reference on update: err = %v, want validation", err)
	}
	if _, err := h.records.Update(ctx, "store", "missing", map[string]any{"name": "x"}); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("missing record: err = %v, want not found", err)
	}

	rec, _ := h.records.Get(ctx, "store", id)
	if rec["cityId"] != mumbai.ID("cityId") {
		t.Error("failed updates must not write")
	}
}

func TestRecordService_UpdateSchemaTakesEffect(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.mustCreate(t, cityDef())

	_, err := h.svc.Update(ctx, "city", schema.Schema{Fields: []schema.Field{
		{Name: "code", Type: schema.FieldTypeNumber, Required: true},
	}})
	if err != nil {
		t.Fatal(err)
	}

	// cityName is no longer required, code now is.
	if _, err := h.records.Create(ctx, "city", map[string]any{"cityName": "Pune"}); !errs.Is(err, errs.KindValidation) {
		t.Errorf("old shape accepted: err = %v", err)
	}
	rec, err := h.records.Create(ctx, "city", map[string]any{"code": "411"})
	if err != nil {
		t.Fatalf("new shape rejected: %v", err)
	}
	if rec["code"] != 411.0 {
		t.Errorf("code = %v", rec["code"])
	}
}

func TestRecordService_GetAndDelete(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.mustCreate(t, cityDef())

	rec, _ := h.records.Create(ctx, "city", map[string]any{"cityName": "Pune"})
	id := rec.ID("cityId")

	got, err := h.records.Get(ctx, "CITY", id)
	if err != nil || got["cityName"] != "Pune" {
		t.Fatalf("Get = %v, %v", got, err)
	}

	if err := h.records.Delete(ctx, "city", id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := h.records.Delete(ctx, "city", id); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("second Delete: err = %v, want not found", err)
	}
	if _, err := h.records.Get(ctx, "city", id); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("Get after delete: err = %v, want not found", err)
	}
}

func TestRecordService_MetricsLabelResolvedSchemas(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.mustCreate(t, cityDef())

	for i := 0; i < 50; i++ {
		if _, err := h.records.Get(ctx, fmt.Sprintf("ghost%d", i), "x"); !errs.Is(err, errs.KindNotFound) {
			t.Fatalf("Get on unknown schema: err = %v", err)
		}
	}
	for _, name := range []string{"city", "City", "CITY"} {
		if _, err := h.records.List(ctx, name, app.ListParams{}); err != nil {
			t.Fatalf("List(%s) failed: %v", name, err)
		}
	}

	families, err := h.reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	labels := map[string]bool{}
	for _, f := range families {
		if f.GetName() != "masterdata_record_operations_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "schema" {
					labels[l.GetValue()] = true
				}
			}
		}
	}
	if len(labels) != 2 || !labels[metrics.UnknownSchema] || !labels["city"] {
		t.Errorf("schema labels = %v, want only %q and \"city\"", labels, metrics.UnknownSchema)
	}
}

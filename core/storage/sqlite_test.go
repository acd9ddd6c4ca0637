package storage

import (
	"context"
	"errors"
	"testing"
)

// stores returns every Store implementation under test.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func seed(t *testing.T, s Store, collection string, docs ...Document) {
	t.Helper()
	for _, d := range docs {
		if err := s.Insert(context.Background(), collection, d); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
}

func cities() []Document {
	return []Document{
		{"cityId": "c1", "cityName": "Pune", "population": 3.1, "capital": false, "createdAt": "2024-01-01T00:00:00.000Z"},
		{"cityId": "c2", "cityName": "Mumbai", "population": 12.4, "capital": true, "createdAt": "2024-01-02T00:00:00.000Z"},
		{"cityId": "c3", "cityName": "Nagpur", "population": 2.4, "capital": false, "createdAt": "2024-01-03T00:00:00.000Z"},
		{"cityId": "c4", "cityName": "Punalur", "population": 0.05, "createdAt": "2024-01-04T00:00:00.000Z"},
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d["cityId"].(string)
	}
	return out
}

func equalStrings(a, b []string) bool {
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

func TestStore_InsertAndFindOne(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s, "City", cities()...)

			doc, err := s.FindOne(ctx, "City", Where(Eq("cityId", "c2")))
			if err != nil {
				t.Fatalf("FindOne failed: %v", err)
			}
			if doc["cityName"] != "Mumbai" {
				t.Errorf("cityName = %v, want Mumbai", doc["cityName"])
			}
			if doc["population"] != 12.4 {
				t.Errorf("population = %v (%T)", doc["population"], doc["population"])
			}
			if doc["capital"] != true {
				t.Errorf("capital = %v", doc["capital"])
			}

			_, err = s.FindOne(ctx, "City", Where(Eq("cityId", "nope")))
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("FindOne missing: err = %v, want ErrNotFound", err)
			}

			// Collections are isolated and case-preserving.
			if _, err := s.FindOne(ctx, "city", Where(Eq("cityId", "c2"))); !errors.Is(err, ErrNotFound) {
				t.Errorf("collection names should be case-sensitive, err = %v", err)
			}
		})
	}
}

func TestStore_Operators(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"eq", Where(Eq("cityName", "Pune")), []string{"c1"}},
		{"eq bool", Where(Eq("capital", true)), []string{"c2"}},
		{"ne includes missing", Where(Condition{"capital", OpNe, true}), []string{"c1", "c3", "c4"}},
		{"gt", Where(Condition{"population", OpGt, 3.0}), []string{"c1", "c2"}},
		{"gte", Where(Condition{"population", OpGte, 2.4}), []string{"c1", "c2", "c3"}},
		{"lt", Where(Condition{"population", OpLt, 2.4}), []string{"c4"}},
		{"lte", Where(Condition{"population", OpLte, 2.4}), []string{"c3", "c4"}},
		{"string range", Where(Condition{"createdAt", OpGte, "2024-01-03T00:00:00.000Z"}), []string{"c3", "c4"}},
		{"in", Where(Condition{"cityId", OpIn, []any{"c1", "c4", "zz"}}), []string{"c1", "c4"}},
		{"in empty", Where(Condition{"cityId", OpIn, []any{}}), nil},
		{"nin", Where(Condition{"cityId", OpNin, []any{"c1", "c4"}}), []string{"c2", "c3"}},
		{"contains", Where(Condition{"cityName", OpContains, "PUN"}), []string{"c1", "c4"}},
		{"contains literal percent", Where(Condition{"cityName", OpContains, "%"}), nil},
		{"and", Where(Condition{"cityName", OpContains, "pu"}, Condition{"population", OpGt, 1.0}), []string{"c1", "c3"}},
		{"any", Filter{Any: []Condition{Eq("cityName", "Nagpur"), Eq("cityId", "c1")}}, []string{"c1", "c3"}},
		{"all and any", Filter{
			All: []Condition{{"population", OpLt, 5.0}},
			Any: []Condition{{"cityName", OpContains, "nag"}, {"cityName", OpContains, "lur"}},
		}, []string{"c3", "c4"}},
	}

	for name, s := range stores(t) {
		seed(t, s, "City", cities()...)
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				docs, err := s.Find(context.Background(), "City", Query{Filter: tt.filter})
				if err != nil {
					t.Fatalf("Find failed: %v", err)
				}
				if got := ids(docs); !equalStrings(got, tt.want) {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			})
		}
	}
}

func TestStore_SortAndPaginate(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s, "City", cities()...)

			docs, err := s.Find(ctx, "City", Query{Sort: "population", Desc: true})
			if err != nil {
				t.Fatalf("Find failed: %v", err)
			}
			if got, want := ids(docs), []string{"c2", "c1", "c3", "c4"}; !equalStrings(got, want) {
				t.Errorf("sorted = %v, want %v", got, want)
			}

			docs, _ = s.Find(ctx, "City", Query{Sort: "createdAt", Skip: 1, Limit: 2})
			if got, want := ids(docs), []string{"c2", "c3"}; !equalStrings(got, want) {
				t.Errorf("page = %v, want %v", got, want)
			}

			docs, _ = s.Find(ctx, "City", Query{Skip: 10})
			if len(docs) != 0 {
				t.Errorf("skip past end returned %d docs", len(docs))
			}

			n, err := s.Count(ctx, "City", Where(Condition{"cityName", OpContains, "pu"}))
			if err != nil || n != 3 {
				t.Errorf("Count = %d, %v; want 3", n, err)
			}
		})
	}
}

func TestStore_UpdateMerges(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s, "City", cities()...)

			n, err := s.Update(ctx, "City", Where(Eq("cityId", "c1")), Document{"population": 3.2, "tags": []any{"a"}})
			if err != nil || n != 1 {
				t.Fatalf("Update = %d, %v", n, err)
			}

			doc, _ := s.FindOne(ctx, "City", Where(Eq("cityId", "c1")))
			if doc["population"] != 3.2 {
				t.Errorf("population = %v", doc["population"])
			}
			if doc["cityName"] != "Pune" {
				t.Error("Update must keep fields not in the patch")
			}

			// Composite values compare by content.
			doc, err = s.FindOne(ctx, "City", Where(Eq("tags", []any{"a"})))
			if err != nil || doc["cityId"] != "c1" {
				t.Errorf("match on array = %v, %v", doc, err)
			}

			n, _ = s.Update(ctx, "City", Where(Eq("cityId", "none")), Document{"x": 1.0})
			if n != 0 {
				t.Errorf("Update of missing doc changed %d", n)
			}
		})
	}
}

func TestStore_DeleteAndDrop(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s, "City", cities()...)
			seed(t, s, "Store", Document{"storeId": "s1"})

			n, err := s.Delete(ctx, "City", Where(Eq("cityId", "c1")))
			if err != nil || n != 1 {
				t.Fatalf("Delete = %d, %v", n, err)
			}
			if n, _ := s.Delete(ctx, "City", Where(Eq("cityId", "c1"))); n != 0 {
				t.Errorf("second Delete removed %d", n)
			}

			n, err = s.Drop(ctx, "City")
			if err != nil || n != 3 {
				t.Fatalf("Drop = %d, %v; want 3", n, err)
			}
			if c, _ := s.Count(ctx, "City", Filter{}); c != 0 {
				t.Errorf("Count after drop = %d", c)
			}
			if c, _ := s.Count(ctx, "Store", Filter{}); c != 1 {
				t.Errorf("Drop touched another collection, Store count = %d", c)
			}
		})
	}
}

func TestStore_InvalidOperator(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s, "City", cities()...)
			_, err := s.Find(context.Background(), "City", Query{Filter: Where(Condition{"cityId", OpIn, "c1"})})
			if err == nil {
				t.Error("in with a scalar should fail")
			}
		})
	}
}

package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/artpar/masterdata/app"
	"github.com/artpar/masterdata/core/errs"
)

// createRecord handles POST /records/{schema}
func (c *Channel) createRecord(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		badRequest(w, err)
		return
	}

	rec, err := c.records.Create(r.Context(), chi.URLParam(r, "schema"), payload)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// listRecords handles GET /records/{schema}
func (c *Channel) listRecords(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r.URL.Query())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	page, err := c.records.List(r.Context(), chi.URLParam(r, "schema"), params)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// getRecord handles GET /records/{schema}/{id}
func (c *Channel) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := c.records.Get(r.Context(), chi.URLParam(r, "schema"), chi.URLParam(r, "id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// updateRecord handles PUT and PATCH /records/{schema}/{id}
func (c *Channel) updateRecord(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil {
		badRequest(w, err)
		return
	}

	rec, err := c.records.Update(r.Context(), chi.URLParam(r, "schema"), chi.URLParam(r, "id"), payload)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// deleteRecord handles DELETE /records/{schema}/{id}
func (c *Channel) deleteRecord(w http.ResponseWriter, r *http.Request) {
	schemaName, id := chi.URLParam(r, "schema"), chi.URLParam(r, "id")

	if err := c.records.Delete(r.Context(), schemaName, id); err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%s %s deleted", schemaName, id),
	})
}

// parseListParams reads page, limit, sort, order, search and filters.
// filters is a JSON object, e.g. filters={"state":"KA","population":{"$gte":3}}.
func parseListParams(q url.Values) (app.ListParams, error) {
	p := app.ListParams{
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
		Search: q.Get("search"),
	}

	var err error
	if p.Page, err = intParam(q, "page"); err != nil {
		return app.ListParams{}, err
	}
	if p.Limit, err = intParam(q, "limit"); err != nil {
		return app.ListParams{}, err
	}

	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Filters); err != nil {
			return app.ListParams{}, errs.InvalidField("filters", "json", raw, "filters must be a JSON object")
		}
	}
	return p, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errs.InvalidField(name, "type", v, name+" must be a non-negative integer")
	}
	return n, nil
}

package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/schema"
)

// createSchema handles POST /schemas
func (c *Channel) createSchema(w http.ResponseWriter, r *http.Request) {
	var def schema.Schema
	if err := decodeBody(r, &def); err != nil {
		badRequest(w, err)
		return
	}

	out, err := c.schemas.Create(r.Context(), def)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// listSchemas handles GET /schemas
func (c *Channel) listSchemas(w http.ResponseWriter, r *http.Request) {
	defs, err := c.schemas.List(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if defs == nil {
		defs = []schema.Schema{}
	}
	writeJSON(w, http.StatusOK, defs)
}

// getSchema handles GET /schemas/{name}
func (c *Channel) getSchema(w http.ResponseWriter, r *http.Request) {
	def, err := c.schemas.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// updateSchema handles PUT /schemas/{name}
func (c *Channel) updateSchema(w http.ResponseWriter, r *http.Request) {
	var def schema.Schema
	if err := decodeBody(r, &def); err != nil {
		badRequest(w, err)
		return
	}

	out, err := c.schemas.Update(r.Context(), chi.URLParam(r, "name"), def)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// deleteSchema handles DELETE /schemas/{name}?force=true
func (c *Channel) deleteSchema(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.writeError(w, r, errs.InvalidField("force", "type", v, "force must be a boolean"))
			return
		}
		force = b
	}

	if err := c.schemas.Delete(r.Context(), name, force); err != nil {
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("schema %s deleted", name),
	})
}

// listSchemasByGroup handles GET /groups/{groupId}/schemas
func (c *Channel) listSchemasByGroup(w http.ResponseWriter, r *http.Request) {
	defs, err := c.schemas.ListByGroup(r.Context(), chi.URLParam(r, "groupId"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if defs == nil {
		defs = []schema.Schema{}
	}
	writeJSON(w, http.StatusOK, defs)
}

// Package reference checks that master field values point at records that
// exist in their target schemas.
package reference

import (
	"context"
	"fmt"

	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/registry"
	"github.com/artpar/masterdata/core/schema"
)

// Resolver looks up cached schemas and their accessors.
type Resolver interface {
	Get(name string) (registry.Entry, error)
}

// Validator verifies master field references against the accessor cache.
type Validator struct {
	cache Resolver
}

// New creates a Validator reading from cache.
func New(cache Resolver) *Validator {
	return &Validator{cache: cache}
}

// Validate checks every master field of schemaName present in values.
// Single-reference fields must hold one id; collection fields must hold a
// list of ids, each checked independently. The first missing id, in input
// order, fails the call. Absent fields are skipped in both modes, so with
// partial set the fields omitted from an update are never re-validated.
func (v *Validator) Validate(ctx context.Context, schemaName string, values map[string]any, partial bool) error {
	entry, err := v.cache.Get(schemaName)
	if err != nil {
		return err
	}

	for _, f := range entry.Schema.MasterFields() {
		raw, present := values[f.Name]
		if !present || raw == nil {
			// Required-ness is enforced by coercion.
			continue
		}

		ids, err := referenceIDs(f, raw)
		if err != nil {
			return err
		}

		target, err := v.cache.Get(f.MasterType)
		if err != nil {
			return errs.NotFound("schema %q referenced by %s.%s not found", f.MasterType, entry.Schema.Name, f.Name)
		}

		missing, err := target.Accessor.MissingIDs(ctx, ids)
		if err != nil {
			return errs.Internal(err, "check references of %s.%s", entry.Schema.Name, f.Name)
		}
		if len(missing) > 0 {
			return errs.MissingReference(f.Name, target.Schema.Name, missing[0])
		}
	}
	return nil
}

// referenceIDs extracts the ids held by a master field value, enforcing the
// shape implied by the relationship cardinality.
func referenceIDs(f schema.Field, raw any) ([]string, error) {
	if !f.RelationshipType.IsCollection() {
		id, ok := raw.(string)
		if !ok || id == "" {
			return nil, errs.InvalidField(f.Name, "reference", raw,
				fmt.Sprintf("must be a %s id (%s)", f.MasterType, f.RelationshipType))
		}
		return []string{id}, nil
	}

	var ids []string
	switch list := raw.(type) {
	case []string:
		ids = append(ids, list...)
	case []any:
		for _, item := range list {
			id, ok := item.(string)
			if !ok {
				return nil, errs.InvalidField(f.Name, "reference", raw,
					fmt.Sprintf("must be a list of %s ids", f.MasterType))
			}
			ids = append(ids, id)
		}
	default:
		return nil, errs.InvalidField(f.Name, "reference", raw,
			fmt.Sprintf("must be a list of %s ids (%s)", f.MasterType, f.RelationshipType))
	}

	for _, id := range ids {
		if id == "" {
			return nil, errs.InvalidField(f.Name, "reference", raw, "reference ids must not be empty")
		}
	}
	return ids, nil
}

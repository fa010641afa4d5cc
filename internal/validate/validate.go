// Package validate checks request bodies against the embedded JSON schemas before
// they are decoded into request structs.
package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/inaiurai/shellmarket/internal/apperr"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names, one per request body.
const (
	CreateJob     = "create_job"
	DeliverJob    = "deliver_job"
	CreateReview  = "create_review"
	RegisterAgent = "register_agent"
	UpdateAgent   = "update_agent"
	CreateService = "create_service"
)

const maxBodyBytes = 1 << 20

type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema, len(entries))
	for _, e := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		schemas[name], err = jsonschema.CompileString("https://shellmarket.dev/schemas/"+e.Name(), string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// MustNew is New for static wiring; the schemas are compiled into the binary.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Check validates raw JSON against the named schema.
func (v *Validator) Check(name string, raw []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return apperr.Validation("body", "request body must be valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := firstLeaf(ve)
			return apperr.Validation(fieldName(leaf.InstanceLocation), leaf.Message)
		}
		return apperr.Validation("body", err.Error())
	}
	return nil
}

// Decode reads the request body, validates it against the named schema and decodes
// it into dst. An empty body is treated as an empty object.
func (v *Validator) Decode(r *http.Request, name string, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Validation("body", "failed to read request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	if err := v.Check(name, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Validation("body", "request body does not match the expected shape")
	}
	return nil
}

func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}

// fieldName turns an instance location such as "/amount" into "amount".
func fieldName(loc string) string {
	loc = strings.TrimPrefix(loc, "/")
	if loc == "" {
		return "body"
	}
	return loc
}

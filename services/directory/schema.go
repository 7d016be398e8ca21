package directory

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Response schemas.
const (
	SchemaCapabilities = "capabilities"
	SchemaDeployments  = "deployments"
	SchemaVocabulary   = "vocabulary"
	SchemaAgent        = "agent"
	SchemaSaved        = "saved"
)

var schemas = mustLoadSchemas(SchemaCapabilities, SchemaDeployments, SchemaVocabulary, SchemaAgent, SchemaSaved)

func mustLoadSchemas(names ...string) map[string]*gojsonschema.Schema {
	out := make(map[string]*gojsonschema.Schema, len(names))
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			panic(fmt.Sprintf("read schema %s: %v", name, err))
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			panic(fmt.Sprintf("compile schema %s: %v", name, err))
		}
		out[name] = s
	}
	return out
}

// Validate checks body against the named schema and returns a *ParseError listing every
// problem found.
func Validate(name string, body []byte) error {
	s, ok := schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &ParseError{Resource: name, Err: err}
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return &ParseError{Resource: name, Problems: problems}
}

// ParseError reports a response that did not match its expected shape.
type ParseError struct {
	Resource string
	Problems []string
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s response: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("parse %s response: %s", e.Resource, strings.Join(e.Problems, "; "))
}

func (e *ParseError) Unwrap() error { return e.Err }

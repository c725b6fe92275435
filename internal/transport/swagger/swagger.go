package swagger

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	httpSwagger "github.com/swaggo/http-swagger"
)

const SpecURL = "/openapi.yml"

// Handler serves the Swagger UI pointed at the document served at SpecURL.
func Handler() http.Handler {
	return httpSwagger.Handler(httpSwagger.URL(SpecURL))
}

// Spec is a loaded and validated OpenAPI document together with its source.
type Spec struct {
	Doc *openapi3.T
	raw []byte
}

// LoadSpec reads the document at path and validates it, so a broken API
// description fails startup rather than the Swagger UI.
func LoadSpec(ctx context.Context, path string) (*Spec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read openapi spec: %w", err)
	}
	return ParseSpec(ctx, raw)
}

func ParseSpec(ctx context.Context, raw []byte) (*Spec, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("parse openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi spec: %w", err)
	}
	return &Spec{Doc: doc, raw: raw}, nil
}

// Operations counts the documented method and path pairs.
func (s *Spec) Operations() int {
	n := 0
	for _, item := range s.Doc.Paths.Map() {
		n += len(item.Operations())
	}
	return n
}

// ServeHTTP returns the document as loaded.
func (s *Spec) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(s.raw)
}

// Package apidocs loads and validates the OpenAPI document served under /docs/api.
package apidocs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// SpecPath is the document location relative to the project root.
const SpecPath = "public/docs/v1/openapi.yml"

var ErrSpecNotFound = errors.New("openapi document not found")

// FindBasePath returns the first of the usual project roots that contains the document.
func FindBasePath() (string, error) {
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/marketly to project root
		"../../../", // From internal/pkg/* to project root
	}
	for _, base := range basePaths {
		if _, err := os.Stat(base + SpecPath); err == nil {
			return base, nil
		}
	}
	return "", ErrSpecNotFound
}

// Load parses the document at path and validates it against OpenAPI 3.
func Load(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false
	loader.Context = ctx

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return doc, nil
}

// Operations lists "METHOD /path" for every documented operation, sorted.
func Operations(doc *openapi3.T) []string {
	var ops []string
	if doc == nil || doc.Paths == nil {
		return ops
	}
	for path, item := range doc.Paths.Map() {
		for method := range item.Operations() {
			ops = append(ops, method+" "+path)
		}
	}
	sort.Strings(ops)
	return ops
}

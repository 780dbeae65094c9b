package apidocs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShippedDocumentIsValid(t *testing.T) {
	base, err := FindBasePath()
	require.NoError(t, err)

	doc, err := Load(context.Background(), filepath.Join(base, SpecPath))
	require.NoError(t, err)
	assert.Equal(t, "Marketly API", doc.Info.Title)

	ops := Operations(doc)
	for _, want := range []string{
		"POST /auth/send-otp",
		"POST /auth/signup",
		"POST /auth/login",
		"GET /products",
		"GET /products/{id}",
		"POST /subscription/create",
		"POST /subscription/webhook",
		"GET /admin/stats",
	} {
		assert.Contains(t, ops, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestOperationsNilDocument(t *testing.T) {
	assert.Empty(t, Operations(nil))
}

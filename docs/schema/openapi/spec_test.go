package openapi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSpecReturnsCopy(t *testing.T) {
	spec := Spec()
	require.NotEmpty(t, spec)
	spec[0] ^= 0xFF
	require.False(t, bytes.Equal(spec, DistributorSpec))
	require.Equal(t, DistributorSpec, Spec())
}

func TestSpecDocumentsRoutes(t *testing.T) {
	var doc struct {
		OpenAPI string                    `yaml:"openapi"`
		Paths   map[string]map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(Spec(), &doc))
	require.Equal(t, "3.0.3", doc.OpenAPI)

	want := map[string]string{
		"/healthz":               "get",
		"/v1/status":             "get",
		"/v1/claims/{address}":   "get",
		"/v1/balances/{address}": "get",
		"/v1/events":             "get",
		"/v1/initialize":         "post",
		"/v1/distribution":       "post",
		"/v1/finalize":           "post",
		"/v1/admin":              "post",
		"/v1/claim":              "post",
		"/v1/refund":             "post",
	}
	require.Len(t, doc.Paths, len(want))
	for path, method := range want {
		ops, ok := doc.Paths[path]
		require.True(t, ok, path)
		require.Contains(t, ops, method, path)
	}
}

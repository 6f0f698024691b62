// Package openapi embeds the OpenAPI document of the distributor HTTP API.
package openapi

import _ "embed"

// DistributorSpec is the OpenAPI YAML served at /v1/openapi.yaml.
//
//go:embed distributor.yaml
var DistributorSpec []byte

// Spec returns a copy of the embedded YAML.
func Spec() []byte {
	return append([]byte(nil), DistributorSpec...)
}

package http

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var rawSpec []byte

var (
	specOnce sync.Once
	specDoc  *openapi3.T
	specErr  error
)

// GetSwagger returns the parsed API description embedded in the binary.
func GetSwagger() (*openapi3.T, error) {
	specOnce.Do(func() {
		specDoc, specErr = openapi3.NewLoader().LoadFromData(rawSpec)
		if specErr != nil {
			specErr = fmt.Errorf("loading embedded openapi document: %w", specErr)
		}
	})
	return specDoc, specErr
}

// RawSpec returns a copy of the embedded YAML document.
func RawSpec() []byte {
	out := make([]byte, len(rawSpec))
	copy(out, rawSpec)
	return out
}

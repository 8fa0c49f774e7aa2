package api

import (
    _ "embed"
    "net/http"

    yaml "gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIDoc []byte

// OpenAPIHandler serves the embedded document as YAML at /openapi.yaml and as JSON otherwise.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if r.URL.Path == "/openapi.yaml" {
        w.Header().Set("Content-Type", "application/yaml")
        w.WriteHeader(200)
        _, _ = w.Write(openAPIDoc)
        return
    }
    var obj map[string]any
    if err := yaml.Unmarshal(openAPIDoc, &obj); err != nil { writeProblem(w, 500, "OpenAPI parse failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, obj)
}

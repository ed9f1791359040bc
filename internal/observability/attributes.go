// Package observability provides metrics, tracing, and logging utilities.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod      = "method"
	attrPath        = "path"
	attrStatus      = "status"
	attrMessageType = "message_type"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	// Normalize paths with IDs to reduce cardinality
	// /v1/training/abc123 -> /v1/training/{taskId}
	return attribute.String(attrPath, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func messageTypeAttr(msgType string) attribute.KeyValue {
	return attribute.String(attrMessageType, msgType)
}

// normalizePath replaces dynamic path segments with placeholders.
// Longest prefixes first so /v1/training/connections/x does not
// collapse into /v1/training/{taskId}.
func normalizePath(path string) string {
	if path == "/v1/training/stats" {
		return path
	}
	prefixes := []struct {
		prefix      string
		placeholder string
	}{
		{"/v1/training/connections/", "/v1/training/connections/{taskId}"},
		{"/v1/training/", "/v1/training/{taskId}"},
		{"/ws/training/", "/ws/training/{taskId}"},
	}
	for _, p := range prefixes {
		if len(path) > len(p.prefix) && strings.HasPrefix(path, p.prefix) {
			return p.placeholder
		}
	}
	return path
}

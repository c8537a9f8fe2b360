// Package logging provides a chainable structured-field builder shared
// across the core's logrus-based component loggers.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is a chainable builder over the key/value pairs attached to a
// single log entry.
type Fields map[string]interface{}

// NewFields returns an empty Fields builder.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(op string) Fields {
	f["operation"] = op
	return f
}

func (f Fields) Resource(resourceType, name string) Fields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	if id != "" {
		f["request_id"] = id
	}
	return f
}

func (f Fields) TraceID(id string) Fields {
	if id != "" {
		f["trace_id"] = id
	}
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus converts Fields to logrus.Fields for use with a logrus entry.
func (f Fields) ToLogrus() logrus.Fields {
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DatabaseFields is a convenience constructor for entity-store and
// change-ledger repository logs.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields is a convenience constructor for the illustrative host-HTTP
// adapter (pkg/coreapi/httpfacade).
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// JobFields is a convenience constructor for orchestrator job-lifecycle logs.
func JobFields(operation, jobID string) Fields {
	return NewFields().Component("job").Operation(operation).Resource("job", jobID)
}

// CollectorFields is a convenience constructor for collector-pipeline logs.
func CollectorFields(operation, entityType string) Fields {
	return NewFields().Component("collector").Operation(operation).Resource("entity_type", entityType)
}

// LLMFields is a convenience constructor for pkg/llm client logs.
func LLMFields(operation, model string) Fields {
	return NewFields().Component("llm").Operation(operation).Custom("model", model)
}

// MetricsFields is a convenience constructor for metric-emission logs.
func MetricsFields(operation, metricName string, value float64) Fields {
	return NewFields().Component("metrics").Operation(operation).Custom("metric_name", metricName).Custom("value", value)
}

// SecurityFields is a convenience constructor for auth-adjacent logs
// emitted by the command surface (spec.md §6.1 callers remain external,
// but the core still logs who initiated a job via Job.InitiatedBy).
func SecurityFields(operation, subject string) Fields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields is a convenience constructor for latency/throughput logs.
func PerformanceFields(operation string, d time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).Duration(d).Custom("success", success)
}

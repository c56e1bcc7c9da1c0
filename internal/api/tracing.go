package api

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/prepstack/interviewflow/internal/domain"
)

// withTracing opens one server span per request. Spans are named by the
// route template, not the raw path, so all per-interview requests aggregate
// under the same name; the concrete interview id rides along as an attribute.
func (s *Server) withTracing(next http.Handler) http.Handler {
	if s.tracer == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeLabel(r.URL.Path)
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))

		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.target", r.URL.Path),
		}
		if id, ok := interviewIDFromPath(r.URL.Path); ok {
			attrs = append(attrs, attribute.String("interview.id", id))
		}
		span.SetAttributes(attrs...)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// interviewIDFromPath pulls the id segment out of /v1/interviews/{id}[...]
// when it is a well-formed interview id.
func interviewIDFromPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/v1/interviews/")
	if !ok {
		return "", false
	}
	segment, _, _ := strings.Cut(rest, "/")
	id, err := domain.ParseInterviewID(segment)
	if err != nil {
		return "", false
	}
	return id, true
}

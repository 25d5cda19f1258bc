package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrSessionID    = "session.id"
	AttrWorkflowName = "workflow.name"
	AttrLLMSessionID = "llm.session_id"
	AttrContinuation = "workflow.continuation"
	AttrRepoURL      = "repo.url"
	AttrRepoDir      = "repo.dir"
	AttrArtifactType = "artifact.type"
	AttrArtifactID   = "artifact.id"
	AttrFinishReason = "finish.reason"
	AttrEventCount   = "stream.events"
	AttrClientType   = "client.type"
)

// Span names.
const (
	SpanWorkflowRun   = "workflow.run"
	SpanPrepare       = "workflow.prepare"
	SpanClone         = "git.clone"
	SpanRender        = "workflow.render"
	SpanStream        = "workflow.stream"
	SpanHTTPTurn      = "http.turn"
	SpanStoreArtifact = "store.artifact"
)

// Span event names.
const (
	EventSessionID = "session_id.captured"
	EventArtifact  = "artifact.emitted"
	EventFinish    = "stream.finished"
)

// Start opens an internal span.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err on span, sets its status and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const managerTracerName = "agentmemory.engine"

const (
	spanAgenticRetrieve  = "engine.agentic_retrieve"
	spanRetrieveStrategy = "engine.retrieve.strategy"
	spanIntelligentStore = "engine.intelligent_store"
	spanConsolidate      = "engine.consolidate"
)

func managerTracer() trace.Tracer {
	return otel.Tracer(managerTracerName)
}

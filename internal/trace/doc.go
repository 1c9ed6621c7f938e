// Package trace records what the novus toolchain is doing: commands, backend
// phases, per-function code generation, VM entry points, forked executors
// and garbage collections.
//
// Enable it from the command line:
//
//	novus run --trace=- --trace-level=detail prog.novp
//
// # Tracers
//
//   - Nop: disabled tracing, no allocation
//   - StreamTracer: writes every event as it happens
//   - RingTracer: keeps the most recent events for post-mortem dumps
//   - MultiTracer: fans out to several tracers
//
// # Levels and scopes
//
// A Level selects which Scopes are emitted:
//
//   - LevelPhase: ScopeDriver and ScopePhase (commands, codegen, entry points)
//   - LevelDetail: adds ScopeUnit (functions, forked executors, collections)
//   - LevelDebug: adds ScopeInstr
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span, ctx := trace.Start(ctx, trace.ScopePhase, "codegen")
//	defer span.End("")
package trace

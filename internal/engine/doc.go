// Package engine implements the core event-stack engine: the incremental
// view/query compiler, the action-execution protocol, the model runner, and
// the repository entry point.
//
// ARCHITECTURE:
//
// Reads are folds. CompileDetailedViews flattens a view composition, seeds
// from the view cache (or the merged defaults), folds only the events past
// the cached watermark, conditionally writes the new watermark back, then
// applies finalizers. Caching is keyed by the composition's identity string,
// so every read is bounded by "events since this exact composition was last
// read", not by total log length.
//
// Writes are actions. ExecuteAction hands the handler a context whose view
// and query reads share one monotonically advancing watermark, then turns
// the handler's verdict into exactly one append (sequenced when the
// watermark is known, anonymous otherwise) or a RejectionError.
//
// Correctness relies on optimistic concurrency only: the stack's append-time
// sequence check and the cache's conditional write. The engine takes no
// locks and never logs or swallows rejections or sequence conflicts - both
// propagate as structured failures to the caller. The model runner is the
// single place that retries (bounded) on sequence conflicts.
package engine

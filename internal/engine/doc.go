// Package engine hosts the personalization core: a single-writer event
// loop that owns every piece of mutable state in the module.
//
// External callers submit work through Enqueue (bus events) or
// FetchPropositions (new personalization requests); the Run loop dequeues
// tasks in FIFO order and applies them one at a time. Rule set swaps,
// in-progress request bookkeeping, and qualified-card mutation all happen
// on that one goroutine, so no interleaving between a response
// reconciliation and an application-event evaluation is possible.
//
// The pieces the loop coordinates:
//
//   - Reconciler: tracks outstanding fetches, accumulates notification
//     batches, and on completion rebuilds rule sets and the durable cache.
//   - RulesEngine: compiled in-app message rules, evaluated per event.
//   - ContentCardEngine: content card rules plus the qualification state
//     machine backed by the event-history store.
//
// The only blocking call made from the loop is the batched history query
// issued during content card evaluation.
package engine

// Package proposition defines the personalization data model.
//
// A Proposition groups one or more schema-typed items under a single scope
// (surface URI) and rank. Items carry an opaque content payload plus a
// schema tag that drives downstream classification. The package also owns
// Surface validation and the owner Registry, the explicit weak-handle that
// lets an item recover its owning proposition after the proposition itself
// may have been evicted.
//
// OWNERSHIP:
//
// Propositions are owned by whichever collection currently holds them
// (in-progress map, persisted cache, or a rules-engine-private copy).
// Items never hold their owner alive: Item.Owner resolves through the
// Registry and returns (nil, false) once the owner is gone. Callers must
// treat a failed resolution as a normal outcome, not an error.
package proposition

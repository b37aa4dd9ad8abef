package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerline/inappkit/internal/proposition"
)

// PropositionNamespace is the cache namespace holding surface->proposition
// maps; each surface URI is one key.
const PropositionNamespace = "propositions"

// PropositionCache persists in-app propositions per surface so install
// order can be reproduced on reload.
type PropositionCache struct {
	store *Store
}

// NewPropositionCache wraps a Store.
func NewPropositionCache(s *Store) *PropositionCache {
	return &PropositionCache{store: s}
}

// Load returns the cached surface->proposition map.
//
// Failure semantics: any deserialization problem — truncated blob, wrong
// shape, empty list — is treated as nothing cached for that surface and
// skipped; Load never fails because of bad cached bytes. List order within
// a surface is the persisted order, which is the rank order at write time.
func (c *PropositionCache) Load(ctx context.Context) (map[string][]*proposition.Proposition, error) {
	keys, err := c.store.Keys(ctx, PropositionNamespace)
	if err != nil {
		return nil, fmt.Errorf("load propositions: %w", err)
	}

	out := make(map[string][]*proposition.Proposition, len(keys))
	for _, surfaceURI := range keys {
		entry, err := c.store.Get(ctx, PropositionNamespace, surfaceURI)
		if err != nil || entry == nil {
			continue
		}
		var raws []map[string]any
		if err := json.Unmarshal(entry.Data, &raws); err != nil {
			slog.Debug("dropping undecodable cached surface",
				"surface", surfaceURI, "error", err)
			continue
		}
		props := proposition.FromMaps(raws)
		if len(props) == 0 {
			continue
		}
		out[surfaceURI] = props
	}
	return out, nil
}

// Update upserts the given surface->proposition lists and removes the
// stale surfaces in one transaction. A surface whose list fails to
// serialize is skipped entirely — partial surface writes are disallowed —
// while the rest of the update proceeds.
func (c *PropositionCache) Update(ctx context.Context, toPersist map[string][]*proposition.Proposition, surfacesToRemove []string) error {
	// Serialize before opening the transaction so a marshal failure can
	// only ever skip a surface, never leave one half-written.
	blobs := make(map[string][]byte, len(toPersist))
	for surfaceURI, props := range toPersist {
		raws := make([]map[string]any, 0, len(props))
		for _, p := range props {
			raws = append(raws, p.ToMap())
		}
		blob, err := json.Marshal(raws)
		if err != nil {
			slog.Warn("skipping unserializable surface",
				"surface", surfaceURI, "error", err)
			continue
		}
		blobs[surfaceURI] = blob
	}

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update propositions: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for surfaceURI, blob := range blobs {
		meta, _ := json.Marshal(map[string]string{"updatedAt": now})
		if _, err := tx.ExecContext(ctx, upsertEntrySQL,
			PropositionNamespace, surfaceURI, blob, string(meta), now); err != nil {
			return fmt.Errorf("update propositions: upsert %s: %w", surfaceURI, err)
		}
	}

	for _, surfaceURI := range surfacesToRemove {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`,
			PropositionNamespace, surfaceURI); err != nil {
			return fmt.Errorf("update propositions: remove %s: %w", surfaceURI, err)
		}
	}

	return tx.Commit()
}

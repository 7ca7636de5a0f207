package activity

import (
	"context"
	"fmt"
	"strings"

	"github.com/alitto/pond/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
	"github.com/orca-so/sedimentology/pkg/metrics"
)

// Registry label values
const (
	RegistryPubkeys  = "pubkeys"
	RegistryDecimals = "decimals"
)

// DefaultRegistryCacheSize bounds each registry cache.
const DefaultRegistryCacheSize = 10_000

// PubkeyStore is the address registry upsert.
type PubkeyStore interface {
	AddPubkeyIfNotExists(ctx context.Context, pubkey string) error
}

// Registry registers addresses ahead of a slot commit. Keys confirmed once
// by this process are not sent again.
type Registry struct {
	store    PubkeyStore
	pool     pond.Pool
	metrics  *metrics.Metrics
	pubkeys  *lru.Cache
	decimals *lru.Cache
}

// NewRegistry builds a registry whose upserts run on pool.
func NewRegistry(store PubkeyStore, pool pond.Pool, size int, m *metrics.Metrics) (*Registry, error) {
	if size <= 0 {
		size = DefaultRegistryCacheSize
	}
	pubkeys, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("pubkey cache: %w", err)
	}
	decimals, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("decimals cache: %w", err)
	}
	return &Registry{store: store, pool: pool, metrics: m, pubkeys: pubkeys, decimals: decimals}, nil
}

// EnsurePubkeys upserts every key not already cached. Concurrent duplicate
// upserts of the same key are harmless.
func (r *Registry) EnsurePubkeys(ctx context.Context, keys []string) error {
	pending := make([]string, 0, len(keys))
	for _, k := range keys {
		if r.pubkeys.Contains(k) {
			r.metrics.RegistryHit(RegistryPubkeys)
			continue
		}
		pending = append(pending, k)
	}
	if len(pending) == 0 {
		return nil
	}

	group := r.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, k := range pending {
		group.SubmitErr(func() error {
			if err := r.store.AddPubkeyIfNotExists(groupCtx, k); err != nil {
				return err
			}
			r.pubkeys.Add(strings.Clone(k), struct{}{})
			return nil
		})
	}
	return group.Wait()
}

// UnseenDecimals drops the entries already committed by this process.
func (r *Registry) UnseenDecimals(in []chain.MintDecimals) []chain.MintDecimals {
	var out []chain.MintDecimals
	for _, d := range in {
		if r.decimals.Contains(d.Mint) {
			r.metrics.RegistryHit(RegistryDecimals)
			continue
		}
		out = append(out, d)
	}
	return out
}

// MarkDecimals records mints whose decimals are committed.
func (r *Registry) MarkDecimals(in []chain.MintDecimals) {
	for _, d := range in {
		r.decimals.Add(strings.Clone(d.Mint), d.Decimals)
	}
}

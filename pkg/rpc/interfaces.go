package rpc

import (
	"context"
)

// Client captures the chain RPC calls used by the sequencers and the block processor.
type Client interface {
	GetBlocksWithLimit(ctx context.Context, start uint64, limit uint64, commitment Commitment) ([]uint64, error)
	GetBlock(ctx context.Context, slot uint64, commitment Commitment) (*Block, error)
	GetAccountInfo(ctx context.Context, address string, commitment Commitment, encoding string) (*AccountInfo, error)
}

// Factory produces RPC clients for a given set of endpoints.
type Factory interface {
	NewClient(endpoints []string) Client
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(endpoints []string) Client {
	o := f.opts
	o.Endpoints = endpoints
	return NewHTTPWithOpts(o)
}

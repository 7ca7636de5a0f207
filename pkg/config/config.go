// Package config holds the settings shared by every role.
package config

import (
	"time"

	"github.com/orca-so/sedimentology/pkg/rpc"
	"github.com/orca-so/sedimentology/pkg/utils"
)

// Common is the configuration every role accepts.
type Common struct {
	RPCEndpoints  []string
	RPCRPS        int
	RPCTimeout    time.Duration
	Commitment    rpc.Commitment
	MetricsListen string
	// Database is the PostgreSQL database holding both the control tables and the ledger.
	Database string
}

// Default returns the defaults, with the database name read from POSTGRES_DB.
func Default() Common {
	return Common{
		RPCEndpoints:  []string{"http://localhost:8899"},
		RPCRPS:        50,
		RPCTimeout:    30 * time.Second,
		Commitment:    rpc.Finalized,
		MetricsListen: "",
		Database:      utils.Env("POSTGRES_DB", "sedimentology"),
	}
}

// RPCOpts builds the options for the JSON-RPC client.
func (c Common) RPCOpts(observer rpc.Observer) rpc.Opts {
	return rpc.Opts{
		Endpoints:       c.RPCEndpoints,
		Timeout:         c.RPCTimeout,
		RPS:             c.RPCRPS,
		Burst:           2 * c.RPCRPS,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
		Observer:        observer,
	}
}

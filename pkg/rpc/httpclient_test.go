package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func rpcServer(t *testing.T, handler func(req recordedRequest) string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req recordedRequest
		require.NoError(t, json.Unmarshal(body, &req))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(handler(req)))
	}))
	t.Cleanup(server.Close)
	return server
}

const blockFixture = `{"jsonrpc":"2.0","id":1,"result":{
	"blockHeight": 230000001,
	"blockTime": 1700000000,
	"blockhash": "4sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZAMdL4VZHirAn",
	"parentSlot": 250000000,
	"previousBlockhash": "8sGjMW1sUnHzSxGspuhpqLDx6wiyjNtZAMdL4VZHirAn",
	"transactions": [{
		"meta": {
			"err": null,
			"fee": 5000,
			"innerInstructions": null,
			"loadedAddresses": {"writable": ["W1"], "readonly": ["R1"]},
			"preTokenBalances": [{"accountIndex": 1, "mint": "M", "owner": "O", "programId": "P", "uiTokenAmount": {"amount": "18446744073709551615", "decimals": 6}}],
			"postTokenBalances": []
		},
		"transaction": {
			"signatures": ["sig1"],
			"message": {"accountKeys": ["A0", "A1"], "recentBlockhash": "h", "instructions": [{"programIdIndex": 1, "accounts": [0], "data": "3Bxs", "stackHeight": null}]}
		},
		"version": 0
	}]
}}`

func TestHTTPClient_GetBlock(t *testing.T) {
	server := rpcServer(t, func(req recordedRequest) string {
		assert.Equal(t, "getBlock", req.Method)
		require.Len(t, req.Params, 2)
		assert.JSONEq(t, `250000001`, string(req.Params[0]))
		assert.JSONEq(t, `{
			"encoding": "json",
			"transactionDetails": "full",
			"maxSupportedTransactionVersion": 0,
			"rewards": false,
			"commitment": "finalized"
		}`, string(req.Params[1]))
		return blockFixture
	})

	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})
	block, err := client.GetBlock(context.Background(), 250000001, Finalized)
	require.NoError(t, err)

	require.Equal(t, uint64(230000001), block.BlockHeight)
	require.Equal(t, int64(1700000000), block.BlockTime)
	require.Len(t, block.Transactions, 1)

	tx := block.Transactions[0]
	require.False(t, tx.Meta.Failed())
	require.Nil(t, tx.Meta.InnerInstructions, "null inner instructions must stay distinguishable")
	require.Equal(t, []string{"A0", "A1", "W1", "R1"}, tx.AllPubkeys())
	// amounts above 2^53 survive untouched because they are strings
	require.Equal(t, "18446744073709551615", tx.Meta.PreTokenBalances[0].UITokenAmount.Amount)
}

func TestHTTPClient_GetBlockRejectsMissingFields(t *testing.T) {
	server := rpcServer(t, func(recordedRequest) string {
		return `{"jsonrpc":"2.0","id":1,"result":{"blockHeight":1,"blockTime":2,"blockhash":"h","parentSlot":null,"transactions":[]}}`
	})

	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})
	_, err := client.GetBlock(context.Background(), 1, Finalized)
	require.ErrorIs(t, err, ErrMalformedBlock)
}

func TestHTTPClient_GetBlockRejectsUnsafeIntegers(t *testing.T) {
	server := rpcServer(t, func(recordedRequest) string {
		return `{"jsonrpc":"2.0","id":1,"result":{"blockHeight":1152921504606846976,"blockTime":2,"blockhash":"h","parentSlot":1,"transactions":[]}}`
	})

	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})
	_, err := client.GetBlock(context.Background(), 1, Finalized)
	require.ErrorIs(t, err, ErrUnsafeInteger)
}

func TestConsumedBlockIntegersCoverStackHeights(t *testing.T) {
	raw := []byte(`{"transactions":[{"meta":{"innerInstructions":[{"index":0,"instructions":[
		{"programIdIndex":1,"accounts":[0],"stackHeight":2},
		{"programIdIndex":1,"accounts":[0],"stackHeight":9007199254740993}
	]}]}}]}`)
	err := checkSafeIntegers(raw, consumedBlockIntegers...)
	require.ErrorIs(t, err, ErrUnsafeInteger)
	assert.Contains(t, err.Error(), "stackHeight")

	raw = []byte(`{"transactions":[{"transaction":{"message":{"instructions":[
		{"programIdIndex":1,"accounts":[0],"stackHeight":9007199254740993}
	]}}}]}`)
	require.ErrorIs(t, checkSafeIntegers(raw, consumedBlockIntegers...), ErrUnsafeInteger)

	raw = []byte(`{"transactions":[{"meta":{"innerInstructions":[{"index":0,"instructions":[
		{"programIdIndex":1,"accounts":[0],"stackHeight":2}
	]}]}}]}`)
	require.NoError(t, checkSafeIntegers(raw, consumedBlockIntegers...))
}

func TestHTTPClient_SkippedSlot(t *testing.T) {
	server := rpcServer(t, func(recordedRequest) string {
		return `{"jsonrpc":"2.0","id":1,"error":{"code":-32007,"message":"Slot 5 was skipped"}}`
	})

	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})
	_, err := client.GetBlock(context.Background(), 5, Confirmed)
	require.ErrorIs(t, err, ErrBlockNotAvailable)

	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	require.Equal(t, -32007, rpcErr.Code)
}

func TestHTTPClient_GetBlocksWithLimit(t *testing.T) {
	server := rpcServer(t, func(req recordedRequest) string {
		assert.Equal(t, "getBlocksWithLimit", req.Method)
		assert.JSONEq(t, `100`, string(req.Params[0]))
		assert.JSONEq(t, `4`, string(req.Params[1]))
		assert.JSONEq(t, `{"commitment":"confirmed"}`, string(req.Params[2]))
		return `{"jsonrpc":"2.0","id":1,"result":[100,101,103,104]}`
	})

	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})
	slots, err := client.GetBlocksWithLimit(context.Background(), 100, 4, Confirmed)
	require.NoError(t, err)
	require.Equal(t, []uint64{100, 101, 103, 104}, slots)
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := rpcServer(t, func(req recordedRequest) string {
		assert.Equal(t, "getAccountInfo", req.Method)
		assert.JSONEq(t, `{"commitment":"finalized","encoding":"base64"}`, string(req.Params[1]))
		return `{"jsonrpc":"2.0","id":1,"result":{"context":{"slot":9},"value":{"data":["AwAAAA==","base64"],"executable":false,"lamports":10,"owner":"BPFLoaderUpgradeab1e11111111111111111111111","rentEpoch":18446744073709551615}}}`
	})

	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})
	info, err := client.GetAccountInfo(context.Background(), "CtXfPzz36dH5Ws4UYKZvrQ1Xqzn42ecDW6y8NKuiN8nD", Finalized, "base64")
	require.NoError(t, err)
	require.Equal(t, []string{"AwAAAA==", "base64"}, info.Data)
}

func TestHTTPClient_FailsOverOnServerError(t *testing.T) {
	var brokenCalls atomic.Int32
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		brokenCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(broken.Close)
	healthy := rpcServer(t, func(recordedRequest) string {
		return `{"jsonrpc":"2.0","id":1,"result":[7,8]}`
	})

	client := NewHTTPWithOpts(Opts{
		Endpoints:       []string{broken.URL, healthy.URL},
		BreakerFailures: 1,
		BreakerCooldown: time.Minute,
	})

	for i := 0; i < 3; i++ {
		slots, err := client.GetBlocksWithLimit(context.Background(), 7, 2, Finalized)
		require.NoError(t, err)
		require.Equal(t, []uint64{7, 8}, slots)
	}
	// the breaker opened after the first failure
	require.Equal(t, int32(1), brokenCalls.Load())
}

type recordingObserver struct {
	statuses []string
}

func (o *recordingObserver) ObserveRPC(method, status string, _ time.Duration) {
	o.statuses = append(o.statuses, method+":"+status)
}

func TestHTTPClient_Observer(t *testing.T) {
	server := rpcServer(t, func(recordedRequest) string {
		return `{"jsonrpc":"2.0","id":1,"result":[1]}`
	})
	obs := &recordingObserver{}
	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}, Observer: obs})

	_, err := client.GetBlocksWithLimit(context.Background(), 1, 1, Finalized)
	require.NoError(t, err)
	require.Equal(t, []string{"getBlocksWithLimit:ok"}, obs.statuses)
}

func TestHTTPClient_NoEndpoints(t *testing.T) {
	client := NewHTTPWithOpts(Opts{})
	_, err := client.GetBlocksWithLimit(context.Background(), 1, 1, Finalized)
	require.Error(t, err)
}

package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophecy-labs/prophecyd/internal/crypto"
	"github.com/prophecy-labs/prophecyd/internal/domain"
)

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	seed, err := hex.DecodeString("9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60")
	require.NoError(t, err)
	return crypto.NewSigner(seed)
}

// rpcCall is what the test gateway records per request.
type rpcCall struct {
	Method string
	Params map[string]any
}

// newGateway starts a JSON-RPC test server answering each method from
// results; a string beginning with "error:" becomes an rpc error message.
func newGateway(t *testing.T, results map[string]any) (*httptest.Server, *[]rpcCall) {
	t.Helper()
	var calls []rpcCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string         `json:"jsonrpc"`
			ID      uint64         `json:"id"`
			Method  string         `json:"method"`
			Params  map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		calls = append(calls, rpcCall{Method: req.Method, Params: req.Params})

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch res := results[req.Method].(type) {
		case string:
			if msg, ok := strings.CutPrefix(res, "error:"); ok {
				resp["error"] = map[string]any{"code": -32000, "message": msg}
			} else {
				resp["result"] = map[string]any{"signature": res}
			}
		default:
			resp["result"] = res
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestResolveSignsAndSubmits(t *testing.T) {
	srv, calls := newGateway(t, map[string]any{"prophecy_resolveMarket": "sig-1"})
	signer := testSigner(t)
	c := NewClient(srv.URL, "prog1", signer, time.Second)

	digest := sha256.Sum256([]byte("bundle"))
	sig, err := c.Resolve(context.Background(), "addr1", 1, digest[:])
	require.NoError(t, err)
	assert.Equal(t, "sig-1", sig)

	require.Len(t, *calls, 1)
	params := (*calls)[0].Params
	assert.Equal(t, "prog1", params["program"])
	assert.Equal(t, "addr1", params["market"])
	assert.Equal(t, signer.PublicKey(), params["authority"])
	assert.NotEmpty(t, params["transcript_hash"])
	assert.NotEmpty(t, params["authority_sig"])
}

func TestResolveValidatesInputs(t *testing.T) {
	c := NewClient("http://unused", "prog1", testSigner(t), time.Second)

	_, err := c.Resolve(context.Background(), "addr1", 1, []byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")

	digest := sha256.Sum256(nil)
	_, err = c.Resolve(context.Background(), "addr1", 2, digest[:])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid outcome")
}

func TestProgramErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    error
	}{
		{"AlreadyResolved", "error:program error: AlreadyResolved", domain.ErrAlreadyResolved},
		{"MarketNotOpen", "error:program error: MarketNotOpen", domain.ErrMarketNotOpen},
		{"UnauthorizedResolver", "error:program error: UnauthorizedResolver", domain.ErrUnauthorized},
		{"UnauthorizedMinter", "error:program error: UnauthorizedMinter", domain.ErrUnauthorized},
	}
	digest := sha256.Sum256(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newGateway(t, map[string]any{"prophecy_resolveMarket": tc.message})
			c := NewClient(srv.URL, "prog1", testSigner(t), time.Second)

			_, err := c.Resolve(context.Background(), "addr1", 0, digest[:])
			require.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("UnknownErrorPassesThrough", func(t *testing.T) {
		srv, _ := newGateway(t, map[string]any{"prophecy_resolveMarket": "error:node out of sync"})
		c := NewClient(srv.URL, "prog1", testSigner(t), time.Second)

		_, err := c.Resolve(context.Background(), "addr1", 0, digest[:])
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrAlreadyResolved)
		assert.Contains(t, err.Error(), "node out of sync")
	})
}

func TestQueryStakes(t *testing.T) {
	srv, calls := newGateway(t, map[string]any{"prophecy_queryStakes": []map[string]any{
		{"user": "alice", "market": "addr1", "amount": 100, "direction": true, "timestamp": 1700000000},
		{"user": "bob", "market": "addr1", "amount": 40, "direction": false, "timestamp": 1700000100},
	}})
	c := NewClient(srv.URL, "prog1", testSigner(t), time.Second)

	stakes, err := c.QueryStakes(context.Background(), "addr1")
	require.NoError(t, err)
	require.Len(t, stakes, 2)
	assert.Equal(t, "alice", stakes[0].User)
	assert.EqualValues(t, 100, stakes[0].Amount)
	assert.True(t, stakes[0].Direction)
	assert.Equal(t, int64(1700000000), stakes[0].Timestamp.Unix())

	assert.Equal(t, "prophecy_queryStakes", (*calls)[0].Method)
}

func TestDisburseAndEarnCred(t *testing.T) {
	srv, calls := newGateway(t, map[string]any{
		"prophecy_distributeInsightRewards": "sig-d",
		"prophecy_earnCred":                 "sig-e",
	})
	c := NewClient(srv.URL, "prog1", testSigner(t), time.Second)

	sig, err := c.Disburse(context.Background(), "addr1", "alice", 200)
	require.NoError(t, err)
	assert.Equal(t, "sig-d", sig)

	sig, err = c.EarnCred(context.Background(), "bob", 5, EarnEvidenceSubmission)
	require.NoError(t, err)
	assert.Equal(t, "sig-e", sig)

	require.Len(t, *calls, 2)
	assert.EqualValues(t, 200, (*calls)[0].Params["amount"])
	assert.Equal(t, string(EarnEvidenceSubmission), (*calls)[1].Params["method"])
}

func TestGetMarket(t *testing.T) {
	digest := sha256.Sum256([]byte("committed"))

	t.Run("ResolvedMarket", func(t *testing.T) {
		srv, calls := newGateway(t, map[string]any{"prophecy_getMarket": map[string]any{
			"resolved":        true,
			"outcome":         1,
			"transcript_hash": base58.Encode(digest[:]),
		}})
		c := NewClient(srv.URL, "prog1", testSigner(t), time.Second)

		state, err := c.GetMarket(context.Background(), "addr1")
		require.NoError(t, err)
		assert.True(t, state.Resolved)
		assert.EqualValues(t, 1, state.Outcome)
		assert.Equal(t, digest[:], state.TranscriptHash)

		require.Len(t, *calls, 1)
		assert.Equal(t, "prophecy_getMarket", (*calls)[0].Method)
		assert.Equal(t, "addr1", (*calls)[0].Params["market"])
	})

	t.Run("UnresolvedMarket", func(t *testing.T) {
		srv, _ := newGateway(t, map[string]any{"prophecy_getMarket": map[string]any{
			"resolved": false,
			"outcome":  0,
		}})
		c := NewClient(srv.URL, "prog1", testSigner(t), time.Second)

		state, err := c.GetMarket(context.Background(), "addr1")
		require.NoError(t, err)
		assert.False(t, state.Resolved)
		assert.Nil(t, state.TranscriptHash)
	})

	t.Run("BadTranscriptHash", func(t *testing.T) {
		srv, _ := newGateway(t, map[string]any{"prophecy_getMarket": map[string]any{
			"resolved":        true,
			"outcome":         0,
			"transcript_hash": "not-base58-0OIl",
		}})
		c := NewClient(srv.URL, "prog1", testSigner(t), time.Second)

		_, err := c.GetMarket(context.Background(), "addr1")
		require.Error(t, err)
	})
}

func TestDispute(t *testing.T) {
	srv, _ := newGateway(t, map[string]any{"prophecy_disputeMarket": "sig-x"})
	c := NewClient(srv.URL, "prog1", testSigner(t), time.Second)

	sig, err := c.Dispute(context.Background(), "addr1")
	require.NoError(t, err)
	assert.Equal(t, "sig-x", sig)
}

func TestCallRejectsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "prog1", testSigner(t), time.Second)

	_, err := c.Dispute(context.Background(), "addr1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestDeriveMarketAddress(t *testing.T) {
	a := DeriveMarketAddress("prog1", "m1")
	assert.Equal(t, a, DeriveMarketAddress("prog1", "m1"), "derivation is deterministic")
	assert.NotEqual(t, a, DeriveMarketAddress("prog1", "m2"))
	assert.NotEqual(t, a, DeriveMarketAddress("prog2", "m1"))
	assert.NotEmpty(t, a)
}

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"

	"github.com/prophecy-labs/prophecyd/internal/crypto"
	"github.com/prophecy-labs/prophecyd/internal/domain"
)

// Client is a JSON-RPC 2.0 client for the settlement gateway in front of the
// prophecy ledger program. Every mutating call is signed by the executor
// authority keypair; the gateway verifies the signature against the program's
// registered executor authority.
//
// The client performs no retries. Transient-failure policy lives in the
// generation client only; ledger conflicts are terminal by design, and the
// reward distributor handles per-call failure itself.
type Client struct {
	endpoint   string
	programID  string
	signer     *crypto.Signer
	httpClient *http.Client
	requestID  atomic.Uint64
}

// NewClient creates a ledger Client.
func NewClient(endpoint, programID string, signer *crypto.Signer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		programID:  programID,
		signer:     signer,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Program error names surfaced by the gateway, mapped to domain sentinels.
const (
	errAlreadyResolved = "AlreadyResolved"
	errMarketNotOpen   = "MarketNotOpen"
	errUnauthorized    = "UnauthorizedResolver"
	errUnauthMinter    = "UnauthorizedMinter"
)

// mapProgramError converts a gateway error into the matching domain sentinel
// so callers can classify with errors.Is. Unrecognized errors pass through
// verbatim.
func mapProgramError(e *rpcError) error {
	switch {
	case strings.Contains(e.Message, errAlreadyResolved):
		return fmt.Errorf("ledger: %s: %w", e.Message, domain.ErrAlreadyResolved)
	case strings.Contains(e.Message, errMarketNotOpen):
		return fmt.Errorf("ledger: %s: %w", e.Message, domain.ErrMarketNotOpen)
	case strings.Contains(e.Message, errUnauthorized), strings.Contains(e.Message, errUnauthMinter):
		return fmt.Errorf("ledger: %s: %w", e.Message, domain.ErrUnauthorized)
	default:
		return fmt.Errorf("ledger: %w", e)
	}
}

type signatureResult struct {
	Signature string `json:"signature"`
}

// Resolve commits (outcome, transcript digest) for a market. The call is
// idempotent at the program level: a second resolve for the same market fails
// with AlreadyResolved.
func (c *Client) Resolve(ctx context.Context, marketAddress string, outcome uint8, digest []byte) (string, error) {
	if len(digest) != 32 {
		return "", fmt.Errorf("ledger: resolve %s: digest must be 32 bytes, got %d", marketAddress, len(digest))
	}
	if outcome > 1 {
		return "", fmt.Errorf("ledger: resolve %s: invalid outcome %d", marketAddress, outcome)
	}

	params := map[string]any{
		"program":         c.programID,
		"market":          marketAddress,
		"outcome":         outcome,
		"transcript_hash": base58.Encode(digest),
		"authority":       c.signer.PublicKey(),
		"authority_sig":   c.sign("resolve", marketAddress, fmt.Sprint(outcome), base58.Encode(digest)),
	}

	var res signatureResult
	if err := c.call(ctx, "prophecy_resolveMarket", params, &res); err != nil {
		return "", err
	}
	return res.Signature, nil
}

// Disburse credits amount to user for a settled market.
func (c *Client) Disburse(ctx context.Context, marketAddress, user string, amount uint64) (string, error) {
	params := map[string]any{
		"program":       c.programID,
		"market":        marketAddress,
		"recipient":     user,
		"amount":        amount,
		"authority":     c.signer.PublicKey(),
		"authority_sig": c.sign("disburse", marketAddress, user, fmt.Sprint(amount)),
	}

	var res signatureResult
	if err := c.call(ctx, "prophecy_distributeInsightRewards", params, &res); err != nil {
		return "", err
	}
	return res.Signature, nil
}

// QueryStakes returns all stake records for a market as of call time.
func (c *Client) QueryStakes(ctx context.Context, marketAddress string) ([]domain.StakeRecord, error) {
	params := map[string]any{
		"program": c.programID,
		"market":  marketAddress,
	}

	var accounts []stakeAccount
	if err := c.call(ctx, "prophecy_queryStakes", params, &accounts); err != nil {
		return nil, err
	}

	records := make([]domain.StakeRecord, 0, len(accounts))
	for _, a := range accounts {
		records = append(records, a.toDomain())
	}
	return records, nil
}

// Dispute transitions a resolved market to disputed.
func (c *Client) Dispute(ctx context.Context, marketAddress string) (string, error) {
	params := map[string]any{
		"program":       c.programID,
		"market":        marketAddress,
		"authority":     c.signer.PublicKey(),
		"authority_sig": c.sign("dispute", marketAddress),
	}

	var res signatureResult
	if err := c.call(ctx, "prophecy_disputeMarket", params, &res); err != nil {
		return "", err
	}
	return res.Signature, nil
}

// EarnCred mints reputation credit to a user.
func (c *Client) EarnCred(ctx context.Context, user string, amount uint64, method EarnMethod) (string, error) {
	params := map[string]any{
		"program":       c.programID,
		"recipient":     user,
		"amount":        amount,
		"method":        string(method),
		"authority":     c.signer.PublicKey(),
		"authority_sig": c.sign("earn_cred", user, fmt.Sprint(amount), string(method)),
	}

	var res signatureResult
	if err := c.call(ctx, "prophecy_earnCred", params, &res); err != nil {
		return "", err
	}
	return res.Signature, nil
}

// GetMarket returns the ledger's committed view of a market account. Reads
// need no authority signature.
func (c *Client) GetMarket(ctx context.Context, marketAddress string) (MarketState, error) {
	params := map[string]any{
		"program": c.programID,
		"market":  marketAddress,
	}

	var acct marketAccount
	if err := c.call(ctx, "prophecy_getMarket", params, &acct); err != nil {
		return MarketState{}, err
	}

	state := MarketState{
		Resolved: acct.Resolved,
		Outcome:  acct.Outcome,
	}
	if acct.TranscriptHash != "" {
		hash, err := base58.Decode(acct.TranscriptHash)
		if err != nil {
			return MarketState{}, fmt.Errorf("ledger: get market %s: decode transcript hash: %w", marketAddress, err)
		}
		state.TranscriptHash = hash
	}
	return state, nil
}

// sign produces a base58 ed25519 signature over the pipe-joined call fields.
func (c *Client) sign(fields ...string) string {
	return c.signer.SignBase58([]byte(strings.Join(fields, "|")))
}

// call performs a single JSON-RPC round trip.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("ledger: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("ledger: build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger: %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("ledger: read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger: %s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed rpcResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("ledger: decode %s response: %w", method, err)
	}
	if parsed.Error != nil {
		return mapProgramError(parsed.Error)
	}
	if result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return fmt.Errorf("ledger: decode %s result: %w", method, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ Settler = (*Client)(nil)

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// WalletClient talks to the platform wallet/ledger API. It is invoked
// only at terminal match transitions: reward credit for the winner,
// entry debit when a room locks in.
type WalletClient struct {
	base *BaseClient
}

// NewWalletClient points at the wallet API base URL.
func NewWalletClient(baseURL, apiKey string) *WalletClient {
	base := NewBaseClient(baseURL)
	if apiKey != "" {
		base.SetHeader("Authorization", "Bearer "+apiKey)
	}
	base.SetHeader("Content-Type", "application/json")
	return &WalletClient{base: base}
}

type ledgerRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
}

// Credit adds amount to the user's balance.
func (c *WalletClient) Credit(ctx context.Context, userID string, amount int64) error {
	return c.post(ctx, "/v1/wallet/credit", userID, amount)
}

// Debit removes amount from the user's balance.
func (c *WalletClient) Debit(ctx context.Context, userID string, amount int64) error {
	return c.post(ctx, "/v1/wallet/debit", userID, amount)
}

func (c *WalletClient) post(ctx context.Context, endpoint, userID string, amount int64) error {
	body, err := json.Marshal(ledgerRequest{UserID: userID, Amount: amount})
	if err != nil {
		return fmt.Errorf("marshal ledger request: %w", err)
	}
	if _, err := c.base.Post(ctx, endpoint, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("wallet %s for %s: %w", endpoint, userID, err)
	}
	return nil
}

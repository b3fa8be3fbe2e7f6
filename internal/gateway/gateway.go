// Package gateway abstracts the external payment provider: transaction
// initialization and verification for top-ups, transfers for withdrawals,
// and webhook signature checks.
package gateway

import "context"

// InitializeRequest asks the provider to start a charge.
type InitializeRequest struct {
	Amount      int64                  `json:"amount"` // minor units
	Email       string                 `json:"email"`
	Reference   string                 `json:"reference"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// InitializeResponse carries the provider's checkout handle.
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	AccessCode       string `json:"access_code"`
}

// VerifyResponse is the provider's view of a transaction.
type VerifyResponse struct {
	Amount          int64  `json:"amount"`
	Status          string `json:"status"`
	Currency        string `json:"currency"`
	Reference       string `json:"reference"`
	GatewayResponse string `json:"gateway_response"`
}

// TransferRequest asks the provider to pay out to a recipient.
type TransferRequest struct {
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Reference string `json:"reference"`
	Reason    string `json:"reason,omitempty"`
}

// TransferResponse carries the provider's transfer handle.
type TransferResponse struct {
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	TransferCode string `json:"transfer_code"`
}

// Gateway is the outbound port to the payment provider. Implementations must
// not mutate any local state; callers stage all mutations until both the
// gateway call and the enclosing transaction succeed.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*VerifyResponse, error)
	InitiateTransfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error)
	VerifyWebhookSignature(body []byte, signature string) bool
}

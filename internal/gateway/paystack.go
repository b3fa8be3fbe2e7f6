package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

// SignatureHeader is the header carrying the HMAC-SHA512 digest of the raw
// webhook body.
const SignatureHeader = "X-Paystack-Signature"

// PaystackClient talks to the Paystack REST API.
type PaystackClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    logger.Logger
}

func NewPaystackClient(baseURL, secretKey string, timeout time.Duration, log logger.Logger) *PaystackClient {
	return &PaystackClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
		logger:    log,
	}
}

// envelope is Paystack's standard response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *PaystackClient) InitializeTransaction(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error) {
	var resp InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (*VerifyResponse, error) {
	var resp VerifyResponse
	path := "/transaction/verify/" + reference
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *PaystackClient) InitiateTransfer(ctx context.Context, req *TransferRequest) (*TransferResponse, error) {
	body := struct {
		Source string `json:"source"`
		*TransferRequest
	}{Source: "balance", TransferRequest: req}

	var resp TransferResponse
	if err := c.do(ctx, http.MethodPost, "/transfer", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 digest of the raw request
// body against the signature header. No event is trusted before this passes.
func (c *PaystackClient) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *PaystackClient) do(ctx context.Context, method, path string, reqBody, out interface{}) error {
	var payload *bytes.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return errors.Wrap(err, "failed to encode gateway request")
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "failed to build gateway request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "gateway request failed")
	}
	defer httpResp.Body.Close()

	var env envelope
	if err := json.NewDecoder(httpResp.Body).Decode(&env); err != nil {
		return errors.Wrap(err, "failed to decode gateway response")
	}

	if httpResp.StatusCode >= 400 || !env.Status {
		c.logger.Warn("Gateway call rejected", map[string]interface{}{
			"path":    path,
			"status":  httpResp.StatusCode,
			"message": env.Message,
		})
		return errors.Wrap(errors.ErrGatewayFailure, fmt.Sprintf("%s: %s", path, env.Message))
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, "failed to decode gateway response data")
		}
	}
	return nil
}

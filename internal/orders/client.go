package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const (
	idempotencyHeader           = "Idempotency-Key"
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("order service base url is required")

// LocalClient submits orders to an in-process order service.
type LocalClient struct {
	svc Service
}

// NewLocalClient wraps svc as a Submitter.
func NewLocalClient(svc Service) *LocalClient {
	return &LocalClient{svc: svc}
}

func (c *LocalClient) SubmitOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	order, err := c.svc.CreateOrder(ctx, input)
	if err != nil {
		return nil, submissionError(err, "order submission failed")
	}
	return order, nil
}

func (c *LocalClient) CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) error {
	if _, err := c.svc.Cancel(ctx, userID, orderID, reason); err != nil {
		return submissionError(err, "order cancellation failed")
	}
	return nil
}

func (c *LocalClient) ConfirmOrder(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) error {
	if _, err := c.svc.MarkPaid(ctx, userID, orderID, paymentIntentID); err != nil {
		return submissionError(err, "order confirmation failed")
	}
	return nil
}

// HTTPClient reaches a remote order service over its REST surface.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	token      func(ctx context.Context) string
}

// HTTPOption configures optional HTTPClient behavior.
type HTTPOption func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBearerToken sets the function that extracts the caller's access token
// from the request context so it can be forwarded.
func WithBearerToken(fn func(ctx context.Context) string) HTTPOption {
	return func(c *HTTPClient) {
		if fn != nil {
			c.token = fn
		}
	}
}

// NewHTTPClient builds a Submitter targeting baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...HTTPOption) (*HTTPClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &HTTPClient{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *HTTPClient) SubmitOrder(ctx context.Context, input CreateOrderInput) (*OrderDTO, error) {
	body := NewCreateOrderRequest(input.Shipping, input.Items, input.Currency)
	headers := map[string]string{}
	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		headers[idempotencyHeader] = key
	}

	var order OrderDTO
	path := fmt.Sprintf("orders/user/%s", url.PathEscape(input.UserID.String()))
	if err := c.do(ctx, http.MethodPost, path, body, headers, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *HTTPClient) CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) error {
	body := CancelOrderRequest{Reason: strings.TrimSpace(reason)}
	path := fmt.Sprintf("orders/%s/cancel", url.PathEscape(orderID.String()))
	return c.do(ctx, http.MethodPost, path, body, nil, nil)
}

// ConfirmOrder asks the remote payment surface to verify the intent, which
// settles the linked order on that side.
func (c *HTTPClient) ConfirmOrder(ctx context.Context, userID, orderID uuid.UUID, paymentIntentID string) error {
	intentID := strings.TrimSpace(paymentIntentID)
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	var verified struct {
		Status  enums.PaymentIntentStatus `json:"status"`
		OrderID *uuid.UUID                `json:"orderId"`
	}
	path := fmt.Sprintf("payments/verify/%s", url.PathEscape(intentID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &verified); err != nil {
		return err
	}
	if !verified.Status.IsSuccess() {
		return pkgerrors.New(pkgerrors.CodeOrderSubmission, fmt.Sprintf("payment %s not succeeded (%s)", intentID, verified.Status))
	}
	if verified.OrderID == nil || *verified.OrderID != orderID {
		return pkgerrors.New(pkgerrors.CodeOrderSubmission, "payment is not linked to this order")
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal order request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if token := c.token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeOrderSubmission, err, "order service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return remoteError(resp)
	}
	if out == nil {
		return nil
	}

	envelope := types.SuccessEnvelope{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeOrderSubmission, err, "decode order service response")
	}
	return nil
}

func remoteError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return pkgerrors.New(pkgerrors.CodeOrderSubmission, envelope.Error.Message).
			WithDetails(map[string]any{"status": resp.StatusCode, "code": envelope.Error.Code})
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return pkgerrors.New(pkgerrors.CodeOrderSubmission, fmt.Sprintf("order service returned %d: %s", resp.StatusCode, msg)).
		WithDetails(map[string]any{"status": resp.StatusCode})
}

// submissionError keeps the service's message but reclassifies the failure
// as an order submission error for the checkout caller.
func submissionError(err error, fallback string) error {
	msg := fallback
	var details any
	if typed := pkgerrors.As(err); typed != nil {
		if m := typed.Message(); m != "" {
			msg = m
		}
		details = typed.Details()
	}
	wrapped := pkgerrors.Wrap(pkgerrors.CodeOrderSubmission, err, msg)
	if details != nil {
		wrapped = wrapped.WithDetails(details)
	}
	return wrapped
}

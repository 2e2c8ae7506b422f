// Package gateway adalah adapter ke Pakasir (QRIS): buat transaksi & ambil detail.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-qris-store.git/internal/logger"
	"github.com/ariefcatur/go-qris-store.git/internal/metrics"
)

const (
	DefaultBaseURL = "https://app.pakasir.com"
	defaultTimeout = 15 * time.Second
	maxLoggedBody  = 512
)

var ErrNoPaymentNumber = errors.New("gateway response has no payment number")

// StatusError: gateway membalas non-2xx.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pakasir %s failed: %d %s", e.Op, e.Status, e.Body)
}

type Client struct {
	baseURL string
	project string
	apiKey  string
	http    *http.Client
	metrics *metrics.Store
	log     *zap.Logger
}

type Options struct {
	BaseURL    string
	Project    string
	APIKey     string
	HTTPClient *http.Client
	Metrics    *metrics.Store
	Log        *zap.Logger
}

func New(opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		project: opts.Project,
		apiKey:  opts.APIKey,
		http:    opts.HTTPClient,
		metrics: opts.Metrics,
		log:     opts.Log,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.log = c.log.Named("gateway").With(zap.String("project", c.project), zap.String("api_key", logger.MaskSecret(c.apiKey)))
	return c
}

// Intent: hasil create QRIS. PaymentNumber adalah string QR yang dirender ke user.
type Intent struct {
	PaymentNumber string
	Raw           json.RawMessage
}

// Detail: dokumen transactiondetail apa adanya + hasil klasifikasi.
type Detail struct {
	Raw        json.RawMessage
	Paid       bool
	Recognized bool
}

type createRequest struct {
	Project string `json:"project"`
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
	APIKey  string `json:"api_key"`
}

// CreateQRIS membuat transaksi QRIS untuk orderID dengan nominal amount (sudah termasuk kode unik).
func (c *Client) CreateQRIS(ctx context.Context, orderID string, amount int64) (in Intent, err error) {
	started := time.Now()
	defer func() { c.metrics.GatewayCall("create", started, err) }()

	body, err := json.Marshal(createRequest{Project: c.project, OrderID: orderID, Amount: amount, APIKey: c.apiKey})
	if err != nil {
		return Intent{}, fmt.Errorf("marshal create request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/transactioncreate/qris", bytes.NewReader(body))
	if err != nil {
		return Intent{}, fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req, "create")
	if err != nil {
		return Intent{}, err
	}

	num, err := paymentNumber(raw)
	if err != nil {
		c.log.Warn("create response without payment number", zap.String("order_id", orderID), zap.String("body", truncate(raw)))
		return Intent{}, err
	}
	return Intent{PaymentNumber: num, Raw: raw}, nil
}

// Detail mengambil status transaksi. Klasifikasi fail-closed; bentuk asing dicatat untuk review manual.
func (c *Client) Detail(ctx context.Context, orderID string, amount int64) (d Detail, err error) {
	started := time.Now()
	defer func() { c.metrics.GatewayCall("detail", started, err) }()

	q := url.Values{}
	q.Set("project", c.project)
	q.Set("api_key", c.apiKey)
	q.Set("order_id", orderID)
	q.Set("amount", strconv.FormatInt(amount, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/transactiondetail?"+q.Encode(), nil)
	if err != nil {
		return Detail{}, fmt.Errorf("build detail request: %w", err)
	}

	raw, err := c.do(req, "detail")
	if err != nil {
		return Detail{}, err
	}
	paid, recognized := Classify(raw)
	if !recognized {
		c.log.Warn("unrecognized detail shape", zap.String("order_id", orderID), zap.String("body", truncate(raw)))
	}
	return Detail{Raw: raw, Paid: paid, Recognized: recognized}, nil
}

func (c *Client) do(req *http.Request, op string) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pakasir %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("pakasir %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: truncate(body)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("pakasir %s: malformed response: %s", op, truncate(body))
	}
	return body, nil
}

// paymentNumber mencari string QR di objek "payment" atau root, dengan beberapa nama field.
func paymentNumber(raw []byte) (string, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	obj := root
	if p, ok := root["payment"]; ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(p, &inner) == nil && inner != nil {
			obj = inner
		}
	}
	for _, k := range []string{"payment_number", "qr_string", "qr", "paymentNumber"} {
		var s string
		if v, ok := obj[k]; ok && json.Unmarshal(v, &s) == nil && s != "" {
			return s, nil
		}
	}
	return "", ErrNoPaymentNumber
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}

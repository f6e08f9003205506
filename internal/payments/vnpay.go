package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vietcart/storefront/internal/platform/textutil"
)

const (
	vnpayVersion    = "2.1.0"
	vnpayCommandPay = "pay"
	vnpayTimeLayout = "20060102150405"
	vnpayOrderType  = "other"
	vnpayCurrency   = "VND"

	// ResponseCodeSuccess is VNPay's code for a captured payment.
	ResponseCodeSuccess = "00"
)

// VNPay timestamps are expressed in Indochina time regardless of server locale.
var vnpayLocation = time.FixedZone("ICT", 7*60*60)

// VNPayConfig carries merchant credentials and endpoints for the gateway.
type VNPayConfig struct {
	TmnCode     string
	HashSecret  string
	PayURL      string
	APIURL      string
	ReturnURL   string
	ExpireAfter time.Duration
}

// VNPayProvider implements Provider against the VNPay payment gateway.
type VNPayProvider struct {
	cfg    VNPayConfig
	client *http.Client
	now    func() time.Time
}

// VNPayOption customises provider construction.
type VNPayOption func(*VNPayProvider)

// WithHTTPClient overrides the HTTP client used for the transaction API.
func WithHTTPClient(client *http.Client) VNPayOption {
	return func(p *VNPayProvider) {
		if client != nil {
			p.client = client
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) VNPayOption {
	return func(p *VNPayProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// NewVNPayProvider validates the merchant configuration and returns a provider.
func NewVNPayProvider(cfg VNPayConfig, opts ...VNPayOption) (*VNPayProvider, error) {
	if strings.TrimSpace(cfg.TmnCode) == "" {
		return nil, errors.New("vnpay: tmn code is required")
	}
	if strings.TrimSpace(cfg.HashSecret) == "" {
		return nil, errors.New("vnpay: hash secret is required")
	}
	if strings.TrimSpace(cfg.PayURL) == "" {
		return nil, errors.New("vnpay: pay url is required")
	}
	if strings.TrimSpace(cfg.ReturnURL) == "" {
		return nil, errors.New("vnpay: return url is required")
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 15 * time.Minute
	}

	provider := &VNPayProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(provider)
	}
	return provider, nil
}

// Name implements Provider.
func (p *VNPayProvider) Name() string { return "vnpay" }

// CreatePayment builds the signed payment URL the buyer is redirected to.
// The gateway expects amounts multiplied by 100 and parameters signed with
// HMAC-SHA512 over the sorted, URL-encoded query string.
func (p *VNPayProvider) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentSession, error) {
	if err := ctx.Err(); err != nil {
		return PaymentSession{}, err
	}
	if req.Amount <= 0 {
		return PaymentSession{}, errors.New("vnpay: amount must be positive")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return PaymentSession{}, errors.New("vnpay: order id is required")
	}

	now := p.now().In(vnpayLocation)
	expires := now.Add(p.cfg.ExpireAfter)

	orderInfo := strings.TrimSpace(req.OrderInfo)
	if orderInfo == "" {
		orderInfo = "Thanh toan don hang " + orderID
	}
	clientIP := strings.TrimSpace(req.ClientIP)
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}
	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		locale = "vn"
	}

	params := map[string]string{
		"vnp_Version":    vnpayVersion,
		"vnp_Command":    vnpayCommandPay,
		"vnp_TmnCode":    p.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Amount*100, 10),
		"vnp_CurrCode":   vnpayCurrency,
		"vnp_TxnRef":     orderID,
		"vnp_OrderInfo":  orderInfo,
		"vnp_OrderType":  vnpayOrderType,
		"vnp_Locale":     locale,
		"vnp_ReturnUrl":  p.cfg.ReturnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": now.Format(vnpayTimeLayout),
		"vnp_ExpireDate": expires.Format(vnpayTimeLayout),
	}
	if bankCode := strings.TrimSpace(req.BankCode); bankCode != "" {
		params["vnp_BankCode"] = bankCode
	}

	query := signedQuery(params, p.cfg.HashSecret)

	return PaymentSession{
		Reference:   orderID,
		RedirectURL: p.cfg.PayURL + "?" + query,
		Amount:      req.Amount,
		ExpiresAt:   expires.UTC(),
	}, nil
}

// VerifyReturn validates the signature of a redirect or IPN callback. Only
// vnp_ prefixed parameters participate in the hash; the signature itself and
// its type marker are excluded.
func (p *VNPayProvider) VerifyReturn(params url.Values) (VerifiedReturn, error) {
	received := params.Get("vnp_SecureHash")
	if received == "" {
		return VerifiedReturn{}, errors.New("vnpay: missing secure hash")
	}

	signable := make(map[string]string)
	for key := range params {
		if !strings.HasPrefix(key, "vnp_") {
			continue
		}
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		signable[key] = params.Get(key)
	}

	expected := hmacSHA512(p.cfg.HashSecret, encodeQuery(signable))
	valid := strings.EqualFold(expected, received)

	verified := VerifiedReturn{
		OrderID:       params.Get("vnp_TxnRef"),
		TransactionNo: params.Get("vnp_TransactionNo"),
		BankCode:      params.Get("vnp_BankCode"),
		ResponseCode:  params.Get("vnp_ResponseCode"),
		Valid:         valid,
	}

	if raw := params.Get("vnp_Amount"); raw != "" {
		if amount, err := strconv.ParseInt(raw, 10, 64); err == nil {
			verified.Amount = amount / 100
		}
	}
	if raw := params.Get("vnp_PayDate"); raw != "" {
		if paidAt, err := time.ParseInLocation(vnpayTimeLayout, raw, vnpayLocation); err == nil {
			verified.PaidAt = paidAt.UTC()
		}
	}

	verified.Succeeded = valid && verified.ResponseCode == ResponseCodeSuccess
	return verified, nil
}

// QueryTransaction calls the merchant API to look up a past payment. The
// request signature is HMAC-SHA512 over a pipe-joined field tuple.
func (p *VNPayProvider) QueryTransaction(ctx context.Context, req QueryRequest) (TransactionDetails, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return TransactionDetails{}, errors.New("vnpay: order id is required")
	}

	now := p.now().In(vnpayLocation)
	requestID := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	createDate := now.Format(vnpayTimeLayout)
	clientIP := strings.TrimSpace(req.ClientIP)
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}
	orderInfo := "Truy van giao dich " + orderID

	hashData := strings.Join([]string{
		requestID,
		vnpayVersion,
		"querydr",
		p.cfg.TmnCode,
		orderID,
		req.TransactionDate,
		createDate,
		clientIP,
		orderInfo,
	}, "|")

	payload := map[string]string{
		"vnp_RequestId":       requestID,
		"vnp_Version":         vnpayVersion,
		"vnp_Command":         "querydr",
		"vnp_TmnCode":         p.cfg.TmnCode,
		"vnp_TxnRef":          orderID,
		"vnp_OrderInfo":       orderInfo,
		"vnp_TransactionDate": req.TransactionDate,
		"vnp_CreateDate":      createDate,
		"vnp_IpAddr":          clientIP,
		"vnp_SecureHash":      hmacSHA512(p.cfg.HashSecret, hashData),
	}

	raw, err := p.postJSON(ctx, payload)
	if err != nil {
		return TransactionDetails{}, err
	}
	return p.decodeTransaction(orderID, raw), nil
}

// Refund requests a full or partial refund through the merchant API.
func (p *VNPayProvider) Refund(ctx context.Context, req RefundRequest) (TransactionDetails, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return TransactionDetails{}, errors.New("vnpay: order id is required")
	}
	if req.Amount <= 0 {
		return TransactionDetails{}, errors.New("vnpay: amount must be positive")
	}
	transactionType := strings.TrimSpace(req.TransactionType)
	if transactionType == "" {
		// 02 full refund, 03 partial.
		transactionType = "02"
	}
	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		createdBy = "system"
	}

	now := p.now().In(vnpayLocation)
	requestID := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	createDate := now.Format(vnpayTimeLayout)
	clientIP := strings.TrimSpace(req.ClientIP)
	if clientIP == "" {
		clientIP = "127.0.0.1"
	}
	amount := strconv.FormatInt(req.Amount*100, 10)
	orderInfo := "Hoan tien giao dich " + orderID

	hashData := strings.Join([]string{
		requestID,
		vnpayVersion,
		"refund",
		p.cfg.TmnCode,
		transactionType,
		orderID,
		amount,
		req.TransactionNo,
		req.TransactionDate,
		createdBy,
		createDate,
		clientIP,
		orderInfo,
	}, "|")

	payload := map[string]string{
		"vnp_RequestId":       requestID,
		"vnp_Version":         vnpayVersion,
		"vnp_Command":         "refund",
		"vnp_TmnCode":         p.cfg.TmnCode,
		"vnp_TransactionType": transactionType,
		"vnp_TxnRef":          orderID,
		"vnp_Amount":          amount,
		"vnp_TransactionNo":   req.TransactionNo,
		"vnp_TransactionDate": req.TransactionDate,
		"vnp_CreateBy":        createdBy,
		"vnp_CreateDate":      createDate,
		"vnp_IpAddr":          clientIP,
		"vnp_OrderInfo":       orderInfo,
		"vnp_SecureHash":      hmacSHA512(p.cfg.HashSecret, hashData),
	}

	raw, err := p.postJSON(ctx, payload)
	if err != nil {
		return TransactionDetails{}, err
	}
	details := p.decodeTransaction(orderID, raw)
	if details.Status == StatusSucceeded {
		details.Status = StatusRefunded
	}
	return details, nil
}

func (p *VNPayProvider) postJSON(ctx context.Context, payload map[string]string) (map[string]any, error) {
	if strings.TrimSpace(p.cfg.APIURL) == "" {
		return nil, errors.New("vnpay: api url is not configured")
	}

	body, err := json.Marshal(textutil.NormalizeStringMap(payload))
	if err != nil {
		return nil, fmt.Errorf("vnpay: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vnpay: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vnpay: call transaction api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vnpay: transaction api returned status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("vnpay: decode response: %w", err)
	}
	return raw, nil
}

func (p *VNPayProvider) decodeTransaction(orderID string, raw map[string]any) TransactionDetails {
	details := TransactionDetails{
		OrderID: orderID,
		Status:  StatusFailed,
		Raw:     raw,
	}
	if code, ok := raw["vnp_ResponseCode"].(string); ok {
		details.ResponseCode = code
		if code == ResponseCodeSuccess {
			details.Status = StatusSucceeded
		}
	}
	if txnNo, ok := raw["vnp_TransactionNo"].(string); ok {
		details.TransactionNo = txnNo
	}
	switch amount := raw["vnp_Amount"].(type) {
	case string:
		if parsed, err := strconv.ParseInt(amount, 10, 64); err == nil {
			details.Amount = parsed / 100
		}
	case float64:
		details.Amount = int64(amount) / 100
	}
	return details
}

// signedQuery encodes and signs the parameter set, appending vnp_SecureHash.
func signedQuery(params map[string]string, secret string) string {
	query := encodeQuery(params)
	return query + "&vnp_SecureHash=" + hmacSHA512(secret, query)
}

// encodeQuery sorts parameters by key and URL-encodes values the way the
// gateway verifies them (spaces become plus signs).
func encodeQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for i, key := range keys {
		if i > 0 {
			builder.WriteByte('&')
		}
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(url.QueryEscape(params[key]))
	}
	return builder.String()
}

func hmacSHA512(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func testProvider(t *testing.T, opts ...VNPayOption) *VNPayProvider {
	t.Helper()
	cfg := VNPayConfig{
		TmnCode:     "VCART01",
		HashSecret:  "topsecret",
		PayURL:      "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		APIURL:      "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction",
		ReturnURL:   "https://shop.example.com/checkout/return",
		ExpireAfter: 15 * time.Minute,
	}
	base := []VNPayOption{WithClock(func() time.Time {
		return time.Date(2025, time.June, 1, 3, 0, 0, 0, time.UTC)
	})}
	provider, err := NewVNPayProvider(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewVNPayProvider: %v", err)
	}
	return provider
}

func TestVNPayCreatePaymentSignsQuery(t *testing.T) {
	provider := testProvider(t)

	session, err := provider.CreatePayment(context.Background(), PaymentRequest{
		OrderID:   "ORD1748746800000",
		Amount:    329000,
		OrderInfo: "Thanh toan don hang ORD1748746800000",
		BankCode:  "NCB",
		ClientIP:  "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("CreatePayment returned error: %v", err)
	}

	parsed, err := url.Parse(session.RedirectURL)
	if err != nil {
		t.Fatalf("redirect url does not parse: %v", err)
	}
	values := parsed.Query()

	if got := values.Get("vnp_Amount"); got != "32900000" {
		t.Errorf("expected amount in hundredths 32900000, got %s", got)
	}
	if got := values.Get("vnp_Command"); got != "pay" {
		t.Errorf("unexpected command %s", got)
	}
	if got := values.Get("vnp_Version"); got != "2.1.0" {
		t.Errorf("unexpected version %s", got)
	}
	if got := values.Get("vnp_BankCode"); got != "NCB" {
		t.Errorf("unexpected bank code %s", got)
	}
	// 03:00 UTC is 10:00 in Indochina time.
	if got := values.Get("vnp_CreateDate"); got != "20250601100000" {
		t.Errorf("unexpected create date %s", got)
	}
	if got := values.Get("vnp_ExpireDate"); got != "20250601101500" {
		t.Errorf("unexpected expire date %s", got)
	}

	// The redirect must verify with the same secret.
	verified, err := provider.VerifyReturn(values)
	if err != nil {
		t.Fatalf("VerifyReturn returned error: %v", err)
	}
	if !verified.Valid {
		t.Fatal("expected generated query to verify")
	}
	if verified.OrderID != "ORD1748746800000" {
		t.Errorf("unexpected order id %s", verified.OrderID)
	}
	if verified.Amount != 329000 {
		t.Errorf("expected amount restored to 329000, got %d", verified.Amount)
	}
}

func TestVNPayCreatePaymentRejectsNonPositiveAmount(t *testing.T) {
	provider := testProvider(t)

	if _, err := provider.CreatePayment(context.Background(), PaymentRequest{OrderID: "ORD1", Amount: 0}); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := provider.CreatePayment(context.Background(), PaymentRequest{OrderID: "ORD1", Amount: -5}); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestVNPayVerifyReturnDetectsTampering(t *testing.T) {
	provider := testProvider(t)

	session, err := provider.CreatePayment(context.Background(), PaymentRequest{
		OrderID: "ORD42",
		Amount:  150000,
	})
	if err != nil {
		t.Fatalf("CreatePayment returned error: %v", err)
	}
	parsed, _ := url.Parse(session.RedirectURL)
	values := parsed.Query()

	values.Set("vnp_Amount", "99900000")
	verified, err := provider.VerifyReturn(values)
	if err != nil {
		t.Fatalf("VerifyReturn returned error: %v", err)
	}
	if verified.Valid {
		t.Fatal("expected tampered query to fail verification")
	}
	if verified.Succeeded {
		t.Fatal("tampered query must never count as succeeded")
	}
}

func TestVNPayVerifyReturnSuccessCode(t *testing.T) {
	provider := testProvider(t)

	params := map[string]string{
		"vnp_TmnCode":       "VCART01",
		"vnp_TxnRef":        "ORD77",
		"vnp_Amount":        "15000000",
		"vnp_ResponseCode":  "00",
		"vnp_TransactionNo": "14422574",
		"vnp_BankCode":      "NCB",
		"vnp_PayDate":       "20250601102530",
	}
	query := signedQuery(params, "topsecret")
	values, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}

	verified, err := provider.VerifyReturn(values)
	if err != nil {
		t.Fatalf("VerifyReturn returned error: %v", err)
	}
	if !verified.Valid || !verified.Succeeded {
		t.Fatalf("expected a valid successful return, got %+v", verified)
	}
	if verified.Amount != 150000 {
		t.Errorf("unexpected amount %d", verified.Amount)
	}
	if verified.TransactionNo != "14422574" {
		t.Errorf("unexpected transaction no %s", verified.TransactionNo)
	}
	if verified.PaidAt.IsZero() {
		t.Error("expected pay date to be parsed")
	}
}

func TestVNPayVerifyReturnMissingHash(t *testing.T) {
	provider := testProvider(t)

	if _, err := provider.VerifyReturn(url.Values{"vnp_TxnRef": {"ORD1"}}); err == nil {
		t.Fatal("expected error when secure hash is absent")
	}
}

func TestVNPayQueryTransaction(t *testing.T) {
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := readJSON(r, &gotPayload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"vnp_ResponseCode":"00","vnp_TransactionNo":"14422574","vnp_Amount":"15000000"}`))
	}))
	defer server.Close()

	provider := testProvider(t)
	provider.cfg.APIURL = server.URL

	details, err := provider.QueryTransaction(context.Background(), QueryRequest{
		OrderID:         "ORD77",
		TransactionDate: "20250601102530",
	})
	if err != nil {
		t.Fatalf("QueryTransaction returned error: %v", err)
	}

	if details.Status != StatusSucceeded {
		t.Fatalf("expected succeeded status, got %s", details.Status)
	}
	if details.Amount != 150000 {
		t.Errorf("unexpected amount %d", details.Amount)
	}
	if gotPayload["vnp_Command"] != "querydr" {
		t.Errorf("unexpected command %s", gotPayload["vnp_Command"])
	}
	if gotPayload["vnp_TxnRef"] != "ORD77" {
		t.Errorf("unexpected txn ref %s", gotPayload["vnp_TxnRef"])
	}
	if gotPayload["vnp_SecureHash"] == "" {
		t.Error("expected request to be signed")
	}
}

func TestVNPayRefund(t *testing.T) {
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := readJSON(r, &gotPayload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"vnp_ResponseCode":"00","vnp_TransactionNo":"14422575"}`))
	}))
	defer server.Close()

	provider := testProvider(t)
	provider.cfg.APIURL = server.URL

	details, err := provider.Refund(context.Background(), RefundRequest{
		OrderID:         "ORD77",
		TransactionNo:   "14422574",
		TransactionDate: "20250601102530",
		Amount:          150000,
		CreatedBy:       "support",
	})
	if err != nil {
		t.Fatalf("Refund returned error: %v", err)
	}

	if details.Status != StatusRefunded {
		t.Fatalf("expected refunded status, got %s", details.Status)
	}
	if gotPayload["vnp_Command"] != "refund" {
		t.Errorf("unexpected command %s", gotPayload["vnp_Command"])
	}
	if gotPayload["vnp_TransactionType"] != "02" {
		t.Errorf("expected full refund type, got %s", gotPayload["vnp_TransactionType"])
	}
	if gotPayload["vnp_Amount"] != "15000000" {
		t.Errorf("unexpected amount %s", gotPayload["vnp_Amount"])
	}
}

func TestEncodeQuerySortsAndEscapes(t *testing.T) {
	query := encodeQuery(map[string]string{
		"vnp_OrderInfo": "Thanh toan don hang",
		"vnp_Amount":    "100",
	})
	want := "vnp_Amount=100&vnp_OrderInfo=Thanh+toan+don+hang"
	if query != want {
		t.Fatalf("expected %q, got %q", want, query)
	}
}

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

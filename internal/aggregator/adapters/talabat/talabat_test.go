package talabat

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sufrahq/sufra/internal/aggregator/domain"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	adapter := New()
	body := []byte(`{"id":"TLB-1","total":50}`)
	secret := "hook-secret"

	if !adapter.VerifySignature(body, sign(body, secret), secret) {
		t.Fatalf("expected valid signature to verify")
	}
	if adapter.VerifySignature([]byte(`{"id":"TLB-1","total":999}`), sign(body, secret), secret) {
		t.Fatalf("expected tampered body to fail verification")
	}
	if adapter.VerifySignature(body, "", secret) {
		t.Fatalf("expected missing signature to fail verification")
	}
	if adapter.VerifySignature(body, sign(body, secret), "") {
		t.Fatalf("expected missing secret to fail verification")
	}
}

func TestParseOrderReferenceShape(t *testing.T) {
	adapter := New()
	payload := []byte(`{
		"id": "TLB-555",
		"total": 120,
		"items": [{"name": "Burger", "quantity": 2, "unit_price": 60}],
		"payment_method": "cash",
		"customer": {"name": "Ali", "phone": "0500000000", "address": "Riyadh"}
	}`)

	order, err := adapter.ParseOrder(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if order.ProviderOrderID != "TLB-555" {
		t.Fatalf("provider order id = %q", order.ProviderOrderID)
	}
	if order.PaymentMethod != domain.PaymentCOD {
		t.Fatalf("payment method = %q, want cod", order.PaymentMethod)
	}
	if order.Financials.Total != 120 {
		t.Fatalf("total = %v", order.Financials.Total)
	}
	if order.Financials.Currency != "SAR" {
		t.Fatalf("currency = %q, want default SAR", order.Financials.Currency)
	}
	if len(order.Items) != 1 {
		t.Fatalf("items = %d", len(order.Items))
	}
	item := order.Items[0]
	if item.Name != "Burger" || item.Qty != 2 || item.Price != 60 {
		t.Fatalf("item = %+v", item)
	}
	if order.Customer.Name != "Ali" || order.Customer.Phone != "0500000000" {
		t.Fatalf("customer = %+v", order.Customer)
	}
}

func TestParseOrderVariantFieldNames(t *testing.T) {
	adapter := New()
	payload := []byte(`{
		"order_id": "TLB-777",
		"total_amount": "75.5",
		"currency": "AED",
		"delivery_charge": 10,
		"paymentMethod": "card",
		"customer_name": "Sara",
		"items": [{"item_id": "SKU-9", "qty": 3, "price": 20}]
	}`)

	order, err := adapter.ParseOrder(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if order.ProviderOrderID != "TLB-777" {
		t.Fatalf("provider order id = %q", order.ProviderOrderID)
	}
	if order.Financials.Total != 75.5 {
		t.Fatalf("total = %v", order.Financials.Total)
	}
	if order.Financials.Currency != "AED" {
		t.Fatalf("currency = %q", order.Financials.Currency)
	}
	if order.Financials.DeliveryFee != 10 {
		t.Fatalf("delivery fee = %v", order.Financials.DeliveryFee)
	}
	if order.PaymentMethod != domain.PaymentOnline {
		t.Fatalf("payment method = %q, want online", order.PaymentMethod)
	}
	if order.Customer.Name != "Sara" {
		t.Fatalf("customer name = %q", order.Customer.Name)
	}
	item := order.Items[0]
	if item.ProviderItemID != "SKU-9" || item.Qty != 3 || item.Price != 20 {
		t.Fatalf("item = %+v", item)
	}
}

func TestParseOrderDefaultsAndErrors(t *testing.T) {
	adapter := New()

	if _, err := adapter.ParseOrder([]byte(`not-json`)); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload error, got %v", err)
	}
	if _, err := adapter.ParseOrder([]byte(`{"total":10}`)); !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected missing order id to be rejected, got %v", err)
	}

	order, err := adapter.ParseOrder([]byte(`{"id":"TLB-1","items":[{"name":"Tea"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	item := order.Items[0]
	if item.Qty != 1 || item.Price != 0 {
		t.Fatalf("expected qty default 1 and price default 0, got %+v", item)
	}
}

func TestMapStatus(t *testing.T) {
	adapter := New()
	if got := adapter.MapStatus(domain.StatusReady); got != "READY_FOR_PICKUP" {
		t.Fatalf("ready mapped to %q", got)
	}
	if got := adapter.MapStatus("weird_state"); got != "WEIRD_STATE" {
		t.Fatalf("unknown status mapped to %q, want uppercased passthrough", got)
	}
}

func TestPushStatus(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := New()
	creds := domain.Credentials{APIKey: "key-1", Endpoint: server.URL}
	resp, err := adapter.PushStatus(context.Background(), "TLB-5", domain.StatusAccepted, creds)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if gotPath != "/orders/TLB-5/status" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer key-1" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["status"] != "ACCEPTED" {
		t.Fatalf("pushed status = %q", gotBody["status"])
	}
}

func TestPushStatusServerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := New()
	creds := domain.Credentials{Endpoint: server.URL}
	if _, err := adapter.PushStatus(context.Background(), "TLB-5", domain.StatusReady, creds); err == nil {
		t.Fatalf("expected error on 502 response")
	}
}

func TestTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := New()
	if !adapter.TestConnection(context.Background(), domain.Credentials{Endpoint: server.URL}) {
		t.Fatalf("expected connection test to pass")
	}

	server.Close()
	if adapter.TestConnection(context.Background(), domain.Credentials{Endpoint: server.URL}) {
		t.Fatalf("expected connection test to fail against closed server")
	}
}

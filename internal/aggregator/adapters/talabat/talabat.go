package talabat

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sufrahq/sufra/internal/aggregator/domain"
)

const (
	signatureHeader = "x-talabat-signature"
	defaultEndpoint = "https://api.talabat.com/pos/v1"
	defaultCurrency = "SAR"

	pushTimeout = 10 * time.Second
	syncTimeout = 30 * time.Second
)

// Adapter is the reference integration; the only fully implemented one.
type Adapter struct {
	client *http.Client
}

func New() *Adapter {
	return &Adapter{client: &http.Client{}}
}

func (a *Adapter) Provider() string { return "talabat" }

func (a *Adapter) Capabilities() domain.Capabilities {
	return domain.Capabilities{
		Webhook:      true,
		PushStatus:   true,
		SyncMenu:     true,
		CODSupported: true,
		Polling:      false,
	}
}

func (a *Adapter) DisplayInfo() domain.DisplayInfo {
	return domain.DisplayInfo{
		Name:       "Talabat",
		Color:      "#FF5A00",
		BadgeClass: "badge-talabat",
		Icon:       "talabat",
	}
}

func (a *Adapter) SignatureHeader() string { return signatureHeader }

// VerifySignature recomputes HMAC-SHA256 over the exact raw bytes and
// compares in constant time. No parsing happens before this check.
func (a *Adapter) VerifySignature(rawBody []byte, signature, secret string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// ParseOrder tolerates the field-name variants Talabat sends across
// payload versions; missing optional fields default instead of failing.
func (a *Adapter) ParseOrder(rawPayload []byte) (*domain.NormalizedOrder, error) {
	var payload map[string]any
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	orderID := readString(payload, "id", "order_id", "orderId")
	if orderID == "" {
		return nil, domain.ErrInvalidPayload
	}

	order := &domain.NormalizedOrder{
		ProviderOrderID: orderID,
		Customer:        parseCustomer(payload),
		Items:           parseItems(payload),
		PaymentMethod:   normalizePayment(readString(payload, "payment_method", "paymentMethod")),
		Notes:           readString(payload, "notes", "comment"),
		Financials: domain.Financials{
			Subtotal:    readFloat(payload, "subtotal", "sub_total"),
			Total:       readFloat(payload, "total", "total_amount", "grand_total"),
			VAT:         readFloat(payload, "vat", "tax"),
			Currency:    readString(payload, "currency"),
			Commission:  readFloat(payload, "commission"),
			ServiceFee:  readFloat(payload, "service_fee"),
			DeliveryFee: readFloat(payload, "delivery_fee", "delivery_charge"),
		},
	}
	if order.Financials.Currency == "" {
		order.Financials.Currency = defaultCurrency
	}
	return order, nil
}

var statusMap = map[string]string{
	domain.StatusPending:   "RECEIVED",
	domain.StatusAccepted:  "ACCEPTED",
	domain.StatusPreparing: "PREPARING",
	domain.StatusReady:     "READY_FOR_PICKUP",
	domain.StatusDelivered: "DELIVERED",
	domain.StatusRejected:  "REJECTED",
}

func (a *Adapter) MapStatus(internalStatus string) string {
	if mapped, ok := statusMap[internalStatus]; ok {
		return mapped
	}
	return strings.ToUpper(internalStatus)
}

func (a *Adapter) PushStatus(ctx context.Context, providerOrderID, internalStatus string, creds domain.Credentials) (*domain.ProviderResponse, error) {
	body, err := json.Marshal(map[string]string{"status": a.MapStatus(internalStatus)})
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/orders/%s/status", endpoint(creds), providerOrderID)
	return a.post(ctx, url, body, creds, pushTimeout)
}

func (a *Adapter) SyncMenu(ctx context.Context, items []domain.MenuItem, creds domain.Credentials) (*domain.ProviderResponse, error) {
	body, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return nil, err
	}
	return a.post(ctx, endpoint(creds)+"/menu", body, creds, syncTimeout)
}

func (a *Adapter) TestConnection(ctx context.Context, creds domain.Credentials) bool {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(creds)+"/ping", nil)
	if err != nil {
		return false
	}
	authorize(req, creds)

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < http.StatusBadRequest
}

func (a *Adapter) post(ctx context.Context, url string, body []byte, creds domain.Credentials, timeout time.Duration) (*domain.ProviderResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	authorize(req, creds)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("talabat returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return &domain.ProviderResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func endpoint(creds domain.Credentials) string {
	if e := strings.TrimRight(strings.TrimSpace(creds.Endpoint), "/"); e != "" {
		return e
	}
	return defaultEndpoint
}

func authorize(req *http.Request, creds domain.Credentials) {
	if creds.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	}
	if creds.ClientID != "" {
		req.Header.Set("X-Client-Id", creds.ClientID)
	}
}

func parseCustomer(payload map[string]any) domain.Customer {
	if nested, ok := payload["customer"].(map[string]any); ok {
		return domain.Customer{
			Name:    readString(nested, "name"),
			Phone:   readString(nested, "phone", "mobile"),
			Address: readString(nested, "address", "delivery_address"),
		}
	}
	return domain.Customer{
		Name:    readString(payload, "customer_name"),
		Phone:   readString(payload, "customer_phone"),
		Address: readString(payload, "customer_address"),
	}
}

func parseItems(payload map[string]any) []domain.OrderItem {
	raw, ok := payload["items"].([]any)
	if !ok {
		return nil
	}
	items := make([]domain.OrderItem, 0, len(raw))
	for _, entry := range raw {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		qty := readFloat(fields, "quantity", "qty")
		if qty == 0 {
			qty = 1
		}
		items = append(items, domain.OrderItem{
			ProviderItemID: readString(fields, "id", "item_id", "sku"),
			Name:           readString(fields, "name"),
			Qty:            qty,
			Price:          readFloat(fields, "unit_price", "price"),
			Notes:          readString(fields, "notes"),
		})
	}
	return items
}

func normalizePayment(method string) string {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "cash", "cod", "cash_on_delivery":
		return domain.PaymentCOD
	default:
		return domain.PaymentOnline
	}
}

func readString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch cast := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(cast); trimmed != "" {
				return trimmed
			}
		case float64:
			if cast != 0 {
				return strconv.FormatFloat(cast, 'f', -1, 64)
			}
		}
	}
	return ""
}

func readFloat(fields map[string]any, keys ...string) float64 {
	for _, key := range keys {
		value, ok := fields[key]
		if !ok {
			continue
		}
		switch cast := value.(type) {
		case float64:
			return cast
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(cast), 64); err == nil {
				return parsed
			}
		}
	}
	return 0
}

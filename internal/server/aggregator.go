package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	aggregatordomain "github.com/sufrahq/sufra/internal/aggregator/domain"
)

// Webhook payloads are small JSON documents; a megabyte is generous.
const maxWebhookBody = 1 << 20

func (s *Server) HandleAggregatorWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	adapter := s.registry.Get(provider)
	if adapter == nil {
		AbortWithError(c, aggregatordomain.ErrUnknownProvider)
		return
	}

	// The raw bytes must reach the service untouched; the signature is
	// computed over them, not over any re-serialized form.
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	signature := c.GetHeader(adapter.SignatureHeader())

	result, err := s.aggregatorSvc.IngestWebhook(c.Request.Context(), provider, payload, signature)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"order_id":  result.Order.ID.String(),
		"duplicate": result.Duplicate,
	})
}

func (s *Server) ListAggregatorProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.aggregatorSvc.Providers()})
}

func (s *Server) ListAggregatorOrders(c *gin.Context) {
	limit, err := parseOptionalInt64(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be an integer"))
		return
	}

	filter := aggregatordomain.OrderFilter{
		Provider: c.Query("provider"),
		Status:   c.Query("status"),
	}
	if limit != nil {
		filter.Limit = int(*limit)
	}

	orders, err := s.aggregatorSvc.ListOrders(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) GetAggregatorOrder(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, aggregatordomain.ErrOrderNotFound)
		return
	}

	order, events, err := s.aggregatorSvc.GetOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "events": events})
}

func (s *Server) AcceptAggregatorOrder(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, aggregatordomain.ErrOrderNotFound)
		return
	}

	result, err := s.aggregatorSvc.Accept(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":      result.Order,
		"sale_id":    result.SaleID.String(),
		"invoice_no": result.InvoiceNo,
	})
}

type rejectOrderRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RejectAggregatorOrder(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, aggregatordomain.ErrOrderNotFound)
		return
	}

	var req rejectOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	order, err := s.aggregatorSvc.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) MarkAggregatorOrderReady(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, aggregatordomain.ErrOrderNotFound)
		return
	}

	order, err := s.aggregatorSvc.MarkReady(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) RetryAggregatorOrder(c *gin.Context) {
	id, err := parsePathID(c.Param("id"))
	if err != nil {
		AbortWithError(c, aggregatordomain.ErrOrderNotFound)
		return
	}

	order, err := s.aggregatorSvc.Retry(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) SyncAggregatorMenu(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	if err := s.aggregatorSvc.SyncMenu(c.Request.Context(), provider); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) GetAggregatorConfig(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	view, err := s.aggregatorSvc.GetConfig(c.Request.Context(), provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": view})
}

type putConfigRequest struct {
	Enabled       bool   `json:"enabled"`
	APIKey        string `json:"api_key"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	WebhookSecret string `json:"webhook_secret"`
	Endpoint      string `json:"endpoint"`
}

func (s *Server) PutAggregatorConfig(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))

	var req putConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	view, err := s.aggregatorSvc.PutConfig(c.Request.Context(), provider, aggregatordomain.ConfigUpdate{
		Enabled:       req.Enabled,
		APIKey:        req.APIKey,
		ClientID:      req.ClientID,
		ClientSecret:  req.ClientSecret,
		WebhookSecret: req.WebhookSecret,
		Endpoint:      req.Endpoint,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": view})
}

func (s *Server) AggregatorHealth(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	health, err := s.aggregatorSvc.Health(c.Request.Context(), provider)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"health": health})
}

func (s *Server) AggregatorHealthAll(c *gin.Context) {
	health, err := s.aggregatorSvc.HealthAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"health": health})
}

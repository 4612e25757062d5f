package api

import (
	"errors"
	"net/http"
	"strconv"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/service"
	"settlement-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	orders      *service.OrderService
	payments    *service.PaymentService
	wallet      *service.WalletService
	stock       *service.StockService
	commissions *service.CommissionService
	jwtSecret   string
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	payments *service.PaymentService,
	wallet *service.WalletService,
	stock *service.StockService,
	commissions *service.CommissionService,
	jwtSecret string,
) *Handler {
	return &Handler{
		orders:      orders,
		payments:    payments,
		wallet:      wallet,
		stock:       stock,
		commissions: commissions,
		jwtSecret:   jwtSecret,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	// Gateway webhooks are unauthenticated and always answer 200.
	api.POST("/payments/mpesa/callback", h.mpesaCallback)
	api.POST("/payments/kcb/callback", h.kcbCallback)

	auth := api.Group("")
	auth.Use(authMiddleware(h.jwtSecret))
	{
		auth.POST("/orders", h.createOrder)
		auth.GET("/orders", h.listOrders)
		auth.GET("/orders/:id", h.getOrder)
		auth.PATCH("/orders/:id/cancel", h.cancelOrder)
		auth.GET("/orders/:id/payments", h.listOrderPayments)
		auth.PATCH("/orders/:id/status", requireRole(RoleAdmin), h.updateOrderStatus)

		auth.GET("/products/:id/pricing/:quantity", h.getQuote)
		auth.GET("/products/:id/availability", h.getAvailability)
		auth.GET("/products/:id/movements", requireRole(RoleAdmin), h.getMovements)
		auth.PATCH("/stock/:productId/adjust", requireRole(RoleAdmin), h.adjustStock)

		initiate := auth.Group("/payments")
		initiate.Use(rateLimitMiddleware("10-M"))
		{
			initiate.POST("/mpesa/stk-push", h.initiateMpesa)
			initiate.POST("/kcb/initiate", h.initiateKCB)
		}

		wallet := auth.Group("/wallet")
		{
			wallet.GET("/balance", h.walletBalance)
			wallet.GET("/transactions", h.walletTransactions)
			wallet.POST("/withdraw", rateLimitMiddleware("5-M"), h.walletWithdraw)
			wallet.POST("/credit", requireRole(RoleAdmin), h.walletCredit)
		}

		auth.GET("/commissions", requireRole(RoleAdmin, RoleSalesAgent), h.listCommissions)
		auth.PATCH("/commissions/:id/pay", requireRole(RoleAdmin), h.payCommission)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// createOrder runs the create-order protocol for the authenticated customer
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}
	req.CustomerID = userID(c)

	resp, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// listOrders returns the caller's orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder returns an order with its lines
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	order, items, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	if !isAdmin(c) && order.CustomerID != userID(c) {
		respondError(c, apperr.Forbidden("not your order"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

// cancelOrder runs the cancel-order protocol
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	order, _, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !isAdmin(c) && order.CustomerID != userID(c) {
		respondError(c, apperr.Forbidden("not your order"))
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	if err := h.orders.CancelOrder(c.Request.Context(), orderID, body.Reason); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// listOrderPayments returns the payment attempts recorded for an order
func (h *Handler) listOrderPayments(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	order, _, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !isAdmin(c) && order.CustomerID != userID(c) {
		respondError(c, apperr.Forbidden("not your order"))
		return
	}

	payments, err := h.payments.GetPaymentsForOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// updateOrderStatus applies an admin status mutation
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	if err := h.orders.UpdateStatus(c.Request.Context(), orderID, &req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// getQuote exposes the pricing resolver directly
func (h *Handler) getQuote(c *gin.Context) {
	productID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	quantity, err := strconv.Atoi(c.Param("quantity"))
	if err != nil || quantity < 1 {
		respondError(c, apperr.Validation("invalid quantity"))
		return
	}

	quote, err := h.orders.GetQuote(c.Request.Context(), productID, quantity)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// getAvailability returns the product's stock level
func (h *Handler) getAvailability(c *gin.Context) {
	productID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	stock, err := h.stock.Availability(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"product_id": productID, "stock_units": stock})
}

// getMovements lists recent inventory movements for a product
func (h *Handler) getMovements(c *gin.Context) {
	productID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	movements, err := h.stock.Movements(c.Request.Context(), productID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

// adjustStock applies a manual admin stock correction
func (h *Handler) adjustStock(c *gin.Context) {
	productID, err := pathID(c, "productId")
	if err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		StockUnits *int   `json:"stock_units" binding:"required"`
		Notes      string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	result, err := h.stock.Adjust(c.Request.Context(), productID, *req.StockUnits, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// initiateMpesa starts an STK push for an order
func (h *Handler) initiateMpesa(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	payment, err := h.payments.InitiateMpesa(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// initiateKCB starts a KCB mobile payment for an order
func (h *Handler) initiateKCB(c *gin.Context) {
	var req service.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	payment, err := h.payments.InitiateKCB(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payment)
}

// mpesaCallback handles the Daraja webhook. Internal failures are logged
// for reconciliation; the gateway always receives 200 per its contract.
func (h *Handler) mpesaCallback(c *gin.Context) {
	var cb gateway.STKCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		h.logger.Error("Malformed M-Pesa callback", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	if err := h.payments.HandleMpesaCallback(c.Request.Context(), &cb); err != nil {
		h.logger.Error("M-Pesa callback processing failed",
			zap.String("external_ref", cb.ExternalRef()),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}

// kcbCallback handles the KCB webhook; always answers 200.
func (h *Handler) kcbCallback(c *gin.Context) {
	var cb gateway.KCBCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		h.logger.Error("Malformed KCB callback", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if err := h.payments.HandleKCBCallback(c.Request.Context(), &cb); err != nil {
		h.logger.Error("KCB callback processing failed",
			zap.String("external_ref", cb.TransactionReference),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// walletBalance returns the caller's derived wallet balance
func (h *Handler) walletBalance(c *gin.Context) {
	balance, err := h.wallet.Balance(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance.StringFixed(2)})
}

// walletTransactions returns a page of the caller's ledger
func (h *Handler) walletTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	transactions, err := h.wallet.Transactions(c.Request.Context(), userID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

// walletWithdraw debits the caller's wallet
func (h *Handler) walletWithdraw(c *gin.Context) {
	var req struct {
		Amount      string `json:"amount" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.wallet.Withdraw(c.Request.Context(), userID(c), amount, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// walletCredit appends a manual credit to a user's ledger (admin action,
// used for goodwill adjustments and offline refunds)
func (h *Handler) walletCredit(c *gin.Context) {
	var req struct {
		UserID      int64  `json:"user_id" binding:"required"`
		Amount      string `json:"amount" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.CodeValidation, "invalid request body"))
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	transaction, err := h.wallet.Credit(c.Request.Context(), req.UserID, amount,
		models.WalletTxCredit, "manual", userID(c), req.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, transaction)
}

// listCommissions returns commissions for the agent (admins may query any
// agent via ?agent_id=)
func (h *Handler) listCommissions(c *gin.Context) {
	agentID := userID(c)
	if isAdmin(c) {
		if q := c.Query("agent_id"); q != "" {
			parsed, err := strconv.ParseInt(q, 10, 64)
			if err != nil {
				respondError(c, apperr.Validation("invalid agent_id"))
				return
			}
			agentID = parsed
		}
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	commissions, err := h.commissions.ListByAgent(c.Request.Context(), agentID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"commissions": commissions})
}

// payCommission marks a pending commission paid
func (h *Handler) payCommission(c *gin.Context) {
	commissionID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	commission, err := h.commissions.MarkPaid(c.Request.Context(), commissionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, commission)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperr.Validation("invalid amount")
	}
	return amount, nil
}

func pathID(c *gin.Context, param string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id < 1 {
		return 0, apperr.Newf(apperr.CodeValidation, "invalid %s", param)
	}
	return id, nil
}

// respondError maps domain errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		c.JSON(status, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}
	c.JSON(status, gin.H{"error": "internal error", "code": apperr.CodeInternal})
}

func abortWithError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": apperr.CodeInternal})
}

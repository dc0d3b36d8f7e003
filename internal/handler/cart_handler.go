package handler

import (
	"errors"
	"net/http"

	"github.com/cloud-wave-best-zizon/cart-service/internal/checkout"
	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/cloud-wave-best-zizon/cart-service/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	SessionHeader = "X-Session-ID"
	sessionKey    = "session_id"
)

type CartHandler struct {
	cartService *service.CartService
	logger      *zap.Logger
}

func NewCartHandler(cartService *service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		logger:      logger,
	}
}

func (h *CartHandler) Register(rg *gin.RouterGroup) {
	cart := rg.Group("/cart", h.requireSession)
	{
		cart.GET("", h.GetCart)
		cart.DELETE("", h.ClearCart)
		cart.POST("/items", h.AddItem)
		cart.DELETE("/items/:productId", h.RemoveItem)
		cart.PATCH("/items/:productId/quantity", h.ChangeQuantity)
		cart.PUT("/items/:productId/customer-field", h.SetCustomerField)
		cart.PUT("/coupon", h.ApplyCoupon)
		cart.DELETE("/coupon", h.RemoveCoupon)
		cart.PUT("/currency", h.SetCurrency)
		cart.POST("/checkout/prepare", h.PrepareCheckout)
		cart.POST("/checkout", h.SubmitCheckout)
	}
}

// requireSession rejects requests without a session id.
func (h *CartHandler) requireSession(c *gin.Context) {
	sessionID := c.GetHeader(SessionHeader)
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "Missing " + SessionHeader + " header",
		})
		return
	}
	c.Set(sessionKey, sessionID)
	c.Next()
}

// GetCart is "open cart": the stored cart is revalidated before it is shown.
func (h *CartHandler) GetCart(c *gin.Context) {
	sessionID := c.GetString(sessionKey)

	cart, removed, err := h.cartService.Revalidate(c.Request.Context(), sessionID)
	if err != nil {
		h.writeError(c, "Failed to load cart", err)
		return
	}

	if removed == nil {
		removed = []domain.LineItem{}
	}
	c.JSON(http.StatusOK, gin.H{
		"cart":          cart,
		"total":         cart.Total(),
		"removed_items": removed,
	})
}

func (h *CartHandler) AddItem(c *gin.Context) {
	var req domain.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, err)
		return
	}

	cart, err := h.cartService.AddToCart(c.Request.Context(), c.GetString(sessionKey), req)
	if err != nil {
		h.writeError(c, "Failed to add item", err)
		return
	}

	c.JSON(http.StatusCreated, cart)
}

func (h *CartHandler) RemoveItem(c *gin.Context) {
	cart, err := h.cartService.RemoveFromCart(c.Request.Context(), c.GetString(sessionKey), c.Param("productId"))
	if err != nil {
		h.writeError(c, "Failed to remove item", err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) ChangeQuantity(c *gin.Context) {
	var req domain.ChangeQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, err)
		return
	}

	cart, err := h.cartService.ChangeQuantity(c.Request.Context(), c.GetString(sessionKey), c.Param("productId"), req.Delta)
	if err != nil {
		h.writeError(c, "Failed to change quantity", err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) SetCustomerField(c *gin.Context) {
	var req domain.CustomerFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, err)
		return
	}

	field := domain.CustomerField{Label: req.Label, Value: req.Value}
	cart, err := h.cartService.SetCustomerField(c.Request.Context(), c.GetString(sessionKey), c.Param("productId"), field)
	if err != nil {
		h.writeError(c, "Failed to set customer field", err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	var req domain.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, err)
		return
	}

	cart, err := h.cartService.ApplyCoupon(c.Request.Context(), c.GetString(sessionKey), req.Code)
	if err != nil {
		h.writeError(c, "Failed to apply coupon", err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) RemoveCoupon(c *gin.Context) {
	cart, err := h.cartService.RemoveCoupon(c.Request.Context(), c.GetString(sessionKey))
	if err != nil {
		h.writeError(c, "Failed to remove coupon", err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) SetCurrency(c *gin.Context) {
	var req domain.CurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, err)
		return
	}

	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		h.writeError(c, "Invalid currency", err)
		return
	}

	cart, err := h.cartService.SetCurrency(c.Request.Context(), c.GetString(sessionKey), currency)
	if err != nil {
		h.writeError(c, "Failed to change currency", err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	if err := h.cartService.ClearCart(c.Request.Context(), c.GetString(sessionKey)); err != nil {
		h.writeError(c, "Failed to clear cart", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *CartHandler) PrepareCheckout(c *gin.Context) {
	target, ok := h.checkoutCurrency(c)
	if !ok {
		return
	}

	prep, err := h.cartService.PrepareCheckout(c.Request.Context(), c.GetString(sessionKey), target)
	if err != nil {
		h.writeError(c, "Failed to prepare checkout", err)
		return
	}

	c.JSON(http.StatusOK, prep)
}

func (h *CartHandler) SubmitCheckout(c *gin.Context) {
	target, ok := h.checkoutCurrency(c)
	if !ok {
		return
	}

	result, prep, err := h.cartService.SubmitCheckout(c.Request.Context(), c.GetString(sessionKey), target)
	if err != nil {
		if errors.Is(err, service.ErrCheckoutBlocked) {
			body := gin.H{
				"error":       err.Error(),
				"preparation": prep,
			}
			var fieldErr *service.MissingRequiredFieldError
			if errors.As(err, &fieldErr) {
				body["product_id"] = fieldErr.ProductID
			}
			c.JSON(http.StatusConflict, body)
			return
		}
		h.writeError(c, "Failed to submit checkout", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// checkoutCurrency reads ?currency=, defaulting to the cart's own currency.
func (h *CartHandler) checkoutCurrency(c *gin.Context) (domain.Currency, bool) {
	code := c.Query("currency")
	if code == "" {
		return h.cartService.GetCart(c.Request.Context(), c.GetString(sessionKey)).Currency, true
	}

	currency, err := domain.ParseCurrency(code)
	if err != nil {
		h.writeError(c, "Invalid currency", err)
		return "", false
	}
	return currency, true
}

func (h *CartHandler) invalidRequest(c *gin.Context, err error) {
	h.logger.Error("Invalid request", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{
		"error": "Invalid request format",
	})
}

func (h *CartHandler) writeError(c *gin.Context, message string, err error) {
	var stockErr *service.StockError
	if errors.As(err, &stockErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":      err.Error(),
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
		})
		return
	}

	var fieldErr *service.MissingRequiredFieldError
	if errors.As(err, &fieldErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":      err.Error(),
			"product_id": fieldErr.ProductID,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not in cart"})
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidQuantityChange),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, domain.ErrUnsupportedCurrency):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, checkout.ErrCheckoutRejected):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrLookupFailure),
		errors.Is(err, checkout.ErrCheckoutUnavailable):
		h.logger.Warn(message,
			zap.String("session_id", c.GetString(sessionKey)),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Upstream service unavailable, try again"})
	default:
		h.logger.Error(message,
			zap.String("session_id", c.GetString(sessionKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

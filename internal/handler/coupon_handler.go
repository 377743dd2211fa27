package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tablepos/service-coupon/internal/application"
	"github.com/tablepos/service-coupon/internal/platform/auth"
	"github.com/tablepos/service-coupon/internal/platform/middleware"
	"github.com/tablepos/service-coupon/internal/platform/response"
)

// CouponHandler handles HTTP requests for coupon operations.
type CouponHandler struct {
	service *application.CouponService
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(service *application.CouponService) *CouponHandler {
	return &CouponHandler{service: service}
}

// RegisterRoutes registers all coupon routes.
func (h *CouponHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	coupons := r.Group("/coupons")
	coupons.Use(authMW)
	{
		coupons.POST("/validate", h.ValidateCoupon)
		coupons.GET("/active", h.GetActiveCoupons)
		coupons.POST("/:id/redeem", middleware.RequireRole(auth.RoleAdmin, auth.RoleStaff), h.RedeemCoupon)

		coupons.GET("", adminRole, h.ListCoupons)
		coupons.POST("", adminRole, h.CreateCoupon)
		coupons.GET("/:id", adminRole, h.GetCoupon)
		coupons.PUT("/:id", adminRole, h.UpdateCoupon)
		coupons.DELETE("/:id", adminRole, h.DeleteCoupon)
		coupons.GET("/:id/redemptions", adminRole, h.ListRedemptions)
	}
}

// ValidateCoupon handles POST /api/v1/coupons/validate. Accepted and
// rejected coupons both answer 200 with the evaluation result as the body.
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	var req application.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ValidateCoupon(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetActiveCoupons handles GET /api/v1/coupons/active.
func (h *CouponHandler) GetActiveCoupons(c *gin.Context) {
	result, err := h.service.GetActiveCoupons(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ListCoupons handles GET /api/v1/coupons.
func (h *CouponHandler) ListCoupons(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	coupons, total, err := h.service.ListCoupons(c.Request.Context(), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, coupons, total, page, limit)
}

// GetCoupon handles GET /api/v1/coupons/:id.
func (h *CouponHandler) GetCoupon(c *gin.Context) {
	id, ok := couponID(c)
	if !ok {
		return
	}

	result, err := h.service.GetCoupon(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CreateCoupon handles POST /api/v1/coupons.
func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateCoupon(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// UpdateCoupon handles PUT /api/v1/coupons/:id.
func (h *CouponHandler) UpdateCoupon(c *gin.Context) {
	id, ok := couponID(c)
	if !ok {
		return
	}

	var req application.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.UpdateCoupon(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// DeleteCoupon handles DELETE /api/v1/coupons/:id.
func (h *CouponHandler) DeleteCoupon(c *gin.Context) {
	id, ok := couponID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteCoupon(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// RedeemCoupon handles POST /api/v1/coupons/:id/redeem.
func (h *CouponHandler) RedeemCoupon(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}
	id, ok := couponID(c)
	if !ok {
		return
	}

	var req application.RedeemCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RecordRedemption(c.Request.Context(), id, userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ListRedemptions handles GET /api/v1/coupons/:id/redemptions.
func (h *CouponHandler) ListRedemptions(c *gin.Context) {
	id, ok := couponID(c)
	if !ok {
		return
	}

	result, err := h.service.ListRedemptions(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

func couponID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid coupon id")
		return uuid.Nil, false
	}
	return id, true
}

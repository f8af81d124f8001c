package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"keymarket/internal/models"
	"keymarket/internal/service"
	"keymarket/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the handlers' dependencies
type Services struct {
	Auth      *service.AuthService
	Purchase  *service.PurchaseService
	Shops     *service.ShopService
	Catalog   *service.CatalogService
	Inventory *service.InventoryService
	Sales     *service.SalesService
	Admin     *service.AdminService
}

// Handler contains HTTP handlers
type Handler struct {
	auth      *service.AuthService
	purchase  *service.PurchaseService
	shops     *service.ShopService
	catalog   *service.CatalogService
	inventory *service.InventoryService
	sales     *service.SalesService
	admin     *service.AdminService
	probes    map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. probes are pinged by /ready.
func NewHandler(svc Services, probes map[string]Pinger) *Handler {
	return &Handler{
		auth:      svc.Auth,
		purchase:  svc.Purchase,
		shops:     svc.Shops,
		catalog:   svc.Catalog,
		inventory: svc.Inventory,
		sales:     svc.Sales,
		admin:     svc.Admin,
		probes:    probes,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/register", h.register)
		v1.POST("/auth/login", h.login)

		v1.GET("/platforms", h.listPlatforms)
		v1.GET("/games", h.listGames)
		v1.GET("/games/:id/stock", h.gameStock)
		v1.GET("/keys", h.availableKeys)
	}

	authed := v1.Group("", h.authMiddleware())
	{
		authed.POST("/auth/logout", h.logout)
		authed.GET("/me", h.me)
	}

	buyer := authed.Group("", h.requireRole(models.RoleBuyer))
	{
		buyer.POST("/keys/:id/purchase", h.purchaseKey)
		buyer.GET("/purchases", h.purchases)
	}

	seller := authed.Group("", h.requireRole(models.RoleSeller))
	{
		seller.POST("/shop", h.createShop)
		seller.GET("/shop", h.getShop)
		seller.POST("/seller/games", h.addGame)
		seller.GET("/seller/games", h.sellerGames)
		seller.DELETE("/seller/games/:id", h.deleteGame)
		seller.GET("/seller/games/:id/sales", h.gameSales)
		seller.POST("/seller/keys", h.addKey)
		seller.GET("/seller/keys", h.sellerKeys)
	}

	admin := authed.Group("/admin", h.requireRole(models.RoleAdmin))
	{
		admin.GET("/users", h.listUsers)
		admin.GET("/pending-sellers", h.listPendingSellers)
		admin.DELETE("/users/:id", h.deleteUser)
		admin.DELETE("/games/:id", h.deleteGame)
		admin.GET("/games/:id/sales", h.gameSales)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings the database and the cache
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, p := range h.probes {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	credentialsRequest
	Role string `json:"role" binding:"required,oneof=buyer seller"`
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), c.GetString(tokenKey)); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, identity(c))
}

func (h *Handler) listPlatforms(c *gin.Context) {
	platforms, err := h.catalog.ListPlatforms(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, platforms)
}

func (h *Handler) listGames(c *gin.Context) {
	games, err := h.catalog.ListGames(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}

func (h *Handler) gameStock(c *gin.Context) {
	gameID, ok := pathID(c)
	if !ok {
		return
	}

	count, err := h.inventory.GameStock(c.Request.Context(), gameID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"game_id":   gameID,
		"available": count,
		"sold":      h.inventory.SoldCount(c.Request.Context(), gameID),
	})
}

func (h *Handler) availableKeys(c *gin.Context) {
	keys, err := h.inventory.AvailableKeys(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *Handler) purchaseKey(c *gin.Context) {
	keyID, ok := pathID(c)
	if !ok {
		return
	}

	result, err := h.purchase.Purchase(c.Request.Context(), identity(c), keyID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) purchases(c *gin.Context) {
	history, err := h.sales.BuyerPurchases(c.Request.Context(), identity(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

type createShopRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) createShop(c *gin.Context) {
	var req createShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	shop, err := h.shops.CreateShop(c.Request.Context(), identity(c), req.Name)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shop)
}

func (h *Handler) getShop(c *gin.Context) {
	shop, err := h.shops.GetShop(c.Request.Context(), identity(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, shop)
}

func (h *Handler) addGame(c *gin.Context) {
	var req service.NewGame
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	game, err := h.catalog.AddGame(c.Request.Context(), identity(c), req)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, game)
}

func (h *Handler) sellerGames(c *gin.Context) {
	games, err := h.catalog.SellerGames(c.Request.Context(), identity(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, games)
}

func (h *Handler) deleteGame(c *gin.Context) {
	gameID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.catalog.DeleteGame(c.Request.Context(), identity(c), gameID); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) gameSales(c *gin.Context) {
	gameID, ok := pathID(c)
	if !ok {
		return
	}

	stats, err := h.sales.GameStatistics(c.Request.Context(), identity(c), gameID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) addKey(c *gin.Context) {
	var req service.NewKey
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	key, err := h.inventory.AddKey(c.Request.Context(), identity(c), req)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, key)
}

func (h *Handler) sellerKeys(c *gin.Context) {
	keys, err := h.inventory.SellerKeys(c.Request.Context(), identity(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.admin.ListUsers(c.Request.Context(), identity(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) listPendingSellers(c *gin.Context) {
	pending, err := h.admin.ListPendingSellers(c.Request.Context(), identity(c))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (h *Handler) deleteUser(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.admin.DeleteUser(c.Request.Context(), identity(c), userID); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

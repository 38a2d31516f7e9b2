package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/restaurant_backend/config"
	"bitbucket.org/mmdatafocus/restaurant_backend/models"
	"bitbucket.org/mmdatafocus/restaurant_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = "8080"

var tracer = otel.Tracer("restaurant-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// writeError maps the error taxonomy onto HTTP statuses: malformed input is
// 400, missing resources 404, deterministic business rejections 409,
// anything else 500.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case utils.IsBusinessRejection(err):
		body := gin.H{"error": err.Error()}
		var tableErr *utils.TableUnavailableError
		if errors.As(err, &tableErr) {
			body["available_table_ids"] = tableErr.AvailableTableIds
		}
		c.JSON(http.StatusConflict, body)
	default:
		logger := config.GetLogger()
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		client, _ := utils.GetClientNameFromContext(c.Request.Context())
		config.LogError(logger, "server.go", "writeError", c.FullPath(),
			map[string]string{"correlation_id": cid, "client": client}, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pageParams(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("size", "10"))
	return page, size
}

func saveOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "SaveOrder",
			trace.WithAttributes(attribute.Int("order.lines", len(input.Lines))))
		defer span.End()
		order, err := models.SaveOrder(ctx, &input)
		if err != nil {
			span.RecordError(err)
			writeError(c, err)
			return
		}
		span.SetAttributes(attribute.String("order.reference", order.Reference))
		c.JSON(http.StatusOK, order)
	}
}

func getOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, size := pageParams(c)
		orders, err := models.GetOrders(c.Request.Context(), page, size)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

func findOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := models.FindOrderByReference(c.Request.Context(), c.Param("reference"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func orderTotalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := models.FindOrderByReference(c.Request.Context(), c.Param("reference"))
		if err != nil {
			writeError(c, err)
			return
		}
		excl, err := order.TotalExclTax()
		if err != nil {
			writeError(c, err)
			return
		}
		incl, err := order.TotalInclTax()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"reference":      order.Reference,
			"total_excl_tax": excl,
			"total_incl_tax": incl,
		})
	}
}

func createIngredientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var inputs []*models.NewIngredient
		if err := c.ShouldBindJSON(&inputs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		created, err := models.CreateIngredients(c.Request.Context(), inputs)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

func saveIngredientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingredient id"})
			return
		}
		var input models.NewIngredient
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		ingredient, err := models.SaveIngredient(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ingredient)
	}
}

func getIngredientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, size := pageParams(c)
		ingredients, err := models.GetIngredients(c.Request.Context(), page, size)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ingredients)
	}
}

func searchIngredientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, size := pageParams(c)
		var name, dishName *string
		var category *models.IngredientCategory
		if v := c.Query("name"); v != "" {
			name = &v
		}
		if v := c.Query("dish"); v != "" {
			dishName = &v
		}
		if v := c.Query("category"); v != "" {
			cat := models.IngredientCategory(v)
			if err := cat.Validate(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			category = &cat
		}
		results, err := models.SearchIngredients(c.Request.Context(), name, category, dishName, page, size)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func recordMovementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingredient id"})
			return
		}
		var input models.NewStockMovement
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		movement, err := models.RecordStockMovement(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, movement)
	}
}

func getMovementsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingredient id"})
			return
		}
		movements, err := models.GetStockMovements(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, movements)
	}
}

func stockBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingredient id"})
			return
		}
		instant := time.Now()
		if v := c.Query("at"); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "at must be RFC3339"})
				return
			}
			instant = parsed
		}
		ingredient, err := models.GetIngredient(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		balance, err := ingredient.StockValueAt(instant)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ingredient_id": ingredient.ID,
			"name":          ingredient.Name,
			"at":            instant.Format(time.RFC3339),
			"quantity":      balance.Quantity,
			"unit":          balance.Unit,
		})
	}
}

func saveDishHandler(update bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := 0
		if update {
			parsed, err := strconv.Atoi(c.Param("id"))
			if err != nil || parsed <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dish id"})
				return
			}
			id = parsed
		}
		var input models.NewDish
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		dish, err := models.SaveDish(c.Request.Context(), id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dish)
	}
}

func getDishesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, size := pageParams(c)
		if ingredientName := c.Query("ingredient"); ingredientName != "" {
			dishes, err := models.FindDishesByIngredientName(c.Request.Context(), ingredientName, page, size)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, dishes)
			return
		}
		dishes, err := models.GetDishes(c.Request.Context(), page, size)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dishes)
	}
}

func getDishHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dish id"})
			return
		}
		dish, err := models.GetDish(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dish)
	}
}

func dishMarginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dish id"})
			return
		}
		dish, err := models.GetDish(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		margin, err := dish.GrossMargin()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"dish_id":      dish.ID,
			"name":         dish.Name,
			"cost":         dish.Cost(),
			"price":        dish.Price,
			"gross_margin": margin,
		})
	}
}

func dishRecipeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dish id"})
			return
		}
		recipe, err := models.GetDishRecipe(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"dish_id": id, "recipe": recipe})
	}
}

func createTableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDiningTable
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		table, err := models.CreateDiningTable(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, table)
	}
}

func getTableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid table id"})
			return
		}
		table, err := models.GetDiningTable(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, table)
	}
}

func getTablesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tables, err := models.GetDiningTables(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, tables)
	}
}

func availableTablesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		arrival, err := time.Parse(time.RFC3339, c.Query("arrival"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "arrival must be RFC3339"})
			return
		}
		departure, err := time.Parse(time.RFC3339, c.Query("departure"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "departure must be RFC3339"})
			return
		}
		ids, err := models.FindAvailableTables(c.Request.Context(), arrival, departure)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"available_table_ids": ids})
	}
}

func tableAvailableHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid table id"})
			return
		}
		arrival, err := time.Parse(time.RFC3339, c.Query("arrival"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "arrival must be RFC3339"})
			return
		}
		departure, err := time.Parse(time.RFC3339, c.Query("departure"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "departure must be RFC3339"})
			return
		}
		available, err := models.IsTableAvailable(c.Request.Context(), id, arrival, departure)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"table_id": id, "available": available})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// SIGTERM handling for graceful drain on shutdown.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the instance
	// healthy. Until DB is ready, app endpoints return 503.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		if client := c.GetHeader("x-client-name"); client != "" {
			ctx = utils.SetClientNameInContext(ctx, client)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate app endpoints on database readiness. Redis stays optional.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production requires an explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated); anything else allows all for developer convenience.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/orders", saveOrderHandler())
	r.GET("/orders", getOrdersHandler())
	r.GET("/orders/:reference", findOrderHandler())
	r.GET("/orders/:reference/total", orderTotalHandler())

	r.POST("/ingredients", createIngredientsHandler())
	r.GET("/ingredients", getIngredientsHandler())
	r.GET("/ingredients/search", searchIngredientsHandler())
	r.PUT("/ingredients/:id", saveIngredientHandler())
	r.GET("/ingredients/:id/movements", getMovementsHandler())
	r.POST("/ingredients/:id/movements", recordMovementHandler())
	r.GET("/ingredients/:id/stock", stockBalanceHandler())

	r.POST("/dishes", saveDishHandler(false))
	r.PUT("/dishes/:id", saveDishHandler(true))
	r.GET("/dishes", getDishesHandler())
	r.GET("/dishes/:id", getDishHandler())
	r.GET("/dishes/:id/margin", dishMarginHandler())
	r.GET("/dishes/:id/recipe", dishRecipeHandler())

	r.POST("/tables", createTableHandler())
	r.GET("/tables", getTablesHandler())
	r.GET("/tables/available", availableTablesHandler())
	r.GET("/tables/:id", getTableHandler())
	r.GET("/tables/:id/available", tableAvailableHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (startup probes are TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables; allow disabling it on
	// startup and running migrations as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Error("AutoMigrate failed: " + err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP()

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

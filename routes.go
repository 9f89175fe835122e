package main

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/orders"
)

func newRouter(cfg config.Config, db *mongo.Database, lg *zap.Logger, products *catalog.Service, orderService *orders.Service) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(lg), middleware.Recovery())
	r.MaxMultipartMemory = 8 << 20

	protect := middleware.Protect(cfg.JWTSecret, handlers.LoadPrincipal(db))
	admin := middleware.AdminOnly()

	r.GET("/healthz", handlers.Health(db))
	r.Static("/uploads", cfg.UploadDir)

	api := r.Group("/api")
	api.GET("/config/paypal", handlers.GetPayPalConfig(cfg.PayPalClientID))
	api.POST("/upload", protect, admin, handlers.UploadImage(cfg.UploadDir))

	users := api.Group("/users")
	{
		users.POST("", handlers.RegisterUser(db, cfg.JWTSecret, cfg.AccessTokenTTL))
		users.POST("/login", handlers.AuthUser(db, cfg.JWTSecret, cfg.AccessTokenTTL))
		users.GET("/profile", protect, handlers.GetUserProfile(db))
		users.PUT("/profile", protect, handlers.UpdateUserProfile(db, cfg.JWTSecret, cfg.AccessTokenTTL))
		users.GET("", protect, admin, handlers.GetUsers(db))
		users.GET("/:id", protect, admin, handlers.GetUserByID(db))
		users.PUT("/:id", protect, admin, handlers.UpdateUser(db))
		users.DELETE("/:id", protect, admin, handlers.DeleteUser(db))
	}

	productRoutes := api.Group("/products")
	{
		productRoutes.GET("", handlers.GetProducts(products))
		productRoutes.GET("/:id", handlers.GetProductByID(products))
		productRoutes.POST("", protect, admin, handlers.CreateProduct(products))
		productRoutes.PUT("/:id", protect, admin, handlers.UpdateProduct(products, cfg.UploadDir))
		productRoutes.DELETE("/:id", protect, admin, handlers.DeleteProduct(products))
	}

	orderRoutes := api.Group("/orders", protect)
	{
		orderRoutes.POST("", handlers.CreateOrder(orderService))
		orderRoutes.GET("", admin, handlers.GetOrders(orderService))
		orderRoutes.GET("/myorders", handlers.GetMyOrders(orderService))
		orderRoutes.GET("/:id", handlers.GetOrderByID(orderService))
		orderRoutes.PUT("/:id/pay", handlers.UpdateOrderToPaid(orderService))
		orderRoutes.PUT("/:id/deliver", admin, handlers.UpdateOrderToDelivered(orderService))
	}

	return r
}

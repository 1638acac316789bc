package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tutorbill/tutorbill/internal/api/cron"
	v1 "github.com/tutorbill/tutorbill/internal/api/v1"
	"github.com/tutorbill/tutorbill/internal/config"
	"github.com/tutorbill/tutorbill/internal/rest/middleware"
)

type Handlers struct {
	Batch        *v1.BatchHandler
	Obligation   *v1.ObligationHandler
	Payment      *v1.PaymentHandler
	Subscription *v1.SubscriptionHandler

	CronLedger       *cron.LedgerHandler
	CronSubscription *cron.SubscriptionHandler
}

func NewRouter(cfg *config.Configuration, handlers Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(
		middleware.CORSMiddleware(cfg.Server.AllowedOrigin),
		middleware.RequestIDMiddleware,
		middleware.TenantMiddleware,
		middleware.ErrorHandler(),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// v1 routes
	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	// cron routes, hit by the scheduler rather than end users
	cronGroup := router.Group("/cron")
	registerCronRoutes(cronGroup, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	// Batch routes
	batches := router.Group("/batches")
	{
		batches.POST("", handlers.Batch.CreateBatch)
		batches.GET("/:id", handlers.Batch.GetBatch)
		batches.PUT("/:id", handlers.Batch.UpdateBatch)
		batches.POST("/:id/archive", handlers.Batch.ArchiveBatch)
		batches.GET("/:id/contribution", handlers.Batch.QuoteContribution)
	}

	// Teacher-scoped reads
	teachers := router.Group("/teachers")
	{
		teachers.GET("/:teacher_id/batches", handlers.Batch.ListBatchesByTeacher)
		teachers.GET("/:teacher_id/metrics", handlers.Batch.GetTeacherMetrics)
	}

	// Enrollment routes
	enrollments := router.Group("/enrollments")
	{
		enrollments.POST("", handlers.Batch.ApproveEnrollment)
		enrollments.DELETE("/:id", handlers.Batch.RemoveEnrollment)
	}

	// Obligation ledger routes
	obligations := router.Group("/obligations")
	{
		obligations.POST("", handlers.Obligation.CreateObligation)
		obligations.GET("/:id", handlers.Obligation.GetObligation)
		obligations.POST("/:id/cash", handlers.Obligation.MarkCash)
	}

	// Due summary for one student+batch pair
	router.GET("/dues", handlers.Obligation.GetDueSummary)

	// Payment routes
	payments := router.Group("/payments")
	{
		payments.POST("", handlers.Payment.InitiatePayment)
		payments.POST("/webhook", handlers.Payment.HandleSettlementWebhook)
	}

	// Subscription routes
	subscriptions := router.Group("/subscriptions")
	{
		subscriptions.POST("", handlers.Subscription.CreateAccount)
		subscriptions.GET("/:teacher_id", handlers.Subscription.GetAccount)
		subscriptions.GET("/:teacher_id/status", handlers.Subscription.GetStatus)
		subscriptions.GET("/:teacher_id/payments", handlers.Subscription.ListPayments)
		subscriptions.POST("/payments/confirm", handlers.Subscription.ConfirmPayment)
	}
}

func registerCronRoutes(router *gin.RouterGroup, handlers Handlers) {
	obligations := router.Group("/obligations")
	{
		obligations.POST("/generate", handlers.CronLedger.GenerateMonthlyObligations)
		obligations.POST("/overdue", handlers.CronLedger.RecomputeOverdue)
		obligations.POST("/expire-pending", handlers.CronLedger.ExpirePendingPayments)
	}

	subscriptions := router.Group("/subscriptions")
	{
		subscriptions.POST("/evaluate", handlers.CronSubscription.EvaluateCycle)
	}
}

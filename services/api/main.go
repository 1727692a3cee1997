package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/cryptoperk/cryptoperk-backend/shared/billing"
	"github.com/cryptoperk/cryptoperk-backend/shared/config"
	"github.com/cryptoperk/cryptoperk-backend/shared/events"
	"github.com/cryptoperk/cryptoperk-backend/shared/middleware"
	"github.com/cryptoperk/cryptoperk-backend/shared/models"
	"github.com/cryptoperk/cryptoperk-backend/shared/providers"
	"github.com/cryptoperk/cryptoperk-backend/shared/utils"
)

// PaymentsAPI is the full payment-provider surface the handlers need: the
// card routine's operations plus single-method retrieval and customer
// deletion.
type PaymentsAPI interface {
	billing.PaymentProvider
	GetPaymentMethod(customerID, paymentMethodID string) (*providers.PaymentMethod, error)
	DeleteCustomer(customerID string) error
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}
	cfg := config.Load()

	// Redis backs the validated-token cache; the API still works without it,
	// every request just revalidates its token.
	if err := utils.InitRedis(); err != nil {
		logrus.WithError(err).Warn("Redis unavailable, token cache disabled")
	}
	defer utils.CloseRedis()

	// Initialize database
	db, err := config.ConnectDatabase()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	err = db.AutoMigrate(
		&models.Industry{},
		&models.Hashtag{},
		&models.Company{},
		&models.CompanyHashtag{},
		&models.User{},
		&models.Card{},
		&models.KudosTransaction{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// External providers
	var payments PaymentsAPI = providers.NewStripeClient(cfg.StripeSecretKey)
	var mailer providers.Mailer = providers.NewSendgridMailer(cfg.SendgridAPIKey, cfg.FromEmail)
	var wallets providers.WalletProvider = providers.NewTatumClient(cfg.TatumAPIURI, cfg.TatumAPIKey)

	var store providers.FileStore
	if cfg.S3Bucket != "" {
		s3Store, err := providers.NewS3Store(cfg.AWSRegion, cfg.S3Bucket)
		if err != nil {
			log.Fatal("Failed to initialize S3 store:", err)
		}
		store = s3Store
	} else {
		logrus.Warn("S3_BUCKET not set, file uploads disabled")
	}

	var producer *events.Producer
	if cfg.KafkaBroker != "" {
		producer = events.NewProducer(cfg.KafkaBroker)
		defer producer.Close()
	} else {
		logrus.Warn("KAFKA_BROKER not set, kudos events disabled")
	}

	cards := billing.NewCardService(db, payments)
	authMiddleware := middleware.NewAuthMiddleware(db)

	// Initialize Gin router
	router := gin.Default()

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "API service is healthy", nil)
	})

	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth())

	api.POST("/auth/login", handleLogin())

	users := api.Group("/users")
	{
		users.GET("/profile", authMiddleware.RequireActive(), handleGetProfile(db))
		users.GET("", authMiddleware.RequireActive(),
			authMiddleware.RequireRole(models.RoleSuperAdmin), handleGetUsers(db, payments))
		users.GET("/:id", authMiddleware.RequireActive(),
			authMiddleware.RequireRole(models.RoleSuperAdmin), handleGetUser(db, payments))

		users.PUT("/register", handleRegister(db))
		users.PUT("/completeRegistration", handleCompleteRegistration(db))
		users.POST("/superAdmin", handleCreateSuperAdmin(db))
		users.PUT("/profile", authMiddleware.RequireActive(), handleUpdateProfile(db))
		users.PUT("/role", authMiddleware.RequireActive(),
			authMiddleware.RequireRole(models.RoleAdmin), handleChangeRole(db))
		users.PUT("/permissions",
			authMiddleware.RequireRole(models.RoleAdmin), handleSetPermissions(db))
		users.DELETE("", handleDeleteUser(db, payments))

		users.POST("/employee/invite", authMiddleware.RequireActive(),
			authMiddleware.RequireRole(models.RoleAdmin), handleInviteEmployees(db, mailer))
		users.POST("/admin/invite",
			authMiddleware.RequireRole(models.RoleSuperAdmin), handleInviteAdmins(db, mailer))

		userCards := users.Group("/cards", authMiddleware.RequireActive(),
			authMiddleware.RequireRole(models.RoleEmployee, models.RoleAdmin, models.RoleSuperAdmin))
		{
			userCards.GET("", handleGetUserCards(db, cards))
			userCards.POST("", handleAddUserCard(db, cards))
			userCards.PUT("/:id", handleUpdateUserCard(db, cards))
			userCards.PUT("/default/:id", handleMakeUserCardDefault(db, cards))
			userCards.DELETE("/:id", handleDeleteUserCard(db, cards))
		}

		users.POST("/wallet", handleCreateWallet(db, wallets))
		users.GET("/wallet", authMiddleware.RequireActive(), handleGetWalletBalance(db, wallets))
		users.POST("/avatar", authMiddleware.RequireActive(), handleUploadAvatar(db, store))
	}

	companies := api.Group("/companies")
	{
		companies.GET("/names", authMiddleware.RequireRole(models.RoleSuperAdmin),
			authMiddleware.RequireActive(), handleGetCompanyNames(db))
		companies.GET("", authMiddleware.RequireRole(models.RoleSuperAdmin),
			authMiddleware.RequireActive(), handleGetCompanies(db, payments))
		companies.GET("/industries", handleGetIndustries(db))
		companies.GET("/hashtags", handleGetHashtags(db))
		companies.POST("/hashtags", handleCreateHashtag(db))

		companies.GET("/users", authMiddleware.RequireRole(models.RoleAdmin),
			authMiddleware.RequireActive(), handleGetCompanyUsers(db))
		companies.GET("/users/:id", authMiddleware.RequireRole(models.RoleAdmin),
			authMiddleware.RequireActive(), handleGetCompanyUser(db, wallets))
		companies.GET("/:id",
			authMiddleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin),
			authMiddleware.RequireActive(), handleGetCompany(db, payments))

		companies.PUT("", authMiddleware.RequireRole(models.RoleAdmin),
			authMiddleware.RequireActive(), handleUpdateCompany(db))
		companies.PUT("/fire", authMiddleware.RequireRole(models.RoleAdmin),
			authMiddleware.RequireActive(), handleFireUsers(db))

		companyCards := companies.Group("/cards",
			authMiddleware.RequireRole(models.RoleAdmin), authMiddleware.RequireActive())
		{
			companyCards.GET("", handleGetCompanyCards(db, cards))
			companyCards.POST("", handleAddCompanyCard(db, cards))
			companyCards.PUT("/:id", handleUpdateCompanyCard(db, cards))
			companyCards.PUT("/default/:id", handleMakeCompanyCardDefault(db, cards))
			companyCards.DELETE("/:id", handleDeleteCompanyCard(db, cards))
		}

		companies.POST("/logo", authMiddleware.RequireRole(models.RoleAdmin),
			authMiddleware.RequireActive(), handleUploadLogo(db, store))
	}

	kudos := api.Group("/kudos", authMiddleware.RequireActive())
	{
		kudos.POST("", handleSendKudos(db, producer))
		kudos.POST("/statistic", handleKudosStatistic(db))
	}

	logrus.Infof("API service starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start API service:", err)
	}
}

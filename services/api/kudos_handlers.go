package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cryptoperk/cryptoperk-backend/shared/apperrors"
	"github.com/cryptoperk/cryptoperk-backend/shared/events"
	"github.com/cryptoperk/cryptoperk-backend/shared/middleware"
	"github.com/cryptoperk/cryptoperk-backend/shared/models"
	"github.com/cryptoperk/cryptoperk-backend/shared/utils"
)

// SendKudosRequest transfers kudos to another user
type SendKudosRequest struct {
	Recipient uuid.UUID `json:"recipient" binding:"required"`
	Value     int       `json:"value" binding:"required,gt=0"`
}

// KudosStatisticRequest optionally narrows transactions to a day range
type KudosStatisticRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ChartPoint is one day of the transaction-count chart
type ChartPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// handleSendKudos records a kudos transfer: balance check, Pending ledger
// row, sender balance update. The balance update adds the sent amount to the
// sender and never credits the recipient; only the ledger row references
// them. This mirrors the behavior the product currently depends on.
func handleSendKudos(db *gorm.DB, producer *events.Producer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SendKudosRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		sender, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if sender.Kudos < req.Value {
			utils.RespondError(c, apperrors.Validation("The amount is more than what you have on your balance"))
			return
		}

		transaction := models.KudosTransaction{
			SenderID:    sender.ID,
			RecipientID: req.Recipient,
			Amount:      req.Value,
			Status:      models.TransactionPending,
		}
		if err := db.Create(&transaction).Error; err != nil {
			utils.RespondError(c, err)
			return
		}

		err = db.Model(&models.User{}).Where("id = ?", sender.ID).
			Update("kudos", sender.Kudos+req.Value).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		if producer != nil {
			err := producer.Publish(events.KudosEvent{
				TransactionID: transaction.ID,
				SenderID:      sender.ID,
				RecipientID:   req.Recipient,
				Amount:        req.Value,
				SentAt:        transaction.CreatedAt,
			})
			if err != nil {
				logrus.WithError(err).Warn("Kudos event not published")
			}
		}
		utils.CreatedResponse(c, "Kudos have been sent", transaction)
	}
}

// handleKudosStatistic returns the caller's sent transactions (optionally
// restricted to a day range), a per-day count chart and received/given sums.
func handleKudosStatistic(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req KudosStatisticRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		user, err := middleware.CurrentUser(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		query := db.Where("sender_id = ?", user.ID)
		if req.From != "" && req.To != "" {
			from, err := parseDate(req.From)
			if err != nil {
				utils.RespondError(c, apperrors.Validation("Invalid from date"))
				return
			}
			to, err := parseDate(req.To)
			if err != nil {
				utils.RespondError(c, apperrors.Validation("Invalid to date"))
				return
			}
			start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
			end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, int(999*time.Millisecond), to.Location())
			query = query.Where("created_at BETWEEN ? AND ?", start, end)
		}

		var transactions []models.KudosTransaction
		if err := query.Find(&transactions).Error; err != nil {
			utils.RespondError(c, err)
			return
		}

		var chart []ChartPoint
		err = db.Raw(
			`SELECT DATE(created_at) AS date, COUNT(id) AS count FROM kudos_transactions GROUP BY DATE(created_at)`,
		).Scan(&chart).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var received, given int64
		err = db.Model(&models.KudosTransaction{}).
			Where("recipient_id = ?", user.ID).
			Select("COALESCE(SUM(amount), 0)").Scan(&received).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		err = db.Model(&models.KudosTransaction{}).
			Where("sender_id = ?", user.ID).
			Select("COALESCE(SUM(amount), 0)").Scan(&given).Error
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		utils.OKResponse(c, "Statistic retrieved successfully", gin.H{
			"transactions": transactions,
			"chart":        chart,
			"received":     received,
			"given":        given,
		})
	}
}

package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/codingric/moneyman/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// TransactionView is the JSON form of a stored transaction.
type TransactionView struct {
	ID                uint    `json:"id"`
	UserID            string  `json:"user_id"`
	Description       string  `json:"description"`
	Amount            float64 `json:"amount"`
	PredictedCategory string  `json:"predicted_category"`
	Date              string  `json:"date"`
	Confidence        float64 `json:"confidence"`
}

func viewOf(t models.Transaction) TransactionView {
	return TransactionView{
		ID:                t.ID,
		UserID:            t.UserID,
		Description:       t.Description,
		Amount:            t.Amount,
		PredictedCategory: t.PredictedCategory,
		Date:              t.Date.Format(models.DateLayout),
		Confidence:        t.Confidence,
	}
}

// GET /transactions
// Find a user's transactions, newest first
func (ctl *Controller) FindTransactions(c *gin.Context) {
	started := time.Now()
	defer func() { log.Trace().Caller().Dur("duration_ms", time.Since(started)).Send() }()

	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User ID is required"})
		return
	}

	var filters []models.Filter
	for key, values := range c.Request.URL.Query() {
		if key == "user_id" {
			continue
		}
		f, err := models.ParseFilter(key, values[0])
		if err != nil {
			log.Debug().Err(err).Msg("FindTransactions.error")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filters = append(filters, f)
	}

	transactions, err := ctl.Store.List(c.Request.Context(), userID, filters)
	if errors.Is(err, models.ErrInvalidFilter) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list transactions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transactions"})
		return
	}

	data := make([]TransactionView, 0, len(transactions))
	for _, t := range transactions {
		data = append(data, viewOf(t))
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codingric/moneyman/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const Unclassified = "Unclassified"

// ClassifyRow mirrors a row of an uploaded bank statement CSV.
type ClassifyRow struct {
	Description       string  `json:"Description"`
	Amount            float64 `json:"Amount"`
	DayOfWeek         string  `json:"DayOfWeek"`
	Month             string  `json:"Month"`
	PredictedCategory string  `json:"Predicted Category"`
	Confidence        float64 `json:"Confidence"`
}

type ClassifyInput struct {
	Transactions []ClassifyRow `json:"transactions"`
}

// POST /classify
// Predict categories for a batch of rows; nothing is stored
func (ctl *Controller) Classify(c *gin.Context) {
	started := time.Now()
	defer func() { log.Trace().Caller().Dur("duration_ms", time.Since(started)).Send() }()

	var input ClassifyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Debug().Err(err).Msg("Classify.error")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	if len(input.Transactions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Transactions are required"})
		return
	}
	if ctl.MaxBatch > 0 && len(input.Transactions) > ctl.MaxBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("At most %d transactions per request", ctl.MaxBatch)})
		return
	}

	ctx := c.Request.Context()
	rows := make([]ClassifyRow, len(input.Transactions))
	for i, row := range input.Transactions {
		rows[i] = row
		if strings.TrimSpace(row.Description) == "" {
			rows[i].PredictedCategory = Unclassified
			rows[i].Confidence = 0
			continue
		}

		prediction, err := ctl.Predictor.Predict(ctx, row.Description)
		if err != nil {
			log.Error().Err(err).Int("row", i).Msg("Prediction failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
			return
		}
		rows[i].PredictedCategory = prediction.Label
		rows[i].Confidence = prediction.Percent()
		metrics.ObservePrediction(prediction.Label, rows[i].Confidence)
	}

	c.JSON(http.StatusOK, gin.H{"classifiedTransactions": rows})
}

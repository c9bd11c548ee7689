package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codingric/moneyman/models"
	"github.com/codingric/moneyman/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrDescriptionRequired = errors.New("Description is required")
	ErrInvalidAmount       = errors.New("Amount must be a number")
	ErrInvalidDate         = errors.New("Date must be formatted as YYYY-MM-DD")
)

// PredictInput is the body of POST /predict. Amount, date and user_id are
// kept raw so the description is checked before anything else.
type PredictInput struct {
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
	Date        json.RawMessage `json:"date"`
	UserID      json.RawMessage `json:"user_id"`
}

type PredictResponse struct {
	PredictedCategory string  `json:"predicted_category"`
	Confidence        float64 `json:"confidence"`
}

// Submission is a validated PredictInput.
type Submission struct {
	UserID      string
	Description string
	Amount      float64
	Date        time.Time
}

// Validate applies defaults and rejects malformed fields. today is used
// when no date is given.
func (in *PredictInput) Validate(today time.Time) (*Submission, error) {
	if strings.TrimSpace(in.Description) == "" {
		return nil, ErrDescriptionRequired
	}

	amount, err := parseAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	date, err := parseDate(in.Date, today)
	if err != nil {
		return nil, err
	}

	return &Submission{
		UserID:      parseUserID(in.UserID),
		Description: in.Description,
		Amount:      amount,
		Date:        date,
	}, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func decodeRaw(raw json.RawMessage) (interface{}, error) {
	var v interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	err := dec.Decode(&v)
	return v, err
}

// parseAmount accepts a JSON number or a numeric string; absent means 0.
func parseAmount(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, nil
	}
	v, err := decodeRaw(raw)
	if err != nil {
		return 0, ErrInvalidAmount
	}

	var f float64
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		err = ErrInvalidAmount
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrInvalidAmount
	}
	return f, nil
}

func parseDate(raw json.RawMessage, today time.Time) (time.Time, error) {
	if isNull(raw) {
		return today, nil
	}
	v, err := decodeRaw(raw)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, ErrInvalidDate
	}
	if s = strings.TrimSpace(s); s == "" {
		return today, nil
	}
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// parseUserID turns the optional user_id into a string. Values that are
// absent or falsy (null, "", 0, false) yield "", meaning do not persist.
// Any other string is stored exactly as sent, surrounding blanks included.
func parseUserID(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	v, err := decodeRaw(raw)
	if err != nil {
		return ""
	}

	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			if i == 0 {
				return ""
			}
			return strconv.FormatInt(i, 10)
		}
		f, err := t.Float64()
		if err != nil || f == 0 {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case bool:
		if t {
			log.Warn().Msg("Ignoring boolean user_id")
		}
		return ""
	default:
		log.Warn().Str("user_id", string(raw)).Msg("Ignoring unsupported user_id")
		return ""
	}
}

// POST /predict
// Predict the category of a transaction and store it for a signed in user
func (ctl *Controller) Predict(c *gin.Context) {
	started := time.Now()
	defer func() { log.Trace().Caller().Dur("duration_ms", time.Since(started)).Send() }()

	var input PredictInput
	if err := c.ShouldBindJSON(&input); err != nil {
		log.Debug().Err(err).Msg("Predict.error")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	sub, err := input.Validate(ctl.today())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	prediction, err := ctl.Predictor.Predict(ctx, sub.Description)
	if err != nil {
		log.Error().Err(err).Str("description", sub.Description).Msg("Prediction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Prediction failed"})
		return
	}

	confidence := prediction.Percent()
	metrics.ObservePrediction(prediction.Label, confidence)

	if sub.UserID != "" {
		ctl.persist(c, &models.Transaction{
			UserID:            sub.UserID,
			Description:       sub.Description,
			Amount:            sub.Amount,
			PredictedCategory: prediction.Label,
			Date:              sub.Date,
			Confidence:        confidence,
		})
	}

	c.JSON(http.StatusOK, PredictResponse{
		PredictedCategory: prediction.Label,
		Confidence:        confidence,
	})
}

// persist stores t on a best effort basis; failures never reach the caller.
func (ctl *Controller) persist(c *gin.Context, t *models.Transaction) {
	if ctl.Store == nil {
		log.Warn().Msg("No transaction store configured, skipping insert")
		return
	}

	ctx, cancel := ctl.insertContext(c.Request.Context())
	defer cancel()

	if err := ctl.Store.Insert(ctx, t); err != nil {
		metrics.Persisted.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("user_id", t.UserID).Msg("Database insert error")
		return
	}
	metrics.Persisted.WithLabelValues("ok").Inc()
	log.Debug().Uint("id", t.ID).Str("user_id", t.UserID).Msg("Transaction saved")
}

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/codingric/moneyman/config"
	"github.com/codingric/moneyman/controllers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func RunGetRequest(url string) (statusCode int, response string, err error) {
	resp, err := http.Get(url)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	statusCode = resp.StatusCode
	p, _ := io.ReadAll(resp.Body)
	response = string(p)
	return
}

func RunPostRequest(url string, payload string) (statusCode int, response string, err error) {
	resp, err := http.Post(url, "application/json", strings.NewReader(payload))
	if err != nil {
		return
	}
	defer resp.Body.Close()

	statusCode = resp.StatusCode
	p, _ := io.ReadAll(resp.Body)
	response = string(p)
	return
}

func RunTest(t *testing.T, method string, url string, payload string, expected string, statusCode int) {
	t.Helper()

	var code int
	var response string
	var err error
	if method == "GET" {
		code, response, err = RunGetRequest(fmt.Sprintf("%s/%s", TestServer.URL, url))
	} else {
		code, response, err = RunPostRequest(fmt.Sprintf("%s/%s", TestServer.URL, url), payload)
	}

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if code != statusCode {
		t.Fatalf("%s %s - Expected status code %v, got %v", method, url, statusCode, code)
	}

	if response != expected {
		t.Fatalf("%s %s - Expected '%s' got '%s'", method, url, expected, response)
	}
}

var TestServer *httptest.Server
var TestController *controllers.Controller

func testConfig() *config.Config {
	return &config.Config{
		Model: config.ModelConfig{Path: "classifier/testdata/tiny.json"},
		Database: config.DatabaseConfig{
			Driver:        "sqlite",
			Path:          ":memory:",
			MaxOpenConns:  1,
			InsertTimeout: time.Second,
			AutoMigrate:   true,
		},
		Classify:     config.ClassifyConfig{MaxBatch: 10},
		Transactions: config.TransactionsConfig{Enabled: true},
	}
}

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)

	ctl, cleanup, err := setup(context.Background(), testConfig())
	if err != nil {
		panic(err)
	}
	TestController = ctl
	TestServer = httptest.NewServer(setupServer(ctl, testConfig()))
	retCode := m.Run()
	TestServer.Close()
	cleanup()
	os.Exit(retCode)
}

func TestHome(t *testing.T) {
	RunTest(t, "GET", "", ``, `{"message":"Backend running with ML model!"}`, 200)
}

func TestPredictMissingDescription(t *testing.T) {
	RunTest(t, "POST", "predict", `{}`, `{"error":"Description is required"}`, 400)
	RunTest(t, "POST", "predict", `{"description":"","user_id":"nobody"}`, `{"error":"Description is required"}`, 400)
	RunTest(t, "GET", "transactions?user_id=nobody", ``, `{"data":[]}`, 200)
}

func TestPredictAnonymous(t *testing.T) {
	RunTest(t, "POST", "predict", `{"description":"coffee","amount":5.75}`, `{"predicted_category":"Food \u0026 Drink","confidence":80}`, 200)
}

func TestPredictAndPersist(t *testing.T) {
	RunTest(t, "POST", "predict", `{"description":"Uber","amount":23.4,"date":"2024-03-05","user_id":"persist"}`, `{"predicted_category":"Transportation","confidence":90}`, 200)
	RunTest(t, "POST", "predict", `{"description":"coffee","amount":"5.75","user_id":"persist"}`, `{"predicted_category":"Food \u0026 Drink","confidence":80}`, 200)

	today := time.Now().Format("2006-01-02")
	RunTest(t, "GET", "transactions?user_id=persist", ``,
		`{"data":[`+
			`{"id":2,"user_id":"persist","description":"coffee","amount":5.75,"predicted_category":"Food \u0026 Drink","date":"`+today+`","confidence":80},`+
			`{"id":1,"user_id":"persist","description":"Uber","amount":23.4,"predicted_category":"Transportation","date":"2024-03-05","confidence":90}`+
			`]}`, 200)
	RunTest(t, "GET", "transactions?user_id=persist&predicted_category=Transportation", ``,
		`{"data":[{"id":1,"user_id":"persist","description":"Uber","amount":23.4,"predicted_category":"Transportation","date":"2024-03-05","confidence":90}]}`, 200)
}

func TestTransactionsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Transactions.Enabled = false
	server := httptest.NewServer(setupServer(TestController, cfg))
	defer server.Close()

	RunTest(t, "POST", "predict", `{"description":"uber","user_id":"private"}`, `{"predicted_category":"Transportation","confidence":90}`, 200)

	code, body, err := RunGetRequest(server.URL + "/transactions?user_id=private")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotContains(t, body, "private")

	code, _, err = RunGetRequest(server.URL + "/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
}

func TestClassify(t *testing.T) {
	RunTest(t, "POST", "classify", `{"transactions":[{"Description":"uber"}]}`,
		`{"classifiedTransactions":[{"Description":"uber","Amount":0,"DayOfWeek":"","Month":"","Predicted Category":"Transportation","Confidence":90}]}`, 200)
}

func TestReady(t *testing.T) {
	RunTest(t, "GET", "healthz/ready", ``, `{"components":{"database":"ok","redis":"not configured"},"status":"ready"}`, 200)
}

func TestMetrics(t *testing.T) {
	RunTest(t, "POST", "predict", `{"description":"uber"}`, `{"predicted_category":"Transportation","confidence":90}`, 200)

	code, body, err := RunGetRequest(TestServer.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, 200, code)
	assert.Contains(t, body, `predictor_predictions_total{category="Transportation"}`)
}

func TestRequestIDHeader(t *testing.T) {
	resp, err := http.Get(TestServer.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRunFailures(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	err := run(nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", ":memory:")
	err = run([]string{"-m", "classifier/testdata/missing.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load model")
}

package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"microtx-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransaction() *models.Transaction {
	tx := models.NewTransaction(76561197960287930)
	tx.OrderID = 438543
	tx.Items = []models.Item{
		{
			ProductID:     1,
			Quantity:      3,
			AmountInCents: 1500,
			Description:   "A pack of 1000 gold coins.",
			Category:      "currency",
		},
		{
			ProductID:     2,
			Quantity:      1,
			AmountInCents: 425,
			Description:   "Remove ads.",
		},
	}
	return tx
}

func newTestClient(t *testing.T, sandbox bool, handler http.HandlerFunc) *HTTPClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewHTTPClient(Config{
		APIURL:       server.URL,
		AppID:        "480",
		PublisherKey: "publisher-key",
		UseSandbox:   sandbox,
	})
}

func TestInitiateSendsFormEncodedRequest(t *testing.T) {
	var gotPath string
	var gotForm map[string]string

	client := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotForm = make(map[string]string)
		for key := range r.PostForm {
			gotForm[key] = r.PostForm.Get(key)
		}
		w.Write([]byte(`{"response":{"result":"OK","params":{"transid":"9000012345"}}}`))
	})

	result, err := client.Initiate(context.Background(), testTransaction())

	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, uint64(9000012345), result.ExternalTransactionID)

	assert.Equal(t, "/ISteamMicroTxnSandbox/InitTxn/v3/", gotPath)
	assert.Equal(t, "publisher-key", gotForm["key"])
	assert.Equal(t, "438543", gotForm["orderid"])
	assert.Equal(t, "76561197960287930", gotForm["steamid"])
	assert.Equal(t, "480", gotForm["appid"])
	assert.Equal(t, "2", gotForm["itemcount"])
	assert.Equal(t, "en", gotForm["language"])
	assert.Equal(t, "USD", gotForm["currency"])

	assert.Equal(t, "1", gotForm["itemid[0]"])
	assert.Equal(t, "3", gotForm["qty[0]"])
	assert.Equal(t, "1500", gotForm["amount[0]"])
	assert.Equal(t, "A pack of 1000 gold coins.", gotForm["description[0]"])
	assert.Equal(t, "currency", gotForm["category[0]"])

	assert.Equal(t, "2", gotForm["itemid[1]"])
	assert.Equal(t, "425", gotForm["amount[1]"])
	_, hasCategory := gotForm["category[1]"]
	assert.False(t, hasCategory, "empty category must be omitted")
}

func TestInitiateUsesProductionPath(t *testing.T) {
	var gotPath string
	client := newTestClient(t, false, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"response":{"result":"OK","params":{"transid":"1"}}}`))
	})

	_, err := client.Initiate(context.Background(), testTransaction())

	require.NoError(t, err)
	assert.Equal(t, "/ISteamMicroTxn/InitTxn/v3/", gotPath)
}

func TestInitiateParsesErrorEnvelope(t *testing.T) {
	client := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"result":"Failure","error":{"errorcode":"1001","errordesc":"Action not allowed"}}}`))
	})

	result, err := client.Initiate(context.Background(), testTransaction())

	require.NoError(t, err, "a structured rejection is not a transport error")
	assert.False(t, result.OK)
	assert.Equal(t, "1001", result.ErrorCode)
	assert.Equal(t, "Action not allowed", result.ErrorDescription)
	assert.Zero(t, result.ExternalTransactionID)
}

func TestInitiateRejectsUnparseableTransactionID(t *testing.T) {
	client := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"result":"OK","params":{"transid":"not-a-number"}}}`))
	})

	_, err := client.Initiate(context.Background(), testTransaction())

	assert.Error(t, err)
}

func TestNonOKStatusIsTransportError(t *testing.T) {
	client := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := client.Initiate(context.Background(), testTransaction())

	assert.Error(t, err)
}

func TestFinalizeSendsFormEncodedRequest(t *testing.T) {
	var gotPath string
	var gotForm map[string]string

	client := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"key":     r.PostForm.Get("key"),
			"orderid": r.PostForm.Get("orderid"),
			"appid":   r.PostForm.Get("appid"),
		}
		w.Write([]byte(`{"response":{"result":"OK"}}`))
	})

	result, err := client.Finalize(context.Background(), 438543)

	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "/ISteamMicroTxnSandbox/FinalizeTxn/v2/", gotPath)
	assert.Equal(t, "publisher-key", gotForm["key"])
	assert.Equal(t, "438543", gotForm["orderid"])
	assert.Equal(t, "480", gotForm["appid"])
}

func TestFinalizeParsesErrorEnvelope(t *testing.T) {
	client := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{"result":"Failure","error":{"errorcode":"1004","errordesc":"Transaction expired"}}}`))
	})

	result, err := client.Finalize(context.Background(), 1)

	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, "1004", result.ErrorCode)
	assert.Equal(t, "Transaction expired", result.ErrorDescription)
}

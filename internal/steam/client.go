package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"microtx-service/internal/models"
	"microtx-service/internal/util"

	"go.uber.org/zap"
)

// Client talks to the microtransaction endpoints of the payment
// authority. A transport failure (no structured response obtained) is
// returned as an error; a structured non-OK envelope is returned as a
// result with OK=false and the authority's error fields filled in.
type Client interface {
	Initiate(ctx context.Context, tx *models.Transaction) (*InitiateResult, error)
	Finalize(ctx context.Context, orderID uint64) (*FinalizeResult, error)
}

// InitiateResult is the parsed outcome of an InitTxn call.
type InitiateResult struct {
	OK                    bool
	ExternalTransactionID uint64
	ErrorCode             string
	ErrorDescription      string
}

// FinalizeResult is the parsed outcome of a FinalizeTxn call.
type FinalizeResult struct {
	OK               bool
	ErrorCode        string
	ErrorDescription string
}

// Config holds the authority credentials and endpoint selection.
type Config struct {
	// APIURL is the base URL of the authority, e.g.
	// https://partner.steam-api.com/
	APIURL string

	AppID        string
	PublisherKey string

	// UseSandbox switches to the sandbox interface path, where
	// transactions settle without charging real money.
	UseSandbox bool
}

// HTTPClient is the production Client implementation, posting
// form-encoded requests per the ISteamMicroTxn contract.
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewHTTPClient creates an authority client. A missing publisher key is
// only warned about, matching the fail-at-call-time behavior expected
// in local development.
func NewHTTPClient(cfg Config) *HTTPClient {
	logger := util.GetLogger()
	if cfg.PublisherKey == "" {
		logger.Warn("Publisher key is not configured, authority calls will fail authentication")
	}

	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Initiate proposes the transaction to the authority (InitTxn).
func (c *HTTPClient) Initiate(ctx context.Context, tx *models.Transaction) (*InitiateResult, error) {
	form := url.Values{}
	form.Set("key", c.cfg.PublisherKey)
	form.Set("orderid", strconv.FormatUint(tx.OrderID, 10))
	form.Set("steamid", strconv.FormatUint(tx.PayerExternalID, 10))
	form.Set("appid", c.cfg.AppID)
	form.Set("itemcount", strconv.Itoa(len(tx.Items)))
	form.Set("language", tx.Language)
	form.Set("currency", tx.Currency)

	for i, item := range tx.Items {
		form.Set(fmt.Sprintf("itemid[%d]", i), strconv.FormatUint(uint64(item.ProductID), 10))
		form.Set(fmt.Sprintf("qty[%d]", i), strconv.Itoa(item.Quantity))
		form.Set(fmt.Sprintf("amount[%d]", i), strconv.FormatInt(item.AmountInCents, 10))
		form.Set(fmt.Sprintf("description[%d]", i), item.Description)
		if strings.TrimSpace(item.Category) != "" {
			form.Set(fmt.Sprintf("category[%d]", i), item.Category)
		}
	}

	envelope, err := c.post(ctx, "InitTxn/v3/", form)
	if err != nil {
		return nil, err
	}

	result := &InitiateResult{
		OK:               envelope.Response.Result == "OK",
		ErrorCode:        envelope.Response.Error.Code,
		ErrorDescription: envelope.Response.Error.Description,
	}
	if result.OK {
		transID, err := strconv.ParseUint(envelope.Response.Params.TransID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("authority returned unparseable transaction id %q: %w",
				envelope.Response.Params.TransID, err)
		}
		result.ExternalTransactionID = transID
	}
	return result, nil
}

// Finalize commits the transaction at the authority (FinalizeTxn).
func (c *HTTPClient) Finalize(ctx context.Context, orderID uint64) (*FinalizeResult, error) {
	form := url.Values{}
	form.Set("key", c.cfg.PublisherKey)
	form.Set("orderid", strconv.FormatUint(orderID, 10))
	form.Set("appid", c.cfg.AppID)

	envelope, err := c.post(ctx, "FinalizeTxn/v2/", form)
	if err != nil {
		return nil, err
	}

	return &FinalizeResult{
		OK:               envelope.Response.Result == "OK",
		ErrorCode:        envelope.Response.Error.Code,
		ErrorDescription: envelope.Response.Error.Description,
	}, nil
}

// responseEnvelope mirrors the authority's JSON response shape.
type responseEnvelope struct {
	Response struct {
		Result string `json:"result"`
		Params struct {
			TransID string `json:"transid"`
		} `json:"params"`
		Error struct {
			Code        string `json:"errorcode"`
			Description string `json:"errordesc"`
		} `json:"error"`
	} `json:"response"`
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, form url.Values) (*responseEnvelope, error) {
	start := time.Now()
	outcome := "transport_error"
	defer func() {
		util.AuthorityRequestLatency.WithLabelValues(endpoint, outcome).
			Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpointURL(endpoint), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build authority request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authority request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read authority response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Authority returned non-OK status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, fmt.Errorf("authority returned status %d", resp.StatusCode)
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode authority response: %w", err)
	}

	outcome = "ok"
	if envelope.Response.Result != "OK" {
		outcome = "rejected"
	}
	return &envelope, nil
}

// endpointURL joins the base URL, the interface path (sandbox or
// production) and the endpoint.
func (c *HTTPClient) endpointURL(endpoint string) string {
	base := c.cfg.APIURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	if c.cfg.UseSandbox {
		return base + "ISteamMicroTxnSandbox/" + endpoint
	}
	return base + "ISteamMicroTxn/" + endpoint
}

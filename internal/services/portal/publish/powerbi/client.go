// Package powerbi implements the external Publisher against the Power BI
// REST API using an app-registration client-credential flow.
package powerbi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/apacbi/budgetportal/internal/services/portal/domain"
	"github.com/apacbi/budgetportal/internal/services/portal/publish"
)

const (
	defaultBaseURL         = "https://api.powerbi.com/v1.0/myorg"
	defaultLoginURL        = "https://login.microsoftonline.com"
	defaultSubmissionTable = "BudgetSubmissions"
	defaultRecordsTable    = "BudgetRecords"
	scope                  = "https://analysis.windows.net/powerbi/api/.default"

	// Tokens are refreshed five minutes before their actual expiry.
	tokenExpirySlack = 5 * time.Minute
)

// Config holds Power BI workspace and app-registration settings.
type Config struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	WorkspaceID  string
	DatasetID    string

	// SubmissionTable receives pushed rows; RecordsTable serves hydration
	// reads. Both have working defaults.
	SubmissionTable string
	RecordsTable    string

	// BaseURL and LoginURL exist for tests; leave empty in production.
	BaseURL  string
	LoginURL string
}

// Client calls the Power BI REST API. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New creates a Power BI client. A nil httpClient uses http.DefaultClient.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("client secret is required")
	}
	if strings.TrimSpace(cfg.TenantID) == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	if strings.TrimSpace(cfg.WorkspaceID) == "" {
		return nil, fmt.Errorf("workspace id is required")
	}
	if strings.TrimSpace(cfg.DatasetID) == "" {
		return nil, fmt.Errorf("dataset id is required")
	}
	if cfg.SubmissionTable == "" {
		cfg.SubmissionTable = defaultSubmissionTable
	}
	if cfg.RecordsTable == "" {
		cfg.RecordsTable = defaultRecordsTable
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLoginURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// token returns a cached access token, acquiring a fresh one when the cached
// token is within the expiry slack.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("scope", scope)

	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.cfg.LoginURL, c.cfg.TenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response missing access token")
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenExpirySlack)
	return c.accessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) datasetPath(suffix string) string {
	return fmt.Sprintf("/groups/%s/datasets/%s%s", c.cfg.WorkspaceID, c.cfg.DatasetID, suffix)
}

// Push replaces the submission table rows with the batch.
func (c *Client) Push(ctx context.Context, rows []domain.PublishRow) error {
	rowsPath := c.datasetPath(fmt.Sprintf("/tables/%s/rows", c.cfg.SubmissionTable))

	// Clear existing rows first; the table holds only the latest submission.
	// Best effort: a failed delete surfaces as duplicate rows, not data loss.
	if resp, err := c.do(ctx, http.MethodDelete, rowsPath, nil); err == nil {
		_ = resp.Body.Close()
	}

	resp, err := c.do(ctx, http.MethodPost, rowsPath, map[string]any{"rows": rows})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push rows returned %s", resp.Status)
	}
	return nil
}

// Refresh triggers a dataset refresh without notification.
func (c *Client) Refresh(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, c.datasetPath("/refreshes"), map[string]string{
		"notifyOption": "NoNotification",
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("refresh returned %s", resp.Status)
	}
	return nil
}

// Validate reports whether the dataset is reachable with current credentials.
func (c *Client) Validate(ctx context.Context) bool {
	resp, err := c.do(ctx, http.MethodGet, c.datasetPath(""), nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type queryResponse struct {
	Results []struct {
		Tables []struct {
			Rows []map[string]any `json:"rows"`
		} `json:"tables"`
	} `json:"results"`
}

// Query fetches a partition's rows from the records table with a DAX filter.
func (c *Client) Query(ctx context.Context, userID, businessUnit string) ([]domain.HydrationRow, error) {
	dax := fmt.Sprintf(
		"EVALUATE FILTER('%s', [user_id] = \"%s\" && [business_unit] = \"%s\")",
		c.cfg.RecordsTable,
		strings.ReplaceAll(userID, `"`, ""),
		strings.ReplaceAll(businessUnit, `"`, ""),
	)
	payload := map[string]any{
		"queries":            []map[string]string{{"query": dax}},
		"serializerSettings": map[string]bool{"includeNulls": true},
	}

	resp, err := c.do(ctx, http.MethodPost, c.datasetPath("/executeQueries"), payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("executeQueries returned %s", resp.Status)
	}

	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}

	var rows []domain.HydrationRow
	if len(decoded.Results) == 0 || len(decoded.Results[0].Tables) == 0 {
		return rows, nil
	}
	for _, raw := range decoded.Results[0].Tables[0].Rows {
		rows = append(rows, hydrationRowFrom(raw))
	}
	return rows, nil
}

// hydrationRowFrom maps one executeQueries row. Keys arrive either bare or
// in DAX "Table[Column]" form depending on the dataset.
func hydrationRowFrom(raw map[string]any) domain.HydrationRow {
	columns := make(map[string]any, len(raw))
	for key, value := range raw {
		if open := strings.LastIndex(key, "["); open != -1 && strings.HasSuffix(key, "]") {
			key = key[open+1 : len(key)-1]
		}
		columns[key] = value
	}

	stringOf := func(name string) string {
		if value, ok := columns[name].(string); ok {
			return value
		}
		return ""
	}
	floatOf := func(name string) *float64 {
		if value, ok := columns[name].(float64); ok {
			return &value
		}
		return nil
	}
	remarkOf := func(name string) *string {
		if value, ok := columns[name].(string); ok {
			return &value
		}
		return nil
	}

	return domain.HydrationRow{
		SalesRegion:    stringOf("Sales_Region"),
		CustomerGroup:  stringOf("Customer_Group"),
		BizType:        stringOf("BizType"),
		VendorCategory: stringOf("Vendor_Category"),
		ProductNature:  stringOf("ProductNature"),
		Y2019A:         floatOf("Y2019A"),
		Y2020A:         floatOf("Y2020A"),
		Y2021A:         floatOf("Y2021A"),
		Y2022A:         floatOf("Y2022A"),
		Y2023A:         floatOf("Y2023A"),
		Y2024B:         floatOf("Y2024B"),
		Y2025B:         floatOf("Y2025B"),
		Y2026P:         floatOf("Y2026P"),
		Y2027P:         floatOf("Y2027P"),
		Y2028P:         floatOf("Y2028P"),
		Y2029P:         floatOf("Y2029P"),
		SalesRemark:    remarkOf("Sales_Remark"),
	}
}

var _ publish.Publisher = (*Client)(nil)
var _ publish.Validator = (*Client)(nil)
var _ publish.Reader = (*Client)(nil)

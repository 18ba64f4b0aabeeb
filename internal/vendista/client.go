package vendista

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vendhub/vendhub-backend/internal/logging"
)

// requestTimeLayout is the DateFrom/DateTo format the Vendista API expects.
const requestTimeLayout = "2006-01-02 15:04:05"

// Config holds the settings needed to reach the Vendista API.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the Vendista transaction API. It knows only about pages;
// aggregation and persistence are someone else's job.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient constructs a new Client.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Transaction is one item from a Vendista page. Only the identifying fields
// are parsed; the full payload is retained verbatim in Raw for storage.
type Transaction struct {
	ID     int64
	TermID int64
	Time   string
	Raw    json.RawMessage
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var fields struct {
		ID     int64  `json:"id"`
		TermID int64  `json:"term_id"`
		Time   string `json:"time"`
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	t.ID = fields.ID
	t.TermID = fields.TermID
	t.Time = fields.Time
	t.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Page is one page of the Vendista transactions response. ItemsCount is the
// total for the whole requested period, not the page size; ItemsPerPage is
// the page size the server actually used, which may differ from the
// requested one.
type Page struct {
	Items        []Transaction `json:"items"`
	ItemsCount   int           `json:"items_count"`
	ItemsPerPage int           `json:"items_per_page"`
	PageNumber   int           `json:"page_number"`
	Success      bool          `json:"success"`
}

// PageQuery holds the parameters of a single page request.
type PageQuery struct {
	DateFrom     time.Time
	DateTo       time.Time
	ItemsPerPage int
	PageNumber   int
	OrderDesc    bool
}

// FetchPage requests a single page of transactions. PageNumber is 1-based.
func (c *Client) FetchPage(ctx context.Context, q PageQuery) (*Page, error) {
	u, err := url.Parse(c.baseURL + "/transactions")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	vals := url.Values{}
	vals.Set("token", c.token)
	vals.Set("DateFrom", q.DateFrom.Format(requestTimeLayout))
	vals.Set("DateTo", q.DateTo.Format(requestTimeLayout))
	vals.Set("ItemsPerPage", strconv.Itoa(q.ItemsPerPage))
	vals.Set("PageNumber", strconv.Itoa(q.PageNumber))
	vals.Set("OrderDesc", strconv.FormatBool(q.OrderDesc))
	u.RawQuery = vals.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendista response status %d", resp.StatusCode)
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &page, nil
}

// FetchResult is the aggregate of a full paginated fetch.
type FetchResult struct {
	Items         []Transaction
	ExpectedTotal int
	PagesFetched  int
	LastPage      int
	ItemsPerPage  int
	// TruncatedEarly is set when a page came back empty before the expected
	// page count was reached. The fetch stops there; whether the gap is
	// transient or true end-of-data cannot be told apart client-side.
	TruncatedEarly bool
}

// FetchAll walks every page of the period sequentially, starting at page 1
// and advancing to the server-reported page number plus one. Any transport
// or HTTP failure aborts the whole call; no partial result is returned.
func (c *Client) FetchAll(ctx context.Context, dateFrom, dateTo time.Time, itemsPerPage int, orderDesc bool) (*FetchResult, error) {
	result := &FetchResult{ItemsPerPage: itemsPerPage}

	pageNumber := 1
	for {
		page, err := c.FetchPage(ctx, PageQuery{
			DateFrom:     dateFrom,
			DateTo:       dateTo,
			ItemsPerPage: itemsPerPage,
			PageNumber:   pageNumber,
			OrderDesc:    orderDesc,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", pageNumber, err)
		}

		// Total pages must be computed from the page size the server echoed
		// back, since the requested one is not necessarily honored.
		perPage := page.ItemsPerPage
		if perPage <= 0 {
			perPage = itemsPerPage
		}
		totalPages := (page.ItemsCount + perPage - 1) / perPage

		returned := page.PageNumber
		if returned <= 0 {
			returned = pageNumber
		}

		result.Items = append(result.Items, page.Items...)
		result.ExpectedTotal = page.ItemsCount
		result.ItemsPerPage = perPage
		result.PagesFetched++
		result.LastPage = returned

		if len(page.Items) == 0 && returned < totalPages {
			c.logger.WarnContext(ctx, "vendista pagination ended early on empty page",
				"page", returned,
				"total_pages", totalPages,
				"expected_total", page.ItemsCount,
			)
			result.TruncatedEarly = true
			break
		}

		if returned >= totalPages {
			break
		}
		pageNumber = returned + 1
	}

	c.logger.InfoContext(ctx, "vendista fetch completed",
		"items", len(result.Items),
		"expected_total", result.ExpectedTotal,
		"pages_fetched", result.PagesFetched,
		"last_page", result.LastPage,
	)

	return result, nil
}

// TestConnection probes the API with a single page-1 request for the current
// day. All errors are converted to false, never propagated.
func (c *Client) TestConnection(ctx context.Context) bool {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24*time.Hour - time.Second)

	_, err := c.FetchPage(ctx, PageQuery{
		DateFrom:     dayStart,
		DateTo:       dayEnd,
		ItemsPerPage: 1,
		PageNumber:   1,
		OrderDesc:    true,
	})
	if err != nil {
		c.logger.WarnContext(ctx, "vendista connection test failed", "error", err)
		return false
	}
	return true
}

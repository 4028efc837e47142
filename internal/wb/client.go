package wb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wbautoslot/internal/domain"
	"wbautoslot/pkg/logx"
)

const defaultBaseURL = "https://supplies-api.wildberries.ru"

type Config struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// AccountSource resolves the session cookies for a supplier account.
type AccountSource interface {
	GetAccount(ctx context.Context, id string) (domain.SupplierAccount, error)
}

// Client implements slot search and booking against the portal API.
type Client struct {
	http     *http.Client
	baseURL  string
	accounts AccountSource
	log      logx.Logger
}

func NewClient(cfg Config, accounts AccountSource, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		baseURL:  base,
		accounts: accounts,
		log:      log,
	}
}

// coeffEntry is one row of the acceptance coefficients response.
type coeffEntry struct {
	Date        string  `json:"date"`
	Coefficient float64 `json:"coefficient"`
	WarehouseID int64   `json:"warehouseID"`
	Warehouse   string  `json:"warehouseName"`
	BoxType     string  `json:"boxTypeName"`
	AllowUnload bool    `json:"allowUnload"`
}

// Search returns slots matching the criteria, already filtered. A slot
// qualifies when its warehouse matches, its date falls inside the range,
// its box type matches the requested packaging, and its coefficient is
// non-negative and at least the requested minimum.
func (c *Client) Search(ctx context.Context, crit domain.SearchCriteria) ([]domain.Slot, error) {
	acc, err := c.accounts.GetAccount(ctx, crit.AccountID)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	q := url.Values{}
	if crit.Warehouse != "" {
		q.Set("warehouse", crit.Warehouse)
	}
	entries, err := c.getCoefficients(ctx, acc, q)
	if err != nil {
		return nil, err
	}

	wantBox := packagingBoxType(crit.Packaging)
	var slots []domain.Slot
	for _, e := range entries {
		if e.Coefficient < 0 || !e.AllowUnload {
			continue
		}
		if crit.MinCoefficient > 0 && e.Coefficient < crit.MinCoefficient {
			continue
		}
		if crit.Warehouse != "" && !strings.EqualFold(e.Warehouse, crit.Warehouse) {
			continue
		}
		if wantBox != "" && !strings.EqualFold(e.BoxType, wantBox) {
			continue
		}
		date, perr := parseSlotDate(e.Date)
		if perr != nil {
			c.log.Debug("skipping slot with unparsable date", logx.String("date", e.Date))
			continue
		}
		if !inRange(date, crit.DateFrom, crit.DateTo) {
			continue
		}
		slots = append(slots, domain.Slot{
			ID:          fmt.Sprintf("%d-%s-%s", e.WarehouseID, date.Format("2006-01-02"), strings.ToLower(e.BoxType)),
			Date:        date,
			Warehouse:   e.Warehouse,
			Coefficient: e.Coefficient,
			Packaging:   crit.Packaging,
		})
	}
	c.log.Debug("slot search finished",
		logx.String("warehouse", crit.Warehouse),
		logx.Int("raw", len(entries)),
		logx.Int("matched", len(slots)))
	return slots, nil
}

type bookRequest struct {
	SlotID    string `json:"slot_id"`
	Date      string `json:"date"`
	Warehouse string `json:"warehouse"`
	BoxType   string `json:"box_type"`
	Shipment  string `json:"shipment_number,omitempty"`
}

// Book attempts to claim one slot. It returns (false, nil) when the portal
// rejects the booking because the slot is already gone; that is an expected
// race, not a transport failure.
func (c *Client) Book(ctx context.Context, task domain.Task, slot domain.Slot) (bool, error) {
	acc, err := c.accounts.GetAccount(ctx, task.AccountID)
	if err != nil {
		return false, fmt.Errorf("resolve account: %w", err)
	}

	body, err := json.Marshal(bookRequest{
		SlotID:    slot.ID,
		Date:      slot.Date.Format("2006-01-02"),
		Warehouse: slot.Warehouse,
		BoxType:   packagingBoxType(task.Packaging),
		Shipment:  task.ShipmentNumber,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/acceptance/book", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	setSessionCookies(req, acc)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer drainClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusGone:
		// slot taken between search and book
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return false, fmt.Errorf("booking rejected: session expired")
	default:
		return false, fmt.Errorf("booking failed: portal returned %d", resp.StatusCode)
	}
}

// CheckSession verifies that the account's cookies still hold a valid
// portal session.
func (c *Client) CheckSession(ctx context.Context, acc domain.SupplierAccount) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/account", nil)
	if err != nil {
		return false, err
	}
	setSessionCookies(req, acc)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer drainClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("session check: portal returned %d", resp.StatusCode)
	}
}

func (c *Client) getCoefficients(ctx context.Context, acc domain.SupplierAccount, q url.Values) ([]coeffEntry, error) {
	u := c.baseURL + "/api/v1/acceptance/coefficients"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	setSessionCookies(req, acc)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer drainClose(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("coefficients: session expired for account %s", acc.ID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coefficients: portal returned %d", resp.StatusCode)
	}

	var entries []coeffEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("coefficients: decode: %w", err)
	}
	return entries, nil
}

// setSessionCookies attaches the account's serialized cookies. The stored
// form is a JSON array of {name, value} pairs; a bare "k=v; k2=v2" string
// is accepted as a fallback.
func setSessionCookies(req *http.Request, acc domain.SupplierAccount) {
	raw := strings.TrimSpace(acc.Cookies)
	if raw == "" {
		return
	}
	if strings.HasPrefix(raw, "[") {
		var pairs []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal([]byte(raw), &pairs); err == nil {
			for _, p := range pairs {
				req.AddCookie(&http.Cookie{Name: p.Name, Value: p.Value})
			}
			return
		}
	}
	req.Header.Set("Cookie", raw)
}

func packagingBoxType(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "boxes":
		return "Короба"
	case "pallets", "mono-pallets":
		return "Палеты"
	default:
		return ""
	}
}

func parseSlotDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02", "02.01.2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func inRange(t, from, to time.Time) bool {
	day := t.Truncate(24 * time.Hour)
	if !from.IsZero() && day.Before(from.Truncate(24*time.Hour)) {
		return false
	}
	if !to.IsZero() && day.After(to.Truncate(24*time.Hour)) {
		return false
	}
	return true
}

func drainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<16))
	_ = rc.Close()
}

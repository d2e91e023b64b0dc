package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"bulk-sms-dispatch/internal/domain"
)

// The gateway's reporting path is undocumented and inconsistent: the
// endpoint URL has moved over time and the accepted content type varies, so
// candidates are tried in order with JSON first and form-encoded second.
// Report lookups are best effort and must never surface as dispatch
// failures, hence the blanket degradation to pending_report.

type reportRequest struct {
	User      string `json:"User"`
	Pass      string `json:"Pass"`
	MessageID int64  `json:"MessageId"`
}

// CheckStatus looks up the delivery state of a sent message. Unreachable
// endpoints, HTML error pages, and unmapped state texts all degrade to
// DeliveryPendingReport.
func (c *Client) CheckStatus(ctx context.Context, providerMessageID string, to domain.PhoneNumber) domain.DeliveryState {
	id, err := strconv.ParseInt(providerMessageID, 10, 64)
	if err != nil || id <= 0 {
		return domain.DeliveryPendingReport
	}

	for _, endpoint := range c.cfg.ReportURLs {
		for _, fetch := range []func(context.Context, string, int64) ([]reportRow, error){
			c.fetchReportJSON,
			c.fetchReportForm,
		} {
			rows, err := fetch(ctx, endpoint, id)
			if err != nil {
				c.log.Debug("report lookup failed", "endpoint", endpoint, "err", err)
				continue
			}
			if state, ok := pickState(rows, to); ok {
				return state
			}
		}
	}

	return domain.DeliveryPendingReport
}

func (c *Client) fetchReportJSON(ctx context.Context, endpoint string, id int64) ([]reportRow, error) {
	body, err := json.Marshal(reportRequest{User: c.cfg.User, Pass: c.cfg.Pass, MessageID: id})
	if err != nil {
		return nil, fmt.Errorf("marshal report request: %w", err)
	}
	return c.fetchReport(ctx, endpoint, "application/json", bytes.NewReader(body))
}

func (c *Client) fetchReportForm(ctx context.Context, endpoint string, id int64) ([]reportRow, error) {
	form := url.Values{
		"User":      {c.cfg.User},
		"Pass":      {c.cfg.Pass},
		"MessageId": {strconv.FormatInt(id, 10)},
	}
	return c.fetchReport(ctx, endpoint, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (c *Client) fetchReport(ctx context.Context, endpoint, contentType string, body io.Reader) ([]reportRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("report endpoint returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// The endpoint sometimes answers with an HTML error page; that must
	// parse as "no report", not as a failure.
	var rows []reportRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode report rows: %w", err)
	}
	return rows, nil
}

// pickState finds the row for the given recipient, falling back to the
// first row when the report carries no per-recipient numbers.
func pickState(rows []reportRow, to domain.PhoneNumber) (domain.DeliveryState, bool) {
	for _, row := range rows {
		if row.GSM != "" && !strings.HasSuffix(string(to), strings.TrimPrefix(row.GSM, "90")) {
			continue
		}
		if state, ok := mapState(row.State); ok {
			return state, ok
		}
	}
	if len(rows) > 0 {
		return mapState(rows[0].State)
	}
	return "", false
}

// turkishLower folds report text case-insensitively under Turkish rules, so
// dotted and dotless I variants ("İLETİLDİ") match their substrings.
var turkishLower = cases.Lower(language.Turkish)

// mapState maps the gateway's free-text state to the DeliveryState enum by
// substring. Rejection texts are checked before delivery texts because
// "undelivered" contains "delivered".
func mapState(raw string) (domain.DeliveryState, bool) {
	s := turkishLower.String(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}

	switch {
	case containsAny(s, "undeliv", "iletilemedi", "reject", "fail"):
		return domain.DeliveryUndelivered, true
	case containsAny(s, "deliv", "iletildi"):
		return domain.DeliveryDelivered, true
	case containsAny(s, "expire", "timeout", "timed", "zaman"):
		return domain.DeliveryTimedOut, true
	case containsAny(s, "queue", "kuyru", "bekliyor", "wait", "enroute"):
		return domain.DeliveryQueued, true
	case containsAny(s, "pending", "rapor"):
		return domain.DeliveryPendingReport, true
	}
	return "", false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

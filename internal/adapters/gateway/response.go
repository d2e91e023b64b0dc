package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The gateway is loosely typed: the same field arrives under several casing
// variants, and numeric ids sometimes arrive as strings. Everything is
// normalized into strict types here; the loose shape never leaks past this
// package.

// sendResponse is the decoded single or bulk send reply.
type sendResponse struct {
	Status     string
	MessageID  int64
	MessageIDs []int64
}

func (r *sendResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for k, v := range raw {
		switch strings.ToLower(k) {
		case "status":
			r.Status = flexString(v)
		case "messageid", "message_id", "msgid":
			r.MessageID = flexInt(v)
		case "messageids", "message_ids", "msgids":
			var items []json.RawMessage
			if err := json.Unmarshal(v, &items); err != nil {
				continue
			}
			for _, item := range items {
				r.MessageIDs = append(r.MessageIDs, flexInt(item))
			}
		}
	}
	return nil
}

func (r *sendResponse) affirmative() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), affirmativeStatus)
}

// messageIDs returns the per-message ids of a bulk reply, falling back to
// the single-id field when the gateway answered in the single shape.
func (r *sendResponse) messageIDs() []int64 {
	ids := make([]int64, 0, len(r.MessageIDs))
	for _, id := range r.MessageIDs {
		if id > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 && r.MessageID > 0 {
		ids = append(ids, r.MessageID)
	}
	return ids
}

// reportRow is one per-recipient entry from the reporting endpoint.
type reportRow struct {
	GSM   string
	State string
}

func (r *reportRow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	for k, v := range raw {
		switch strings.ToLower(k) {
		case "gsm", "number", "msisdn", "phone":
			r.GSM = flexString(v)
		case "state", "status", "report", "deliverystatus":
			r.State = flexString(v)
		}
	}
	return nil
}

// flexString accepts a JSON string or number and returns it as a string.
func flexString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// flexInt accepts a JSON number or numeric string and returns it as int64.
func flexInt(raw json.RawMessage) int64 {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

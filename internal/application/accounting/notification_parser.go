package accounting

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/sitebook/backend/internal/domain/accounting"
)

// classicPayload is the original data-change notification format
type classicPayload struct {
	EventNotifications []struct {
		RealmID         string `json:"realmId"`
		DataChangeEvent struct {
			Entities []struct {
				Name        string `json:"name"`
				ID          string `json:"id"`
				Operation   string `json:"operation"`
				LastUpdated string `json:"lastUpdated"`
			} `json:"entities"`
		} `json:"dataChangeEvent"`
	} `json:"eventNotifications"`
}

// cloudEvent is one entry of the CloudEvents array format, e.g.
// type "qbo.invoice.updated.v1"
type cloudEvent struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Time            string `json:"time"`
	IntuitAccountID string `json:"intuitaccountid"`
	IntuitEntityID  string `json:"intuitentityid"`
}

var cloudEventOperations = map[string]accounting.Operation{
	"created": accounting.OperationCreate,
	"updated": accounting.OperationUpdate,
	"deleted": accounting.OperationDelete,
}

// ParseNotifications extracts discrete entity changes from a webhook body.
// Both the classic eventNotifications object and the CloudEvents array are
// accepted. Anything else is a ValidationError.
func ParseNotifications(body []byte) ([]accounting.Notification, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, &accounting.ValidationError{Reason: "empty body"}
	}

	switch trimmed[0] {
	case '{':
		return parseClassic(trimmed)
	case '[':
		return parseCloudEvents(trimmed)
	default:
		return nil, &accounting.ValidationError{Reason: "body is not a JSON object or array"}
	}
}

func parseClassic(body []byte) ([]accounting.Notification, error) {
	var payload classicPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &accounting.ValidationError{Reason: err.Error()}
	}

	var out []accounting.Notification
	for _, n := range payload.EventNotifications {
		for _, e := range n.DataChangeEvent.Entities {
			out = append(out, accounting.Notification{
				RealmID:        n.RealmID,
				EntityName:     e.Name,
				EntityID:       e.ID,
				Operation:      accounting.ParseOperation(e.Operation),
				LastUpdated:    parseTimestamp(e.LastUpdated),
				LastUpdatedRaw: strings.TrimSpace(e.LastUpdated),
			})
		}
	}
	return out, nil
}

func parseCloudEvents(body []byte) ([]accounting.Notification, error) {
	var events []cloudEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, &accounting.ValidationError{Reason: err.Error()}
	}

	out := make([]accounting.Notification, 0, len(events))
	for _, e := range events {
		entity, op := splitCloudEventType(e.Type)
		out = append(out, accounting.Notification{
			EventID:        e.ID,
			RealmID:        e.IntuitAccountID,
			EntityName:     entity,
			EntityID:       e.IntuitEntityID,
			Operation:      op,
			LastUpdated:    parseTimestamp(e.Time),
			LastUpdatedRaw: strings.TrimSpace(e.Time),
		})
	}
	return out, nil
}

// splitCloudEventType turns "qbo.invoice.updated.v1" into ("Invoice", "update").
func splitCloudEventType(t string) (string, accounting.Operation) {
	parts := strings.Split(t, ".")
	if len(parts) < 3 {
		return "", ""
	}
	entity := parts[1]
	if entity != "" {
		entity = strings.ToUpper(entity[:1]) + entity[1:]
	}
	verb := strings.ToLower(parts[2])
	if op, ok := cloudEventOperations[verb]; ok {
		return entity, op
	}
	return entity, accounting.ParseOperation(verb)
}

// timestampLayouts covers RFC3339 and the classic format's colon-less
// offset, e.g. 2015-10-05T14:42:19-0700.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
}

func parseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

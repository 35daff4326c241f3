package messages

import "encoding/json"

// Known push frame types. Frames are recognized by where the delivery sits, so the type
// is informational.
const (
	TypeDeliveryUpdated = "delivery.updated"
	TypeDeliveryUpdate  = "delivery.update"
)

// ExtractDelivery finds the delivery object inside a push frame. It looks at "delivery",
// then "payload.delivery", then "data.delivery". Anything that is not a JSON object with
// one of those paths yields ok=false and must be ignored by the caller.
func ExtractDelivery(frame []byte) (map[string]any, bool) {
	var msg map[string]any
	if err := json.Unmarshal(frame, &msg); err != nil || msg == nil {
		return nil, false
	}
	if d, ok := asObject(msg["delivery"]); ok {
		return d, true
	}
	for _, wrapper := range []string{"payload", "data"} {
		if w, ok := asObject(msg[wrapper]); ok {
			if d, ok := asObject(w["delivery"]); ok {
				return d, true
			}
		}
	}
	return nil, false
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	return m, true
}

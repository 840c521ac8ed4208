package paymobwebhook

import (
	"bytes"
	"encoding/json"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ApprovedResponseCode is the gateway response code of an approved transaction.
const ApprovedResponseCode = "APPROVED"

// Notification is the normalised view of a Paymob callback.
type Notification struct {
	RemoteOrderID string
	TransactionID string
	Success       bool
	ResponseCode  string
	Message       string
}

type orderRef struct {
	ID json.RawMessage `json:"id"`
}

type txnData struct {
	TxnResponseCode string `json:"txn_response_code"`
	Message         string `json:"message"`
}

type rawNotification struct {
	Obj             json.RawMessage `json:"obj"`
	ID              json.RawMessage `json:"id"`
	Order           json.RawMessage `json:"order"`
	OrderID         json.RawMessage `json:"order_id"`
	Success         json.RawMessage `json:"success"`
	TxnResponseCode string          `json:"txn_response_code"`
	Message         string          `json:"message"`
	Data            *txnData        `json:"data"`
}

// ParseNotification reads a callback body. Paymob's {"type","obj"} envelope is
// unwrapped first. The order id is taken from order.id before the flat
// order_id. An explicit success flag decides the outcome; only when it is
// absent does an APPROVED response code count as success.
func ParseNotification(body []byte) (Notification, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "empty payload")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Notification{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed payload")
	}
	if len(fields) == 0 {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "empty payload")
	}

	var raw rawNotification
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Notification{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed payload")
	}
	if isObject(raw.Obj) {
		var inner rawNotification
		if err := json.Unmarshal(raw.Obj, &inner); err != nil {
			return Notification{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed payload")
		}
		raw = inner
	}

	n := Notification{
		RemoteOrderID: remoteOrderID(raw),
		TransactionID: scalarString(raw.ID),
		ResponseCode:  strings.TrimSpace(raw.TxnResponseCode),
		Message:       strings.TrimSpace(raw.Message),
	}
	if raw.Data != nil {
		if n.ResponseCode == "" {
			n.ResponseCode = strings.TrimSpace(raw.Data.TxnResponseCode)
		}
		if n.Message == "" {
			n.Message = strings.TrimSpace(raw.Data.Message)
		}
	}
	if n.RemoteOrderID == "" {
		return Notification{}, pkgerrors.New(pkgerrors.CodeValidation, "missing order_id")
	}
	if present(raw.Success) {
		n.Success = truthy(raw.Success)
	} else {
		n.Success = strings.EqualFold(n.ResponseCode, ApprovedResponseCode)
	}
	return n, nil
}

// present is false for a missing or null field.
func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func remoteOrderID(raw rawNotification) string {
	if isObject(raw.Order) {
		var ref orderRef
		if err := json.Unmarshal(raw.Order, &ref); err == nil {
			if id := scalarString(ref.ID); id != "" {
				return id
			}
		}
	}
	return scalarString(raw.OrderID)
}

// scalarString accepts a JSON string or number and returns its text form.
func scalarString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n.String()
	}
	return ""
}

func truthy(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	return false
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

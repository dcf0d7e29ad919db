package exchange

import (
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

var (
	ErrSymbolNotFound  = errors.New("symbol not found in exchange info")
	ErrLotSizeNotFound = errors.New("LOT_SIZE filter not found")
	ErrBadPrice        = errors.New("exchange returned a non-positive price")
)

// APIError is a non-200 answer from the exchange.
type APIError struct {
	StatusCode int
	Code       int64
	Msg        string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("binance: status %d, code %d: %s", e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("binance: status %d: %s", e.StatusCode, e.Msg)
}

// parseAPIError decodes the {"code":..,"msg":..} error payload, falling back
// to the raw body when it is not JSON.
func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	if code, err := jsonparser.GetInt(body, "code"); err == nil {
		apiErr.Code = code
	}
	if msg, err := jsonparser.GetString(body, "msg"); err == nil {
		apiErr.Msg = msg
	} else {
		raw := string(body)
		if len(raw) > 200 {
			raw = raw[:200]
		}
		apiErr.Msg = raw
	}
	return apiErr
}

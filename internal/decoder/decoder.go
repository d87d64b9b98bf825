package decoder

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rickgao/quotestream/internal/model"
)

// Errors
var (
	ErrMessageDecoding = errors.New("message decoding failed")
	ErrMalformedFrame  = errors.New("malformed frame")
)

// PricingData field numbers.
const (
	fieldID            protowire.Number = 1
	fieldPrice         protowire.Number = 2
	fieldTime          protowire.Number = 3
	fieldCurrency      protowire.Number = 4
	fieldExchange      protowire.Number = 5
	fieldQuoteType     protowire.Number = 6
	fieldMarketHours   protowire.Number = 7
	fieldChangePercent protowire.Number = 8
	fieldDayVolume     protowire.Number = 9
	fieldDayHigh       protowire.Number = 10
	fieldDayLow        protowire.Number = 11
	fieldChange        protowire.Number = 12
	fieldShortName     protowire.Number = 13
	fieldOpenPrice     protowire.Number = 15
	fieldPreviousClose protowire.Number = 16
	fieldBid           protowire.Number = 23
	fieldAsk           protowire.Number = 25
)

// Frame is the outer JSON envelope of a server text frame.
type Frame struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ParseFrame unmarshals the outer JSON envelope.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Message == "" && f.Error == "" {
		return Frame{}, fmt.Errorf("%w: no message field", ErrMalformedFrame)
	}
	return f, nil
}

// DecodeBase64 decodes a standard-alphabet base64 string. Padding is optional.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMessageDecoding)
	}

	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMessageDecoding, err)
	}
	return b, nil
}

// DecodeFrame parses a complete server text frame. A frame that carries only
// an error string yields an Update with ErrorText set and no symbol.
func DecodeFrame(data []byte, receivedAt time.Time) (model.Update, error) {
	f, err := ParseFrame(data)
	if err != nil {
		return model.Update{}, err
	}

	if f.Message == "" {
		return model.Update{ErrorText: f.Error, ReceivedAt: receivedAt}, nil
	}

	payload, err := DecodeBase64(f.Message)
	if err != nil {
		return model.Update{}, err
	}

	u, err := Decode(payload, receivedAt)
	if err != nil {
		return model.Update{}, err
	}
	u.ErrorText = f.Error
	return u, nil
}

// Decode reads a PricingData wire stream. capturedAt becomes both ReceivedAt
// and, when the stream has no time field, LastTradeTime.
func Decode(payload []byte, capturedAt time.Time) (model.Update, error) {
	if len(payload) == 0 {
		return model.Update{}, fmt.Errorf("%w: empty payload", ErrMessageDecoding)
	}

	u := model.Update{
		MarketState: model.MarketStateUnknown,
		ReceivedAt:  capturedAt,
	}
	haveTime := false

	b := payload
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return model.Update{}, fmt.Errorf("%w: tag: %v", ErrMessageDecoding, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return model.Update{}, fieldError(num, n)
			}
			b = b[n:]
			if num == fieldTime {
				haveTime = true
			}
			applyVarint(&u, num, v)

		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return model.Update{}, fieldError(num, n)
			}
			b = b[n:]
			applyFloat(&u, num, math.Float64frombits(v))

		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return model.Update{}, fieldError(num, n)
			}
			b = b[n:]
			applyBytes(&u, num, v)

		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return model.Update{}, fieldError(num, n)
			}
			b = b[n:]
			applyFloat(&u, num, widen32(v))

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				// Unknown wire type: the rest of the stream cannot be framed,
				// keep what was decoded so far.
				b = nil
				break
			}
			b = b[n:]
		}
	}

	if u.Symbol == "" {
		return model.Update{}, fmt.Errorf("%w: missing symbol", ErrMessageDecoding)
	}
	if !haveTime {
		u.LastTradeTime = capturedAt
	}
	return u, nil
}

func fieldError(num protowire.Number, n int) error {
	return fmt.Errorf("%w: field %d: %v", ErrMessageDecoding, num, protowire.ParseError(n))
}

func applyVarint(u *model.Update, num protowire.Number, v uint64) {
	switch num {
	case fieldTime:
		u.LastTradeTime = time.UnixMilli(protowire.DecodeZigZag(v)).UTC()
	case fieldQuoteType:
		u.QuoteType = model.QuoteType(int64(v))
	case fieldMarketHours:
		u.MarketState = model.MarketStateFromWire(int64(v))
	case fieldDayVolume:
		u.Volume = protowire.DecodeZigZag(v)
	}
}

func applyFloat(u *model.Update, num protowire.Number, f float64) {
	switch num {
	case fieldPrice:
		u.Price = f
	case fieldChangePercent:
		u.ChangePercent = f
	case fieldDayHigh:
		u.DayHigh = f
	case fieldDayLow:
		u.DayLow = f
	case fieldChange:
		u.Change = &f
	case fieldOpenPrice:
		u.OpenPrice = f
	case fieldPreviousClose:
		u.PreviousClose = f
	case fieldBid:
		u.Bid = f
	case fieldAsk:
		u.Ask = f
	}
}

func applyBytes(u *model.Update, num protowire.Number, v []byte) {
	switch num {
	case fieldID:
		u.Symbol = string(v)
	case fieldCurrency:
		u.Currency = string(v)
	case fieldExchange:
		u.Exchange = string(v)
	case fieldShortName:
		u.ShortName = string(v)
	}
}

// widen32 converts a float32 through its shortest decimal representation so
// that a wire value of 94745.08 reads back as 94745.08 rather than
// 94745.078125.
func widen32(bits uint32) float64 {
	f := float64(math.Float32frombits(bits))
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	v, err := strconv.ParseFloat(strconv.FormatFloat(f, 'g', -1, 32), 64)
	if err != nil {
		return f
	}
	return v
}

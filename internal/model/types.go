package model

import "time"

// MarketState is the trading session an update was produced in.
type MarketState int

const (
	MarketStatePre MarketState = iota
	MarketStateRegular
	MarketStatePost
	MarketStateExtended
	MarketStateUnknown MarketState = -1
)

// String returns the upstream name of the session.
func (s MarketState) String() string {
	switch s {
	case MarketStatePre:
		return "PRE"
	case MarketStateRegular:
		return "REGULAR"
	case MarketStatePost:
		return "POST"
	case MarketStateExtended:
		return "EXTENDED"
	default:
		return "UNKNOWN"
	}
}

// MarketStateFromWire maps the feed's market hours enum.
func MarketStateFromWire(v int64) MarketState {
	switch v {
	case 0:
		return MarketStatePre
	case 1:
		return MarketStateRegular
	case 2:
		return MarketStatePost
	case 3:
		return MarketStateExtended
	default:
		return MarketStateUnknown
	}
}

// QuoteType is the instrument class reported by the feed.
type QuoteType int

const (
	QuoteTypeNone           QuoteType = 0
	QuoteTypeAltSymbol      QuoteType = 5
	QuoteTypeHeartbeat      QuoteType = 7
	QuoteTypeEquity         QuoteType = 8
	QuoteTypeIndex          QuoteType = 9
	QuoteTypeMutualFund     QuoteType = 11
	QuoteTypeMoneyMarket    QuoteType = 12
	QuoteTypeOption         QuoteType = 13
	QuoteTypeCurrency       QuoteType = 14
	QuoteTypeWarrant        QuoteType = 15
	QuoteTypeBond           QuoteType = 17
	QuoteTypeFuture         QuoteType = 18
	QuoteTypeETF            QuoteType = 20
	QuoteTypeCommodity      QuoteType = 23
	QuoteTypeECNQuote       QuoteType = 28
	QuoteTypeCryptocurrency QuoteType = 41
	QuoteTypeIndicator      QuoteType = 42
	QuoteTypeIndustry       QuoteType = 1000
)

// String returns a lower-case name for the quote type.
func (q QuoteType) String() string {
	switch q {
	case QuoteTypeNone:
		return "none"
	case QuoteTypeAltSymbol:
		return "altsymbol"
	case QuoteTypeHeartbeat:
		return "heartbeat"
	case QuoteTypeEquity:
		return "equity"
	case QuoteTypeIndex:
		return "index"
	case QuoteTypeMutualFund:
		return "mutualfund"
	case QuoteTypeMoneyMarket:
		return "moneymarket"
	case QuoteTypeOption:
		return "option"
	case QuoteTypeCurrency:
		return "currency"
	case QuoteTypeWarrant:
		return "warrant"
	case QuoteTypeBond:
		return "bond"
	case QuoteTypeFuture:
		return "future"
	case QuoteTypeETF:
		return "etf"
	case QuoteTypeCommodity:
		return "commodity"
	case QuoteTypeECNQuote:
		return "ecnquote"
	case QuoteTypeCryptocurrency:
		return "cryptocurrency"
	case QuoteTypeIndicator:
		return "indicator"
	case QuoteTypeIndustry:
		return "industry"
	default:
		return "unknown"
	}
}

// Update is one decoded pricing frame. It is a value type: the decoder
// produces it once per frame and nothing mutates it afterwards.
type Update struct {
	Symbol        string      `json:"symbol"`
	Price         float64     `json:"price"`
	Change        *float64    `json:"change,omitempty"` // nil when the frame carries no change field
	ChangePercent float64     `json:"change_percent"`
	Volume        int64       `json:"volume"`
	MarketState   MarketState `json:"market_state"`
	DayHigh       float64     `json:"day_high"`
	DayLow        float64     `json:"day_low"`
	LastTradeTime time.Time   `json:"last_trade_time"`
	ErrorText     string      `json:"error,omitempty"`

	Currency      string    `json:"currency,omitempty"`
	Exchange      string    `json:"exchange,omitempty"`
	QuoteType     QuoteType `json:"quote_type"`
	ShortName     string    `json:"short_name,omitempty"`
	OpenPrice     float64   `json:"open_price,omitempty"`
	PreviousClose float64   `json:"previous_close,omitempty"`
	Bid           float64   `json:"bid,omitempty"`
	Ask           float64   `json:"ask,omitempty"`

	// ReceivedAt is the local time the frame was read off the socket.
	ReceivedAt time.Time `json:"received_at"`
}

// IsError reports whether the frame was a server-side error report rather
// than a price.
func (u Update) IsError() bool {
	return u.ErrorText != ""
}

// ChangeOrZero returns the absolute change, or 0 when absent.
func (u Update) ChangeOrZero() float64 {
	if u.Change == nil {
		return 0
	}
	return *u.Change
}

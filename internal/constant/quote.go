package constant

// viewer protocol message types
const (
	MessageTypeActiveTickers = "activeTickers"
	MessageTypePrices        = "prices"
	MessageTypeError         = "error"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeGetTickers    = "getTickers"
)

const (
	QuoteStreamName          = "quote"
	QuoteStreamSubjectAll    = "quote.*"
	QuoteStreamSubjectPrices = "quote.prices"
)

const (
	QuoteSourceDriverREST      = "rest"
	QuoteSourceDriverSimulated = "simulated"
)

const (
	QuoteSnapshotKey = "quote:snapshot"
)

package rest

// Wire DTOs for the standard exchange REST API. Prices and amounts travel
// as strings to preserve precision.

type tickerResponse struct {
	Symbol    string `json:"symbol"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	Last      string `json:"last"`
	Volume24h string `json:"volume24h"`
	Change24h string `json:"change24h"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

type depthResponse struct {
	Symbol    string      `json:"symbol"`
	Bids      [][2]string `json:"bids"` // [price, size]
	Asks      [][2]string `json:"asks"`
	Timestamp int64       `json:"timestamp"`
}

type balanceEntry struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type balancesResponse struct {
	Balances []balanceEntry `json:"balances"`
}

type orderBody struct {
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	Price         string `json:"price,omitempty"`
}

type orderResponse struct {
	OrderID       string `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	FilledAmount  string `json:"filledAmount"`
	AvgFillPrice  string `json:"avgFillPrice"`
	Fee           string `json:"fee"`
	UpdatedAt     int64  `json:"updatedAt"`
}

type fundingResponse struct {
	Symbol        string `json:"symbol"`
	Rate          string `json:"rate"`
	IntervalHours int    `json:"intervalHours"`
	NextAt        int64  `json:"nextAt"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

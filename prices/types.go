package prices

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// LatestPrices maps a pair such as "BTC-USD" to its current quotes.
type LatestPrices map[string]PriceDetail

// PriceDetail holds the quotes of one pair.
type PriceDetail struct {
	// Prices maps a source (exchange) to its quote.
	Prices    map[string]float64
	MinPrice  *float64
	MaxPrice  *float64
	MeanPrice *float64
}

// HistoricalPrice is one point of a price series.
type HistoricalPrice struct {
	Timestamp time.Time
	Price     float64
	High      *float64
	Low       *float64
	Open      *float64
	Close     *float64
}

// HistoricalOptions narrows a HistoricalPrices request. Zero values are omitted.
type HistoricalOptions struct {
	Start       time.Time
	End         time.Time
	Granularity string
}

// number decodes a JSON number or a JSON string holding a number.
// The price API quotes most values as strings.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid price %s: %w", data, err)
	}
	*n = number(v)
	return nil
}

func (n *number) ptr() *float64 {
	if n == nil {
		return nil
	}
	v := float64(*n)
	return &v
}

type priceDetailJSON struct {
	Prices    map[string]number `json:"prices"`
	MinPrice  *number           `json:"minPrice"`
	MaxPrice  *number           `json:"maxPrice"`
	MeanPrice *number           `json:"meanPrice"`
}

func (d priceDetailJSON) detail() PriceDetail {
	prices := make(map[string]float64, len(d.Prices))
	for source, v := range d.Prices {
		prices[source] = float64(v)
	}
	return PriceDetail{
		Prices:    prices,
		MinPrice:  d.MinPrice.ptr(),
		MaxPrice:  d.MaxPrice.ptr(),
		MeanPrice: d.MeanPrice.ptr(),
	}
}

type historicalPriceJSON struct {
	Timestamp time.Time `json:"timestamp"`
	Price     number    `json:"price"`
	High      *number   `json:"high"`
	Low       *number   `json:"low"`
	Open      *number   `json:"open"`
	Close     *number   `json:"close"`
}

func (p historicalPriceJSON) price() HistoricalPrice {
	return HistoricalPrice{
		Timestamp: p.Timestamp,
		Price:     float64(p.Price),
		High:      p.High.ptr(),
		Low:       p.Low.ptr(),
		Open:      p.Open.ptr(),
		Close:     p.Close.ptr(),
	}
}

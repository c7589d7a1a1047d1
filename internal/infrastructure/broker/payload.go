package broker

import domain "orderbookcollection/internal/domain/entity/marketdata"

type BaseMessage struct {
	OrderBook *domain.OrderBookView `json:"order_book,omitempty"`
}

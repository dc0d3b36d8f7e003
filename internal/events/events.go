package events

import (
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/google/uuid"
)

const (
	TypeItemsRemoved      = "cart.items_removed"
	TypeCheckoutSubmitted = "checkout.submitted"
)

// 재고/가격 재검증으로 장바구니에서 빠진 상품
type ItemsRemovedEvent struct {
	EventID   string        `json:"event_id"`
	Type      string        `json:"type"`
	SessionID string        `json:"session_id"`
	Items     []RemovedItem `json:"items"`
	Timestamp time.Time     `json:"timestamp"`
}

type RemovedItem struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
}

// 체크아웃 제출 완료 이벤트
type CheckoutSubmittedEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	OrderID   string    `json:"order_id"`
	Total     string    `json:"total"`
	Currency  string    `json:"currency"`
	ItemCount int       `json:"item_count"`
	Timestamp time.Time `json:"timestamp"`
}

// Product Service에서 받을 재고 차감 이벤트
type StockDeductedEvent struct {
	EventID   string    `json:"event_id"`
	OrderID   int       `json:"order_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	NewStock  int       `json:"new_stock"`
	Timestamp time.Time `json:"timestamp"`
}

func newItemsRemovedEvent(sessionID string, items []domain.LineItem, now time.Time) ItemsRemovedEvent {
	removed := make([]RemovedItem, 0, len(items))
	for _, item := range items {
		removed = append(removed, RemovedItem{
			ProductID: item.ProductID,
			Title:     item.Title,
			Quantity:  item.Quantity,
		})
	}
	return ItemsRemovedEvent{
		EventID:   uuid.NewString(),
		Type:      TypeItemsRemoved,
		SessionID: sessionID,
		Items:     removed,
		Timestamp: now.UTC(),
	}
}

func newCheckoutSubmittedEvent(sub *domain.CheckoutSubmission, result *domain.CheckoutResult, now time.Time) CheckoutSubmittedEvent {
	return CheckoutSubmittedEvent{
		EventID:   uuid.NewString(),
		Type:      TypeCheckoutSubmitted,
		SessionID: sub.SessionID,
		OrderID:   result.OrderID,
		Total:     sub.Total.StringFixed(domain.MoneyPlaces),
		Currency:  sub.Currency.String(),
		ItemCount: len(sub.Items),
		Timestamp: now.UTC(),
	}
}

package api

import (
	"time"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

type lineItemDTO struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type paymentResultDTO struct {
	TransactionID string     `json:"transaction_id,omitempty"`
	Gateway       string     `json:"gateway,omitempty"`
	Status        string     `json:"status,omitempty"`
	UpdateTime    *time.Time `json:"update_time,omitempty"`
	PayerEmail    string     `json:"payer_email,omitempty"`
}

type orderDTO struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	Status          string            `json:"status"`
	Currency        string            `json:"currency"`
	Items           []lineItemDTO     `json:"items"`
	TotalMinor      int64             `json:"total_minor"`
	TaxMinor        int64             `json:"tax_minor"`
	ShippingMinor   int64             `json:"shipping_minor"`
	ShippingAddress string            `json:"shipping_address,omitempty"`
	PaymentMethod   string            `json:"payment_method,omitempty"`
	IsPaid          bool              `json:"is_paid"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	DeliveredAt     *time.Time        `json:"delivered_at,omitempty"`
	PaymentResult   *paymentResultDTO `json:"payment_result,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

func toOrderDTO(order domain.Order) orderDTO {
	dto := orderDTO{
		ID:              order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		Currency:        order.Currency,
		Items:           make([]lineItemDTO, 0, len(order.Items)),
		TotalMinor:      order.TotalMinor,
		TaxMinor:        order.TaxMinor,
		ShippingMinor:   order.ShippingMinor,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
		IsPaid:          order.IsPaid,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, lineItemDTO{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	if !order.PaidAt.IsZero() {
		t := order.PaidAt
		dto.PaidAt = &t
	}
	if !order.DeliveredAt.IsZero() {
		t := order.DeliveredAt
		dto.DeliveredAt = &t
	}
	if !order.PaymentResult.Empty() {
		result := paymentResultDTO{
			TransactionID: order.PaymentResult.TransactionID,
			Gateway:       order.PaymentResult.Gateway,
			Status:        order.PaymentResult.Status,
			PayerEmail:    order.PaymentResult.PayerEmail,
		}
		if !order.PaymentResult.UpdateTime.IsZero() {
			t := order.PaymentResult.UpdateTime
			result.UpdateTime = &t
		}
		dto.PaymentResult = &result
	}
	return dto
}

func toOrderDTOs(orders []domain.Order) []orderDTO {
	result := make([]orderDTO, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderDTO(order))
	}
	return result
}

func toTimelineDTOs(events []domain.TimelineEvent) []timelineEventDTO {
	result := make([]timelineEventDTO, 0, len(events))
	for _, event := range events {
		result = append(result, timelineEventDTO{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return result
}

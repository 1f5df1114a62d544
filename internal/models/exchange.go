package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

type ExchangeStatus string

const (
	ExchangePending   ExchangeStatus = "Pending"
	ExchangeAccepted  ExchangeStatus = "Accepted"
	ExchangeRejected  ExchangeStatus = "Rejected"
	ExchangeCompleted ExchangeStatus = "Completed"
	ExchangeCancelled ExchangeStatus = "Cancelled"

	ExchangeEntity = "exchange"
)

type Exchange struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Book            primitive.ObjectID `bson:"book" json:"book"`
	RequestedBy     primitive.ObjectID `bson:"requested_by" json:"requested_by"`
	Owner           primitive.ObjectID `bson:"owner" json:"owner"`
	Status          ExchangeStatus     `bson:"status" json:"status"`
	RequestMessage  string             `bson:"request_message" json:"request_message"`
	ResponseMessage string             `bson:"response_message,omitempty" json:"response_message,omitempty"`
	ExchangeDate    *time.Time         `bson:"exchange_date" json:"exchange_date"`
	ReturnDate      *time.Time         `bson:"return_date" json:"return_date"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// ExchangeView carries the book and both party summaries alongside the
// exchange itself.
type ExchangeView struct {
	Exchange      `bson:",inline"`
	BookInfo      *Book        `json:"book_info,omitempty"`
	RequesterInfo *UserSummary `json:"requester_info,omitempty"`
	OwnerInfo     *UserSummary `json:"owner_info,omitempty"`
}

var ValidExchangeStatuses = map[string]bool{
	string(ExchangePending):   true,
	string(ExchangeAccepted):  true,
	string(ExchangeRejected):  true,
	string(ExchangeCompleted): true,
	string(ExchangeCancelled): true,
}

func IsValidExchangeStatus(status string) bool {
	return ValidExchangeStatuses[status]
}

// exchangeTransitions is the lifecycle: Pending may be accepted, rejected
// or cancelled; Accepted may only complete. Rejected, Completed and
// Cancelled are terminal. Nothing re-enters Pending.
var exchangeTransitions = map[ExchangeStatus][]ExchangeStatus{
	ExchangePending:  {ExchangeAccepted, ExchangeRejected, ExchangeCancelled},
	ExchangeAccepted: {ExchangeCompleted},
}

func CanTransition(from, to ExchangeStatus) bool {
	for _, next := range exchangeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminalExchangeStatus(status ExchangeStatus) bool {
	return len(exchangeTransitions[status]) == 0 && ValidExchangeStatuses[string(status)]
}

// ActiveExchangeStatuses are the states that keep a book off the shelf.
// At most one exchange per book may be in one of them.
var ActiveExchangeStatuses = []ExchangeStatus{ExchangePending, ExchangeAccepted}

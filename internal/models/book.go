package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookStatus string

const (
	StatusAvailable BookStatus = "Available"
	StatusReserved  BookStatus = "Reserved"
	StatusExchanged BookStatus = "Exchanged"

	BookEntity = "book"

	DefaultBookImage = "default-book.jpg"
)

type Book struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Title         string              `bson:"title" json:"title"`
	Author        string              `bson:"author" json:"author"`
	Description   string              `bson:"description" json:"description"`
	Condition     string              `bson:"condition" json:"condition"`
	Category      string              `bson:"category" json:"category"`
	Status        BookStatus          `bson:"status" json:"status"`
	Image         string              `bson:"image" json:"image"`
	Owner         primitive.ObjectID  `bson:"owner" json:"owner"`
	CurrentHolder *primitive.ObjectID `bson:"current_holder" json:"current_holder"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `bson:"updated_at" json:"updated_at"`
}

// BookView is a Book enriched with the owner and holder summaries the
// client renders next to each listing.
type BookView struct {
	Book       `bson:",inline"`
	OwnerInfo  *UserSummary `json:"owner_info,omitempty"`
	HolderInfo *UserSummary `json:"holder_info,omitempty"`
}

var ValidBookStatuses = map[string]bool{
	string(StatusAvailable): true,
	string(StatusReserved):  true,
	string(StatusExchanged): true,
}

func IsValidBookStatus(status string) bool {
	return ValidBookStatuses[status]
}

var ValidConditions = map[string]bool{
	"New":      true,
	"Like New": true,
	"Good":     true,
	"Fair":     true,
	"Poor":     true,
}

func IsValidCondition(condition string) bool {
	return ValidConditions[condition]
}

var ValidCategories = map[string]bool{
	"Fiction":          true,
	"Non-Fiction":      true,
	"Christian Living": true,
	"Bible Study":      true,
	"Biography":        true,
	"Children":         true,
	"Other":            true,
}

func IsValidCategory(category string) bool {
	return ValidCategories[category]
}

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tanzheen/church-book-exchange/internal/models"
	"github.com/tanzheen/church-book-exchange/internal/utils"
)

type MetricsHandler struct {
	BookCol     *mongo.Collection
	UserCol     *mongo.Collection
	ExchangeCol *mongo.Collection
}

func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	todayStart := utils.StartOfDay(time.Now())

	totalBooks, _ := h.BookCol.CountDocuments(ctx, bson.M{})

	availableBooks, _ := h.BookCol.CountDocuments(ctx, bson.M{
		"status": models.StatusAvailable,
	})

	totalMembers, _ := h.UserCol.CountDocuments(ctx, bson.M{})

	exchangesToday, _ := h.ExchangeCol.CountDocuments(ctx, bson.M{
		"created_at": bson.M{"$gte": todayStart},
	})

	activeExchanges, _ := h.ExchangeCol.CountDocuments(ctx, bson.M{
		"status": bson.M{"$in": models.ActiveExchangeStatuses},
	})

	json.NewEncoder(w).Encode(map[string]interface{}{
		"total_books":      totalBooks,
		"available_books":  availableBooks,
		"total_members":    totalMembers,
		"exchanges_today":  exchangesToday,
		"active_exchanges": activeExchanges,
	})
}

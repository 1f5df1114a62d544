package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tanzheen/church-book-exchange/internal/constants"
	"github.com/tanzheen/church-book-exchange/internal/middleware"
	"github.com/tanzheen/church-book-exchange/internal/models"
	"github.com/tanzheen/church-book-exchange/internal/utils"
)

type ExchangeHandler struct {
	ExchangeCol *mongo.Collection
	BookCol     *mongo.Collection
	UserCol     *mongo.Collection
	AuditLogger utils.Logger
}

func NewExchangeHandler(exchangeCol, bookCol, userCol *mongo.Collection, logger utils.Logger) *ExchangeHandler {
	return &ExchangeHandler{
		ExchangeCol: exchangeCol,
		BookCol:     bookCol,
		UserCol:     userCol,
		AuditLogger: logger,
	}
}

type CreateExchangeRequest struct {
	BookID         string `json:"book_id" validate:"required"`
	RequestMessage string `json:"request_message" validate:"required"`
}

type UpdateExchangeRequest struct {
	Status          string `json:"status" validate:"required"`
	ResponseMessage string `json:"response_message"`
}

// POST /exchanges
func (h *ExchangeHandler) CreateExchange(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	bookID, err := primitive.ObjectIDFromHex(req.BookID)
	if err != nil {
		utils.JSONError(w, "Invalid book ID", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var book models.Book
	if err := h.BookCol.FindOne(ctx, bson.M{"_id": bookID}).Decode(&book); err != nil {
		utils.JSONError(w, "Book not found", http.StatusNotFound)
		return
	}
	if book.Owner == callerID {
		utils.JSONError(w, "Cannot request your own book", http.StatusForbidden)
		return
	}
	if book.Status != models.StatusAvailable {
		utils.JSONError(w, "Book is not available for exchange", http.StatusConflict)
		return
	}

	// Reserve the book with a compare-and-set: the filter pins the status
	// so two racing requests cannot both claim it.
	res, err := h.BookCol.UpdateOne(ctx,
		bson.M{"_id": bookID, "status": models.StatusAvailable},
		bson.M{"$set": bson.M{"status": models.StatusReserved, "updated_at": time.Now()}},
	)
	if err != nil {
		utils.JSONError(w, "Failed to reserve book", http.StatusInternalServerError)
		return
	}
	if res.ModifiedCount == 0 {
		utils.JSONError(w, "Book is not available for exchange", http.StatusConflict)
		return
	}

	exchange := models.Exchange{
		ID:             primitive.NewObjectID(),
		Book:           bookID,
		RequestedBy:    callerID,
		Owner:          book.Owner,
		Status:         models.ExchangePending,
		RequestMessage: req.RequestMessage,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if _, err := h.ExchangeCol.InsertOne(ctx, exchange); err != nil {
		// Put the book back so the failed request doesn't strand it in
		// Reserved. The reconciler sweep covers a crash before this line.
		h.BookCol.UpdateOne(context.Background(),
			bson.M{"_id": bookID, "status": models.StatusReserved},
			bson.M{"$set": bson.M{"status": models.StatusAvailable, "updated_at": time.Now()}},
		)
		utils.JSONError(w, "Failed to record exchange request", http.StatusInternalServerError)
		return
	}

	h.AuditLogger.Log(ctx, models.ExchangeEntity, constants.Request, callerID.Hex(), exchange)

	views, err := h.buildExchangeViews(ctx, []models.Exchange{exchange})
	if err != nil {
		utils.JSON(w, http.StatusCreated, exchange)
		return
	}
	utils.JSON(w, http.StatusCreated, views[0])
}

// GET /exchanges
func (h *ExchangeHandler) GetMyExchanges(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.listExchanges(w, bson.M{"$or": bson.A{
		bson.M{"requested_by": callerID},
		bson.M{"owner": callerID},
	}})
}

// GET /exchanges/incoming
func (h *ExchangeHandler) GetIncoming(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.listExchanges(w, bson.M{"owner": callerID})
}

// GET /exchanges/outgoing
func (h *ExchangeHandler) GetOutgoing(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	h.listExchanges(w, bson.M{"requested_by": callerID})
}

func (h *ExchangeHandler) listExchanges(w http.ResponseWriter, filter bson.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cursor, err := h.ExchangeCol.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		utils.JSONError(w, "Failed to fetch exchanges", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var exchanges []models.Exchange
	if err = cursor.All(ctx, &exchanges); err != nil {
		utils.JSONError(w, "Error decoding exchanges", http.StatusInternalServerError)
		return
	}

	views, err := h.buildExchangeViews(ctx, exchanges)
	if err != nil {
		utils.JSONError(w, "Failed to enrich exchanges", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(views)
}

// PUT /exchanges/{id}
func (h *ExchangeHandler) UpdateExchangeStatus(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	exchangeID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		utils.JSONError(w, "Invalid exchange ID", http.StatusBadRequest)
		return
	}

	var req UpdateExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	target := models.ExchangeStatus(req.Status)
	if !models.IsValidExchangeStatus(req.Status) || target == models.ExchangePending {
		utils.JSONError(w, "Invalid status", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var exchange models.Exchange
	if err := h.ExchangeCol.FindOne(ctx, bson.M{"_id": exchangeID}).Decode(&exchange); err != nil {
		utils.JSONError(w, "Exchange request not found", http.StatusNotFound)
		return
	}

	if err := checkTransitionCaller(exchange, target, callerID); err != nil {
		utils.JSONError(w, err.Error(), http.StatusForbidden)
		return
	}
	if !models.CanTransition(exchange.Status, target) {
		utils.JSONError(w, "Exchange is not in a state that allows this transition", http.StatusConflict)
		return
	}

	now := time.Now()
	update := bson.M{"status": target, "updated_at": now}
	if req.ResponseMessage != "" {
		update["response_message"] = req.ResponseMessage
	}
	switch target {
	case models.ExchangeAccepted:
		update["exchange_date"] = now
	case models.ExchangeCompleted:
		update["return_date"] = now
	}

	// The filter pins the pre-checked status, so a concurrent transition
	// on the same exchange makes this a no-op instead of a double apply.
	res, err := h.ExchangeCol.UpdateOne(ctx,
		bson.M{"_id": exchangeID, "status": exchange.Status},
		bson.M{"$set": update},
	)
	if err != nil {
		utils.JSONError(w, "Failed to update exchange", http.StatusInternalServerError)
		return
	}
	if res.ModifiedCount == 0 {
		utils.JSONError(w, "Exchange is not in a state that allows this transition", http.StatusConflict)
		return
	}

	bookUpdate := bson.M{"updated_at": now}
	switch target {
	case models.ExchangeAccepted:
		bookUpdate["status"] = models.StatusExchanged
		bookUpdate["current_holder"] = exchange.RequestedBy
	case models.ExchangeRejected, models.ExchangeCancelled, models.ExchangeCompleted:
		bookUpdate["status"] = models.StatusAvailable
		bookUpdate["current_holder"] = nil
	}

	if _, err := h.BookCol.UpdateOne(ctx, bson.M{"_id": exchange.Book}, bson.M{"$set": bookUpdate}); err != nil {
		// Roll the exchange back; if that fails too, the reconciler sweep
		// re-derives the book state from the exchange.
		revert := bson.M{"status": exchange.Status, "updated_at": time.Now()}
		switch target {
		case models.ExchangeAccepted:
			revert["exchange_date"] = nil
		case models.ExchangeCompleted:
			revert["return_date"] = nil
		}
		h.ExchangeCol.UpdateOne(context.Background(),
			bson.M{"_id": exchangeID, "status": target},
			bson.M{"$set": revert},
		)
		utils.JSONError(w, "Failed to update book status", http.StatusInternalServerError)
		return
	}

	h.AuditLogger.Log(ctx, models.ExchangeEntity, transitionAction(target), callerID.Hex(), exchangeID.Hex())

	var updated models.Exchange
	if err := h.ExchangeCol.FindOne(ctx, bson.M{"_id": exchangeID}).Decode(&updated); err != nil {
		utils.JSONError(w, "Failed to load updated exchange", http.StatusInternalServerError)
		return
	}

	views, err := h.buildExchangeViews(ctx, []models.Exchange{updated})
	if err != nil {
		json.NewEncoder(w).Encode(updated)
		return
	}
	json.NewEncoder(w).Encode(views[0])
}

// checkTransitionCaller enforces who may fire each transition: the owner
// accepts or rejects, the requester cancels, either party completes.
func checkTransitionCaller(exchange models.Exchange, target models.ExchangeStatus, callerID primitive.ObjectID) error {
	switch target {
	case models.ExchangeAccepted, models.ExchangeRejected:
		if exchange.Owner != callerID {
			return errNotOwner
		}
	case models.ExchangeCancelled:
		if exchange.RequestedBy != callerID {
			return errNotRequester
		}
	case models.ExchangeCompleted:
		if exchange.Owner != callerID && exchange.RequestedBy != callerID {
			return errNotParty
		}
	}
	return nil
}

var (
	errNotOwner     = exchangeError("Only the book owner can respond to this request")
	errNotRequester = exchangeError("Only the requester can cancel this request")
	errNotParty     = exchangeError("Only the owner or requester can complete this exchange")
)

type exchangeError string

func (e exchangeError) Error() string { return string(e) }

func transitionAction(target models.ExchangeStatus) string {
	switch target {
	case models.ExchangeAccepted:
		return constants.Accept
	case models.ExchangeRejected:
		return constants.Reject
	case models.ExchangeCancelled:
		return constants.Cancel
	case models.ExchangeCompleted:
		return constants.Complete
	}
	return constants.Update
}

func (h *ExchangeHandler) buildExchangeViews(ctx context.Context, exchanges []models.Exchange) ([]models.ExchangeView, error) {
	bookIDs := make([]primitive.ObjectID, 0, len(exchanges))
	seenBooks := make(map[primitive.ObjectID]bool)
	userIDs := make([]primitive.ObjectID, 0, len(exchanges)*2)
	seenUsers := make(map[primitive.ObjectID]bool)

	for _, e := range exchanges {
		if !seenBooks[e.Book] {
			seenBooks[e.Book] = true
			bookIDs = append(bookIDs, e.Book)
		}
		for _, id := range []primitive.ObjectID{e.RequestedBy, e.Owner} {
			if !seenUsers[id] {
				seenUsers[id] = true
				userIDs = append(userIDs, id)
			}
		}
	}

	books := make(map[primitive.ObjectID]models.Book)
	if len(bookIDs) > 0 {
		cursor, err := h.BookCol.Find(ctx, bson.M{"_id": bson.M{"$in": bookIDs}})
		if err != nil {
			return nil, err
		}
		defer cursor.Close(ctx)

		var found []models.Book
		if err := cursor.All(ctx, &found); err != nil {
			return nil, err
		}
		for _, b := range found {
			books[b.ID] = b
		}
	}

	users, err := fetchUserSummaries(ctx, h.UserCol, userIDs)
	if err != nil {
		return nil, err
	}

	views := make([]models.ExchangeView, 0, len(exchanges))
	for _, e := range exchanges {
		view := models.ExchangeView{Exchange: e}
		if b, ok := books[e.Book]; ok {
			view.BookInfo = &b
		}
		if u, ok := users[e.RequestedBy]; ok {
			view.RequesterInfo = &u
		}
		if u, ok := users[e.Owner]; ok {
			view.OwnerInfo = &u
		}
		views = append(views, view)
	}
	return views, nil
}

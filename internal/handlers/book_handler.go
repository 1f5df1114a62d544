package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tanzheen/church-book-exchange/internal/constants"
	"github.com/tanzheen/church-book-exchange/internal/middleware"
	"github.com/tanzheen/church-book-exchange/internal/models"
	"github.com/tanzheen/church-book-exchange/internal/utils"
)

type BookHandler struct {
	BookCol     *mongo.Collection
	ExchangeCol *mongo.Collection
	UserCol     *mongo.Collection
	AuditLogger utils.Logger
}

func NewBookHandler(bookCol, exchangeCol, userCol *mongo.Collection, logger utils.Logger) *BookHandler {
	return &BookHandler{
		BookCol:     bookCol,
		ExchangeCol: exchangeCol,
		UserCol:     userCol,
		AuditLogger: logger,
	}
}

type CreateBookRequest struct {
	Title       string `json:"title" validate:"required"`
	Author      string `json:"author" validate:"required"`
	Description string `json:"description" validate:"required"`
	Condition   string `json:"condition" validate:"required"`
	Category    string `json:"category" validate:"required"`
	Image       string `json:"image"`
}

// GET /books?category=&status=&search=
func (h *BookHandler) GetBooks(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	status := r.URL.Query().Get("status")
	search := r.URL.Query().Get("search")

	filter := bson.M{}

	if category != "" {
		if !models.IsValidCategory(category) {
			utils.JSONError(w, "Invalid category", http.StatusBadRequest)
			return
		}
		filter["category"] = category
	}

	if status != "" {
		if !models.IsValidBookStatus(status) {
			utils.JSONError(w, "Invalid status", http.StatusBadRequest)
			return
		}
		filter["status"] = status
	}

	if search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"author": pattern},
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.listBooks(ctx, w, filter)
}

// GET /books/user/mybooks
func (h *BookHandler) GetMyBooks(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.listBooks(ctx, w, bson.M{"owner": callerID})
}

func (h *BookHandler) listBooks(ctx context.Context, w http.ResponseWriter, filter bson.M) {
	cursor, err := h.BookCol.Find(ctx, filter)
	if err != nil {
		utils.JSONError(w, "Failed to fetch books", http.StatusInternalServerError)
		return
	}
	defer cursor.Close(ctx)

	var books []models.Book
	if err = cursor.All(ctx, &books); err != nil {
		utils.JSONError(w, "Error decoding books", http.StatusInternalServerError)
		return
	}

	users, err := fetchUserSummaries(ctx, h.UserCol, bookUserIDs(books))
	if err != nil {
		utils.JSONError(w, "Failed to fetch book owners", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(buildBookViews(books, users))
}

// GET /books/{id}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
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

	users, err := fetchUserSummaries(ctx, h.UserCol, bookUserIDs([]models.Book{book}))
	if err != nil {
		utils.JSONError(w, "Failed to fetch book owner", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(buildBookViews([]models.Book{book}, users)[0])
}

// POST /books
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !models.IsValidCondition(req.Condition) {
		utils.JSONError(w, "Invalid condition", http.StatusBadRequest)
		return
	}
	if !models.IsValidCategory(req.Category) {
		utils.JSONError(w, "Invalid category", http.StatusBadRequest)
		return
	}

	image := req.Image
	if image == "" {
		image = models.DefaultBookImage
	}

	book := models.Book{
		ID:            primitive.NewObjectID(),
		Title:         req.Title,
		Author:        req.Author,
		Description:   req.Description,
		Condition:     req.Condition,
		Category:      req.Category,
		Status:        models.StatusAvailable,
		Image:         image,
		Owner:         callerID,
		CurrentHolder: nil,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := h.BookCol.InsertOne(ctx, book); err != nil {
		utils.JSONError(w, "Insert failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.AuditLogger.Log(ctx, models.BookEntity, constants.Create, callerID.Hex(), book)

	users, _ := fetchUserSummaries(ctx, h.UserCol, []primitive.ObjectID{callerID})
	utils.JSON(w, http.StatusCreated, buildBookViews([]models.Book{book}, users)[0])
}

// PUT /books/{id}
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bookID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		utils.JSONError(w, "Invalid book ID", http.StatusBadRequest)
		return
	}

	var updateData map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updateData); err != nil {
		utils.JSONError(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	// status, holder and owner belong to the exchange workflow, not the
	// edit surface.
	delete(updateData, "status")
	delete(updateData, "current_holder")
	delete(updateData, "owner")
	delete(updateData, "_id")
	delete(updateData, "id")

	if len(updateData) == 0 {
		utils.JSONError(w, "No update fields provided", http.StatusBadRequest)
		return
	}

	if condition, ok := updateData["condition"]; ok {
		conditionStr, ok := condition.(string)
		if !ok || !models.IsValidCondition(conditionStr) {
			utils.JSONError(w, "Invalid condition", http.StatusBadRequest)
			return
		}
	}
	if category, ok := updateData["category"]; ok {
		categoryStr, ok := category.(string)
		if !ok || !models.IsValidCategory(categoryStr) {
			utils.JSONError(w, "Invalid category", http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var book models.Book
	if err := h.BookCol.FindOne(ctx, bson.M{"_id": bookID}).Decode(&book); err != nil {
		utils.JSONError(w, "Book not found", http.StatusNotFound)
		return
	}
	if book.Owner != callerID {
		utils.JSONError(w, "Not authorized", http.StatusUnauthorized)
		return
	}

	updateData["updated_at"] = time.Now()

	if _, err := h.BookCol.UpdateByID(ctx, bookID, bson.M{"$set": updateData}); err != nil {
		utils.JSONError(w, "Update failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.AuditLogger.Log(ctx, models.BookEntity, constants.Update, callerID.Hex(), updateData)

	var updated models.Book
	if err := h.BookCol.FindOne(ctx, bson.M{"_id": bookID}).Decode(&updated); err != nil {
		utils.JSONError(w, "Failed to load updated book", http.StatusInternalServerError)
		return
	}

	users, _ := fetchUserSummaries(ctx, h.UserCol, bookUserIDs([]models.Book{updated}))
	json.NewEncoder(w).Encode(buildBookViews([]models.Book{updated}, users)[0])
}

// DELETE /books/{id}
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bookID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
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
	if book.Owner != callerID {
		utils.JSONError(w, "Not authorized", http.StatusUnauthorized)
		return
	}

	// Deleting a book out from under a live request would orphan the
	// exchange, so refuse while one is active.
	active, err := h.ExchangeCol.CountDocuments(ctx, bson.M{
		"book":   bookID,
		"status": bson.M{"$in": models.ActiveExchangeStatuses},
	})
	if err != nil {
		utils.JSONError(w, "Failed to check active exchanges", http.StatusInternalServerError)
		return
	}
	if active > 0 {
		utils.JSONError(w, "Book has an active exchange request", http.StatusConflict)
		return
	}

	result, err := h.BookCol.DeleteOne(ctx, bson.M{"_id": bookID})
	if err != nil {
		utils.JSONError(w, "Delete failed", http.StatusInternalServerError)
		return
	}
	if result.DeletedCount == 0 {
		utils.JSONError(w, "Book not found", http.StatusNotFound)
		return
	}

	h.AuditLogger.Log(ctx, models.BookEntity, constants.Delete, callerID.Hex(), bookID.Hex())

	json.NewEncoder(w).Encode(map[string]string{"message": "Book removed"})
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/tanzheen/church-book-exchange/internal/constants"
	"github.com/tanzheen/church-book-exchange/internal/middleware"
	"github.com/tanzheen/church-book-exchange/internal/models"
	"github.com/tanzheen/church-book-exchange/internal/utils"
)

var validate = validator.New()

type AuthHandler struct {
	UserCol     *mongo.Collection
	AuditLogger utils.Logger
}

func NewAuthHandler(userCol *mongo.Collection, logger utils.Logger) *AuthHandler {
	return &AuthHandler{UserCol: userCol, AuditLogger: logger}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Church   string `json:"church"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

// POST /users/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := h.UserCol.CountDocuments(ctx, bson.M{"email": req.Email})
	if err != nil {
		utils.JSONError(w, "Failed to check existing users", http.StatusInternalServerError)
		return
	}
	if count > 0 {
		utils.JSONError(w, "Email already registered", http.StatusConflict)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.JSONError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user := models.User{
		ID:        primitive.NewObjectID(),
		Name:      req.Name,
		Email:     req.Email,
		Church:    req.Church,
		Password:  string(hashed),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if _, err := h.UserCol.InsertOne(ctx, user); err != nil {
		utils.JSONError(w, "Insert failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	token, err := utils.GenerateJWT(user.ID.Hex())
	if err != nil {
		utils.JSONError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	h.AuditLogger.Log(ctx, models.UserEntity, constants.Register, user.ID.Hex(), user.Summary())

	utils.JSON(w, http.StatusCreated, AuthResponse{Token: token, User: user.Summary()})
}

// POST /users/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var user models.User
	if err := h.UserCol.FindOne(ctx, bson.M{"email": req.Email}).Decode(&user); err != nil {
		utils.JSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		utils.JSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := utils.GenerateJWT(user.ID.Hex())
	if err != nil {
		utils.JSONError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	h.AuditLogger.Log(ctx, models.UserEntity, constants.Login, user.ID.Hex(), nil)

	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user.Summary()})
}

// GET /users/profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var user models.User
	if err := h.UserCol.FindOne(ctx, bson.M{"_id": callerID}).Decode(&user); err != nil {
		utils.JSONError(w, "User not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(user)
}

// PUT /users/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	callerID, err := primitive.ObjectIDFromHex(middleware.CallerID(r))
	if err != nil {
		utils.JSONError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name     string `json:"name"`
		Church   string `json:"church"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	updateData := bson.M{"updated_at": time.Now()}
	if req.Name != "" {
		updateData["name"] = req.Name
	}
	if req.Church != "" {
		updateData["church"] = req.Church
	}
	if req.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			utils.JSONError(w, "Failed to hash password", http.StatusInternalServerError)
			return
		}
		updateData["password"] = string(hashed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := h.UserCol.UpdateByID(ctx, callerID, bson.M{"$set": updateData})
	if err != nil {
		utils.JSONError(w, "Update failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if res.MatchedCount == 0 {
		utils.JSONError(w, "User not found", http.StatusNotFound)
		return
	}

	h.AuditLogger.Log(ctx, models.UserEntity, constants.Update, callerID.Hex(), req.Name)

	json.NewEncoder(w).Encode(map[string]string{"message": "Profile updated"})
}

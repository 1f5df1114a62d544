package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/tanzheen/church-book-exchange/internal/handlers"
	"github.com/tanzheen/church-book-exchange/internal/models"
)

func TestExchangeHandler_CreateExchange(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("missing request message", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		router := mux.NewRouter()
		router.HandleFunc("/exchanges", handler.CreateExchange).Methods("POST")

		payload, _ := json.Marshal(handlers.CreateExchangeRequest{
			BookID: primitive.NewObjectID().Hex(),
		})
		req := authedRequest(http.MethodPost, "/exchanges", payload, primitive.NewObjectID())
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status BadRequest, got %v", res.Status)
		}
	})

	mt.Run("unknown book", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.books", mtest.FirstBatch))

		router := mux.NewRouter()
		router.HandleFunc("/exchanges", handler.CreateExchange).Methods("POST")

		payload, _ := json.Marshal(handlers.CreateExchangeRequest{
			BookID:         primitive.NewObjectID().Hex(),
			RequestMessage: "Can I borrow this?",
		})
		req := authedRequest(http.MethodPost, "/exchanges", payload, primitive.NewObjectID())
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusNotFound {
			t.Errorf("expected status NotFound, got %v", res.Status)
		}
	})

	mt.Run("requesting own book is forbidden", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		ownerID := primitive.NewObjectID()
		bookID := primitive.NewObjectID()

		mt.AddMockResponses(mtest.CreateCursorResponse(1, "test.books", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: bookID},
			{Key: "owner", Value: ownerID},
			{Key: "status", Value: models.StatusAvailable},
		}))

		router := mux.NewRouter()
		router.HandleFunc("/exchanges", handler.CreateExchange).Methods("POST")

		payload, _ := json.Marshal(handlers.CreateExchangeRequest{
			BookID:         bookID.Hex(),
			RequestMessage: "Can I borrow my own book?",
		})
		req := authedRequest(http.MethodPost, "/exchanges", payload, ownerID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusForbidden {
			t.Errorf("expected status Forbidden, got %v", res.Status)
		}
	})

	mt.Run("reserved book cannot be requested", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		bookID := primitive.NewObjectID()

		mt.AddMockResponses(mtest.CreateCursorResponse(1, "test.books", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: bookID},
			{Key: "owner", Value: primitive.NewObjectID()},
			{Key: "status", Value: models.StatusReserved},
		}))

		router := mux.NewRouter()
		router.HandleFunc("/exchanges", handler.CreateExchange).Methods("POST")

		payload, _ := json.Marshal(handlers.CreateExchangeRequest{
			BookID:         bookID.Hex(),
			RequestMessage: "Can I borrow this?",
		})
		req := authedRequest(http.MethodPost, "/exchanges", payload, primitive.NewObjectID())
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusConflict {
			t.Errorf("expected status Conflict, got %v", res.Status)
		}
	})
}

func TestExchangeHandler_UpdateExchangeStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("invalid target status", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		router := mux.NewRouter()
		router.HandleFunc("/exchanges/{id}", handler.UpdateExchangeStatus).Methods("PUT")

		req := authedRequest(http.MethodPut, "/exchanges/"+primitive.NewObjectID().Hex(),
			[]byte(`{"status":"Returned"}`), primitive.NewObjectID())
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status BadRequest, got %v", res.Status)
		}
	})

	mt.Run("re-entering Pending is rejected", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		router := mux.NewRouter()
		router.HandleFunc("/exchanges/{id}", handler.UpdateExchangeStatus).Methods("PUT")

		req := authedRequest(http.MethodPut, "/exchanges/"+primitive.NewObjectID().Hex(),
			[]byte(`{"status":"Pending"}`), primitive.NewObjectID())
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusBadRequest {
			t.Errorf("expected status BadRequest, got %v", res.Status)
		}
	})

	mt.Run("non-owner cannot accept", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		exchangeID := primitive.NewObjectID()
		ownerID := primitive.NewObjectID()
		requesterID := primitive.NewObjectID()

		mt.AddMockResponses(mtest.CreateCursorResponse(1, "test.exchanges", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: exchangeID},
			{Key: "book", Value: primitive.NewObjectID()},
			{Key: "requested_by", Value: requesterID},
			{Key: "owner", Value: ownerID},
			{Key: "status", Value: models.ExchangePending},
		}))

		router := mux.NewRouter()
		router.HandleFunc("/exchanges/{id}", handler.UpdateExchangeStatus).Methods("PUT")

		// The requester tries to accept their own request.
		req := authedRequest(http.MethodPut, "/exchanges/"+exchangeID.Hex(),
			[]byte(`{"status":"Accepted"}`), requesterID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusForbidden {
			t.Errorf("expected status Forbidden, got %v", res.Status)
		}
	})

	mt.Run("owner cannot cancel", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		exchangeID := primitive.NewObjectID()
		ownerID := primitive.NewObjectID()

		mt.AddMockResponses(mtest.CreateCursorResponse(1, "test.exchanges", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: exchangeID},
			{Key: "book", Value: primitive.NewObjectID()},
			{Key: "requested_by", Value: primitive.NewObjectID()},
			{Key: "owner", Value: ownerID},
			{Key: "status", Value: models.ExchangePending},
		}))

		router := mux.NewRouter()
		router.HandleFunc("/exchanges/{id}", handler.UpdateExchangeStatus).Methods("PUT")

		req := authedRequest(http.MethodPut, "/exchanges/"+exchangeID.Hex(),
			[]byte(`{"status":"Cancelled"}`), ownerID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusForbidden {
			t.Errorf("expected status Forbidden, got %v", res.Status)
		}
	})

	mt.Run("terminal exchange rejects all transitions", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		exchangeID := primitive.NewObjectID()
		ownerID := primitive.NewObjectID()

		mt.AddMockResponses(mtest.CreateCursorResponse(1, "test.exchanges", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: exchangeID},
			{Key: "book", Value: primitive.NewObjectID()},
			{Key: "requested_by", Value: primitive.NewObjectID()},
			{Key: "owner", Value: ownerID},
			{Key: "status", Value: models.ExchangeRejected},
		}))

		router := mux.NewRouter()
		router.HandleFunc("/exchanges/{id}", handler.UpdateExchangeStatus).Methods("PUT")

		req := authedRequest(http.MethodPut, "/exchanges/"+exchangeID.Hex(),
			[]byte(`{"status":"Accepted"}`), ownerID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusConflict {
			t.Errorf("expected status Conflict, got %v", res.Status)
		}
	})

	mt.Run("pending exchange cannot complete before accept", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		exchangeID := primitive.NewObjectID()
		requesterID := primitive.NewObjectID()

		mt.AddMockResponses(mtest.CreateCursorResponse(1, "test.exchanges", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: exchangeID},
			{Key: "book", Value: primitive.NewObjectID()},
			{Key: "requested_by", Value: requesterID},
			{Key: "owner", Value: primitive.NewObjectID()},
			{Key: "status", Value: models.ExchangePending},
		}))

		router := mux.NewRouter()
		router.HandleFunc("/exchanges/{id}", handler.UpdateExchangeStatus).Methods("PUT")

		req := authedRequest(http.MethodPut, "/exchanges/"+exchangeID.Hex(),
			[]byte(`{"status":"Completed"}`), requesterID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusConflict {
			t.Errorf("expected status Conflict, got %v", res.Status)
		}
	})

	mt.Run("owner accepts a pending exchange", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		exchangeID := primitive.NewObjectID()
		bookID := primitive.NewObjectID()
		ownerID := primitive.NewObjectID()
		requesterID := primitive.NewObjectID()
		now := time.Now()

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "test.exchanges", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: exchangeID},
				{Key: "book", Value: bookID},
				{Key: "requested_by", Value: requesterID},
				{Key: "owner", Value: ownerID},
				{Key: "status", Value: models.ExchangePending},
				{Key: "request_message", Value: "Can I borrow this?"},
			}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateCursorResponse(0, "test.exchanges", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: exchangeID},
				{Key: "book", Value: bookID},
				{Key: "requested_by", Value: requesterID},
				{Key: "owner", Value: ownerID},
				{Key: "status", Value: models.ExchangeAccepted},
				{Key: "request_message", Value: "Can I borrow this?"},
				{Key: "exchange_date", Value: now},
			}),
			mtest.CreateCursorResponse(0, "test.books", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: bookID},
				{Key: "title", Value: "Mere Christianity"},
				{Key: "owner", Value: ownerID},
				{Key: "status", Value: models.StatusExchanged},
				{Key: "current_holder", Value: requesterID},
			}),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch,
				bson.D{{Key: "_id", Value: ownerID}, {Key: "name", Value: "Alice"}},
				bson.D{{Key: "_id", Value: requesterID}, {Key: "name", Value: "Bob"}},
			),
		)

		router := mux.NewRouter()
		router.HandleFunc("/exchanges/{id}", handler.UpdateExchangeStatus).Methods("PUT")

		req := authedRequest(http.MethodPut, "/exchanges/"+exchangeID.Hex(),
			[]byte(`{"status":"Accepted"}`), ownerID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			t.Fatalf("expected status OK, got %v", res.Status)
		}

		var view models.ExchangeView
		if err := json.NewDecoder(res.Body).Decode(&view); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if view.Status != models.ExchangeAccepted {
			t.Errorf("expected status Accepted, got %v", view.Status)
		}
		if view.ExchangeDate == nil {
			t.Error("expected exchange_date to be stamped on accept")
		}
		if view.BookInfo == nil || view.BookInfo.Status != models.StatusExchanged {
			t.Errorf("expected enriched book in status Exchanged, got %+v", view.BookInfo)
		}
		if view.RequesterInfo == nil || view.RequesterInfo.Name != "Bob" {
			t.Errorf("expected requester enrichment, got %+v", view.RequesterInfo)
		}
	})

	mt.Run("requester completes an accepted exchange", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		exchangeID := primitive.NewObjectID()
		bookID := primitive.NewObjectID()
		ownerID := primitive.NewObjectID()
		requesterID := primitive.NewObjectID()
		accepted := time.Now().Add(-24 * time.Hour)

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "test.exchanges", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: exchangeID},
				{Key: "book", Value: bookID},
				{Key: "requested_by", Value: requesterID},
				{Key: "owner", Value: ownerID},
				{Key: "status", Value: models.ExchangeAccepted},
				{Key: "exchange_date", Value: accepted},
			}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateCursorResponse(0, "test.exchanges", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: exchangeID},
				{Key: "book", Value: bookID},
				{Key: "requested_by", Value: requesterID},
				{Key: "owner", Value: ownerID},
				{Key: "status", Value: models.ExchangeCompleted},
				{Key: "exchange_date", Value: accepted},
				{Key: "return_date", Value: time.Now()},
			}),
			mtest.CreateCursorResponse(0, "test.books", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: bookID},
				{Key: "title", Value: "Mere Christianity"},
				{Key: "owner", Value: ownerID},
				{Key: "status", Value: models.StatusAvailable},
			}),
			mtest.CreateCursorResponse(0, "test.users", mtest.FirstBatch,
				bson.D{{Key: "_id", Value: ownerID}, {Key: "name", Value: "Alice"}},
				bson.D{{Key: "_id", Value: requesterID}, {Key: "name", Value: "Bob"}},
			),
		)

		router := mux.NewRouter()
		router.HandleFunc("/exchanges/{id}", handler.UpdateExchangeStatus).Methods("PUT")

		req := authedRequest(http.MethodPut, "/exchanges/"+exchangeID.Hex(),
			[]byte(`{"status":"Completed"}`), requesterID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			t.Fatalf("expected status OK, got %v", res.Status)
		}

		var view models.ExchangeView
		if err := json.NewDecoder(res.Body).Decode(&view); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if view.Status != models.ExchangeCompleted {
			t.Errorf("expected status Completed, got %v", view.Status)
		}
		if view.ExchangeDate == nil || view.ReturnDate == nil {
			t.Fatalf("expected both dates stamped, got exchange_date=%v return_date=%v",
				view.ExchangeDate, view.ReturnDate)
		}
		if !view.ExchangeDate.Before(*view.ReturnDate) {
			t.Errorf("expected exchange_date before return_date, got %v and %v",
				view.ExchangeDate, view.ReturnDate)
		}
		if view.BookInfo == nil || view.BookInfo.Status != models.StatusAvailable {
			t.Errorf("expected enriched book back in status Available, got %+v", view.BookInfo)
		}
	})

	mt.Run("unknown exchange", func(mt *mtest.T) {
		handler := handlers.ExchangeHandler{
			ExchangeCol: mt.Coll,
			BookCol:     mt.Coll,
			UserCol:     mt.Coll,
		}

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.exchanges", mtest.FirstBatch))

		router := mux.NewRouter()
		router.HandleFunc("/exchanges/{id}", handler.UpdateExchangeStatus).Methods("PUT")

		req := authedRequest(http.MethodPut, "/exchanges/"+primitive.NewObjectID().Hex(),
			[]byte(`{"status":"Accepted"}`), primitive.NewObjectID())
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		res := w.Result()
		defer res.Body.Close()

		if res.StatusCode != http.StatusNotFound {
			t.Errorf("expected status NotFound, got %v", res.Status)
		}
	})
}

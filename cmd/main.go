package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"

	"github.com/tanzheen/church-book-exchange/configs"
	"github.com/tanzheen/church-book-exchange/internal/daemon"
	"github.com/tanzheen/church-book-exchange/internal/db"
	"github.com/tanzheen/church-book-exchange/internal/handlers"
	"github.com/tanzheen/church-book-exchange/internal/middleware"
	"github.com/tanzheen/church-book-exchange/internal/utils"
)

func main() {
	cfg := configs.LoadConfig()
	db.Connect(cfg.MongoURI)
	utils.InitJwtSecret(cfg.JWTSecret)
	utils.SetTokenTTL(time.Duration(cfg.TokenTTLHours) * time.Hour)

	r := mux.NewRouter()
	r.Use(middleware.JSONMiddleware)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})

	activityCol := db.GetCollection(cfg.DBName, "activity_logs")
	auditLogger := utils.Logger{Collection: activityCol}

	userCol := db.GetCollection(cfg.DBName, "users")
	bookCol := db.GetCollection(cfg.DBName, "books")
	exchangeCol := db.GetCollection(cfg.DBName, "exchanges")

	authHandler := handlers.NewAuthHandler(userCol, auditLogger)
	r.HandleFunc("/users/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/users/login", authHandler.Login).Methods("POST")

	bookHandler := handlers.NewBookHandler(bookCol, exchangeCol, userCol, auditLogger)

	// Browsing is public, everything else requires a token.
	r.HandleFunc("/books", bookHandler.GetBooks).Methods("GET")

	authedRouter := r.PathPrefix("/").Subrouter()
	authedRouter.Use(middleware.JWTAuthMiddleware)

	authedRouter.HandleFunc("/users/profile", authHandler.GetProfile).Methods("GET")
	authedRouter.HandleFunc("/users/profile", authHandler.UpdateProfile).Methods("PUT")

	authedRouter.HandleFunc("/books", bookHandler.CreateBook).Methods("POST")
	authedRouter.HandleFunc("/books/user/mybooks", bookHandler.GetMyBooks).Methods("GET")
	authedRouter.HandleFunc("/books/{id}", bookHandler.UpdateBook).Methods("PUT")
	authedRouter.HandleFunc("/books/{id}", bookHandler.DeleteBook).Methods("DELETE")

	// Registered after the authed PUT/DELETE so /books/user/mybooks wins
	// over the {id} pattern.
	r.HandleFunc("/books/{id}", bookHandler.GetBook).Methods("GET")

	exchangeHandler := handlers.NewExchangeHandler(exchangeCol, bookCol, userCol, auditLogger)

	authedRouter.HandleFunc("/exchanges", exchangeHandler.CreateExchange).Methods("POST")
	authedRouter.HandleFunc("/exchanges", exchangeHandler.GetMyExchanges).Methods("GET")
	authedRouter.HandleFunc("/exchanges/incoming", exchangeHandler.GetIncoming).Methods("GET")
	authedRouter.HandleFunc("/exchanges/outgoing", exchangeHandler.GetOutgoing).Methods("GET")
	authedRouter.HandleFunc("/exchanges/{id}", exchangeHandler.UpdateExchangeStatus).Methods("PUT")

	metricsHandler := handlers.MetricsHandler{
		BookCol:     bookCol,
		UserCol:     userCol,
		ExchangeCol: exchangeCol,
	}
	authedRouter.HandleFunc("/admin/metrics", metricsHandler.GetMetrics).Methods("GET")

	reconciler := daemon.Reconciler{
		BookCol:     bookCol,
		ExchangeCol: exchangeCol,
		AuditLogger: auditLogger,
		Interval:    time.Duration(cfg.ReconcileIntervalSeconds) * time.Second,
	}
	reconciler.InitReconciler()

	var server = http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Println("Server starting on port", cfg.Port)
		log.Fatal(server.ListenAndServe())
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	log.Println("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Graceful shutdown failed: %v", err)
	}
	db.Disconnect(ctx)
	log.Println("Server shut down.")
}

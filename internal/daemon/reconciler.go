package daemon

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tanzheen/church-book-exchange/internal/constants"
	"github.com/tanzheen/church-book-exchange/internal/models"
	"github.com/tanzheen/church-book-exchange/internal/utils"
)

// Reconciler repairs books left inconsistent by a partial two-document
// write (crash between the exchange write and the book write). The
// expected book state is re-derivable from the latest non-terminal
// exchange referencing it: Pending means Reserved, Accepted means
// Exchanged with the requester holding it, none means Available.
type Reconciler struct {
	BookCol     *mongo.Collection
	ExchangeCol *mongo.Collection
	AuditLogger utils.Logger
	Interval    time.Duration
}

func (rc *Reconciler) InitReconciler() {
	go func() {
		for {
			time.Sleep(rc.Interval)
			rc.Sweep(context.Background())
		}
	}()
}

func (rc *Reconciler) Sweep(ctx context.Context) {
	cursor, err := rc.BookCol.Find(ctx, bson.M{})
	if err != nil {
		log.Printf("reconciler: failed to list books: %v", err)
		return
	}

	var books []models.Book
	if err := cursor.All(ctx, &books); err != nil {
		log.Printf("reconciler: failed to decode books: %v", err)
		return
	}

	for _, book := range books {
		rc.reconcileBook(ctx, book)
	}
}

func (rc *Reconciler) reconcileBook(ctx context.Context, book models.Book) {
	// A book touched less than one interval ago may sit between the two
	// writes of an in-flight transition (reserved, exchange not yet
	// inserted). Leave it for the next sweep.
	if time.Since(book.UpdatedAt) < rc.Interval {
		return
	}

	var active models.Exchange
	err := rc.ExchangeCol.FindOne(ctx, bson.M{
		"book":   book.ID,
		"status": bson.M{"$in": models.ActiveExchangeStatuses},
	}, options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&active)

	expectedStatus := models.StatusAvailable
	var expectedHolder interface{} = nil
	if err == nil {
		switch active.Status {
		case models.ExchangePending:
			expectedStatus = models.StatusReserved
		case models.ExchangeAccepted:
			expectedStatus = models.StatusExchanged
			expectedHolder = active.RequestedBy
		}
	} else if err != mongo.ErrNoDocuments {
		log.Printf("reconciler: failed to read exchanges for book %s: %v", book.ID.Hex(), err)
		return
	}

	holderMatches := (book.CurrentHolder == nil && expectedHolder == nil) ||
		(book.CurrentHolder != nil && expectedHolder != nil && *book.CurrentHolder == expectedHolder)
	if book.Status == expectedStatus && holderMatches {
		return
	}

	_, err = rc.BookCol.UpdateOne(ctx,
		bson.M{"_id": book.ID, "status": book.Status},
		bson.M{"$set": bson.M{
			"status":         expectedStatus,
			"current_holder": expectedHolder,
			"updated_at":     time.Now(),
		}},
	)
	if err != nil {
		log.Printf("reconciler: failed to repair book %s: %v", book.ID.Hex(), err)
		return
	}

	log.Printf("reconciler: repaired book %s (%s -> %s)", book.ID.Hex(), book.Status, expectedStatus)
	rc.AuditLogger.Log(ctx, models.BookEntity, constants.Reconcile, "system", bson.M{
		"book":        book.ID.Hex(),
		"from_status": book.Status,
		"to_status":   expectedStatus,
	})
}

package handlers

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/tanzheen/church-book-exchange/internal/models"
)

// fetchUserSummaries loads the public projection of every referenced user
// in one query. Missing users simply stay absent from the map.
func fetchUserSummaries(ctx context.Context, userCol *mongo.Collection, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	summaries := make(map[primitive.ObjectID]models.UserSummary)
	if len(ids) == 0 {
		return summaries, nil
	}

	cursor, err := userCol.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.UserSummary
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	for _, u := range users {
		summaries[u.ID] = u
	}
	return summaries, nil
}

func bookUserIDs(books []models.Book) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool)
	var ids []primitive.ObjectID
	for _, b := range books {
		if !seen[b.Owner] {
			seen[b.Owner] = true
			ids = append(ids, b.Owner)
		}
		if b.CurrentHolder != nil && !seen[*b.CurrentHolder] {
			seen[*b.CurrentHolder] = true
			ids = append(ids, *b.CurrentHolder)
		}
	}
	return ids
}

func buildBookViews(books []models.Book, users map[primitive.ObjectID]models.UserSummary) []models.BookView {
	views := make([]models.BookView, 0, len(books))
	for _, b := range books {
		view := models.BookView{Book: b}
		if owner, ok := users[b.Owner]; ok {
			view.OwnerInfo = &owner
		}
		if b.CurrentHolder != nil {
			if holder, ok := users[*b.CurrentHolder]; ok {
				view.HolderInfo = &holder
			}
		}
		views = append(views, view)
	}
	return views
}

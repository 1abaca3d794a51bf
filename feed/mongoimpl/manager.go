package mongoimpl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fitspo-feed/feed"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collName = "posts"
	maxBatch = 1000
)

type postDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	AuthorID  string             `bson:"author_id"`
	CreatedAt time.Time          `bson:"created_at"`
	Likes     int                `bson:"likes"`
	Comments  int                `bson:"comments_count"`
	Shares    int                `bson:"shares_count"`
	Latitude  *float64           `bson:"latitude,omitempty"`
	Longitude *float64           `bson:"longitude,omitempty"`
	ImageURL  string             `bson:"image_url,omitempty"`
	Caption   string             `bson:"caption,omitempty"`
	City      string             `bson:"city,omitempty"`
	Hashtags  []string           `bson:"hashtags,omitempty"`
}

func (d postDocument) record() feed.PostRecord {
	post := feed.PostRecord{
		ID:           d.ID.Hex(),
		AuthorID:     d.AuthorID,
		CreatedAt:    d.CreatedAt.UTC(),
		LikeCount:    d.Likes,
		CommentCount: d.Comments,
		ShareCount:   d.Shares,
		ImageURL:     d.ImageURL,
		Caption:      d.Caption,
		City:         d.City,
		Hashtags:     d.Hashtags,
	}
	if d.Latitude != nil && d.Longitude != nil {
		post.Location = &feed.GeoPoint{Latitude: *d.Latitude, Longitude: *d.Longitude}
	}
	return post
}

type MongoManager struct {
	posts  *mongo.Collection
	client *mongo.Client
}

func ensureIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "author_id", Value: 1}, {Key: "_id", Value: -1}}},
	}
	opts := options.CreateIndexes().SetMaxTime(10 * time.Second)

	if _, err := collection.Indexes().CreateMany(ctx, indexModels, opts); err != nil {
		return fmt.Errorf("failed to ensure indexes %w", err)
	}
	return nil
}

func NewMongoManager(ctx context.Context, mongoURL string, dbName string) (*MongoManager, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	collection := client.Database(dbName).Collection(collName)
	if err := ensureIndexes(ctx, collection); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &MongoManager{
		posts:  collection,
		client: client,
	}, nil
}

func (m *MongoManager) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoManager) IsReady(ctx context.Context) bool {
	return m.client.Ping(ctx, nil) == nil
}

func (m *MongoManager) AddPost(ctx context.Context, post feed.NewPost) (feed.PostRecord, error) {
	if post.AuthorID == "" {
		return feed.PostRecord{}, fmt.Errorf("%w: author id is required", feed.ErrInvalidArgument)
	}
	doc := postDocument{
		AuthorID:  post.AuthorID,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		ImageURL:  post.ImageURL,
		Caption:   post.Caption,
		City:      post.City,
		Hashtags:  post.Hashtags,
	}
	if post.Location != nil {
		doc.Latitude, doc.Longitude = &post.Location.Latitude, &post.Location.Longitude
	}
	res, err := m.posts.InsertOne(ctx, doc)
	if err != nil {
		return feed.PostRecord{}, fmt.Errorf("%w: insert post: %w", feed.ErrStorage, err)
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)
	return doc.record(), nil
}

func (m *MongoManager) GetPost(ctx context.Context, postID string) (feed.PostRecord, error) {
	objID, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return feed.PostRecord{}, feed.ErrNotFound
	}
	var doc postDocument
	err = m.posts.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return feed.PostRecord{}, feed.ErrNotFound
	}
	if err != nil {
		return feed.PostRecord{}, fmt.Errorf("find post: %w", err)
	}
	return doc.record(), nil
}

// SetCounters overwrites a post's interaction counters.
func (m *MongoManager) SetCounters(ctx context.Context, postID string, likes, comments, shares int) error {
	objID, err := primitive.ObjectIDFromHex(postID)
	if err != nil {
		return feed.ErrNotFound
	}
	update := bson.M{"$set": bson.M{"likes": likes, "comments_count": comments, "shares_count": shares}}
	res, err := m.posts.UpdateOne(ctx, bson.M{"_id": objID}, update)
	if err != nil {
		return fmt.Errorf("%w: update counters %s: %w", feed.ErrStorage, postID, err)
	}
	if res.MatchedCount == 0 {
		return feed.ErrNotFound
	}
	return nil
}

// scoreExpr derives the interaction score at query time; it is never stored.
var scoreExpr = bson.M{"$add": bson.A{
	bson.M{"$ifNull": bson.A{"$likes", 0}},
	bson.M{"$ifNull": bson.A{"$comments_count", 0}},
	bson.M{"$ifNull": bson.A{"$shares_count", 0}},
}}

func (m *MongoManager) FetchPostsOrderedByScore(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	pageSize, err := checkPageSize(pageSize)
	if err != nil {
		return feed.StorePage{}, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$addFields", Value: bson.M{"_score": scoreExpr}}},
	}
	if cursor != nil {
		pos, objID, err := decodeCursor(cursor)
		if err != nil {
			return feed.StorePage{}, err
		}
		if pos.Score == nil {
			return feed.StorePage{}, fmt.Errorf("%w: cursor cannot resume score order", feed.ErrInvalidArgument)
		}
		t := pos.Time()
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"_score": bson.M{"$lt": *pos.Score}},
			bson.M{"_score": *pos.Score, "created_at": bson.M{"$lt": t}},
			bson.M{"_score": *pos.Score, "created_at": t, "_id": bson.M{"$gt": objID}},
		}}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_score", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$limit", Value: int64(pageSize) + 1}},
	)

	cur, err := m.posts.Aggregate(ctx, pipeline)
	if err != nil {
		return feed.StorePage{}, fmt.Errorf("aggregate posts by score: %w", err)
	}
	return readPage(ctx, cur, pageSize, func(post feed.PostRecord) feed.Position {
		score := feed.InteractionScore(post)
		return feed.PositionOf(post, &score)
	}, true)
}

func (m *MongoManager) FetchPostsOrderedByRecency(ctx context.Context, cursor *feed.Cursor, pageSize int) (feed.StorePage, error) {
	pageSize, err := checkPageSize(pageSize)
	if err != nil {
		return feed.StorePage{}, err
	}
	filter := bson.M{}
	if cursor != nil {
		pos, objID, err := decodeCursor(cursor)
		if err != nil {
			return feed.StorePage{}, err
		}
		t := pos.Time()
		filter = bson.M{"$or": bson.A{
			bson.M{"created_at": bson.M{"$lt": t}},
			bson.M{"created_at": t, "_id": bson.M{"$gt": objID}},
		}}
	}
	cur, err := m.posts.Find(
		ctx,
		filter,
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
			SetLimit(int64(pageSize)+1),
	)
	if err != nil {
		return feed.StorePage{}, fmt.Errorf("find posts by recency: %w", err)
	}
	return readPage(ctx, cur, pageSize, func(post feed.PostRecord) feed.Position {
		return feed.PositionOf(post, nil)
	}, false)
}

// checkPageSize rejects empty pages and clamps large ones to maxBatch; the
// caller follows the returned cursor for the rest.
func checkPageSize(pageSize int) (int, error) {
	if pageSize <= 0 {
		return 0, fmt.Errorf("%w: page size must be positive", feed.ErrInvalidArgument)
	}
	return min(pageSize, maxBatch), nil
}

func decodeCursor(cursor *feed.Cursor) (feed.Position, primitive.ObjectID, error) {
	pos, err := feed.DecodePosition(cursor.Token)
	if err != nil {
		return pos, primitive.NilObjectID, err
	}
	objID, err := primitive.ObjectIDFromHex(pos.ID)
	if err != nil {
		return pos, primitive.NilObjectID, fmt.Errorf("%w: cursor id: %w", feed.ErrInvalidArgument, err)
	}
	return pos, objID, nil
}

// readPage drains a cursor fetched with limit pageSize+1; the extra document
// only signals that another page exists.
func readPage(ctx context.Context, cur *mongo.Cursor, pageSize int, position func(feed.PostRecord) feed.Position, composite bool) (feed.StorePage, error) {
	defer cur.Close(ctx)

	posts := make([]feed.PostRecord, 0, pageSize)
	more := false
	for cur.Next(ctx) {
		if len(posts) == pageSize {
			more = true
			break
		}
		var doc postDocument
		if err := cur.Decode(&doc); err != nil {
			return feed.StorePage{}, fmt.Errorf("decode post: %w", err)
		}
		posts = append(posts, doc.record())
	}
	if err := cur.Err(); err != nil {
		return feed.StorePage{}, fmt.Errorf("iterate posts: %w", err)
	}

	page := feed.StorePage{Posts: posts}
	if more {
		page.Next = &feed.Cursor{
			Token:                        feed.EncodePosition(position(posts[len(posts)-1])),
			SupportsCompositeOrderResume: composite,
		}
	}
	return page, nil
}

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/isdelr/milligram-be/internal/models"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on MongoDB. Multi-document writes use
// transactions, so the server must run as a replica set.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	posts    *mongo.Collection
	likes    *mongo.Collection
	comments *mongo.Collection
}

// NewMongoStore connects to MongoDB, verifies the connection and ensures indexes.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:   client,
		users:    db.Collection("users"),
		posts:    db.Collection("posts"),
		likes:    db.Collection("likes"),
		comments: db.Collection("comments"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info().Str("database", dbName).Msg("Connected to MongoDB")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.users: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.posts: {
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		s.likes: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "postId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "postId", Value: 1}}},
		},
		s.comments: {
			{Keys: bson.D{{Key: "postId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// withTx runs fn inside a MongoDB transaction. fn must use the session context for every call.
func (s *MongoStore) withTx(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (models.User, error) {
	var user models.User
	if err := s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *MongoStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	n, err := s.users.CountDocuments(ctx,
		bson.M{"$or": bson.A{bson.M{"username": username}, bson.M{"email": email}}},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) FindUsersByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	users := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, err
		}
		users[user.ID] = user
	}
	return users, cursor.Err()
}

func (s *MongoStore) CreatePost(ctx context.Context, post *models.Post) error {
	if _, err := s.posts.InsertOne(ctx, post); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *MongoStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	var post models.Post
	if err := s.posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("find post: %w", err)
	}
	return post, nil
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}

func (s *MongoStore) findPosts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Post, error) {
	cursor, err := s.posts.Find(ctx, filter, opts.SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	posts := []models.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	return posts, nil
}

func (s *MongoStore) ListPosts(ctx context.Context, skip, limit int) ([]models.Post, error) {
	return s.findPosts(ctx, bson.M{}, options.Find().SetSkip(int64(skip)).SetLimit(int64(limit)))
}

func (s *MongoStore) ListPostsByAuthor(ctx context.Context, authorID string) ([]models.Post, error) {
	return s.findPosts(ctx, bson.M{"authorId": authorID}, options.Find())
}

func (s *MongoStore) DeletePostCascade(ctx context.Context, id string) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.comments.DeleteMany(sc, bson.M{"postId": id}); err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}
		if _, err := s.likes.DeleteMany(sc, bson.M{"postId": id}); err != nil {
			return fmt.Errorf("delete likes: %w", err)
		}
		res, err := s.posts.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// bumpCounter applies delta to a post counter and returns the new value.
func (s *MongoStore) bumpCounter(sc mongo.SessionContext, postID, field string, delta int64) (int64, error) {
	var post models.Post
	err := s.posts.FindOneAndUpdate(sc,
		bson.M{"_id": postID},
		bson.M{"$inc": bson.M{field: delta}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&post)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("update %s: %w", field, err)
	}
	if field == "likesCount" {
		return post.LikesCount, nil
	}
	return post.CommentsCount, nil
}

func (s *MongoStore) AddLike(ctx context.Context, userID, postID string) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		var err error
		if count, err = s.bumpCounter(sc, postID, "likesCount", 1); err != nil {
			return err
		}
		like := models.Like{UserID: userID, PostID: postID, CreatedAt: time.Now().UTC()}
		if _, err := s.likes.InsertOne(sc, like); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("insert like: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *MongoStore) RemoveLike(ctx context.Context, userID, postID string) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(sc mongo.SessionContext) error {
		res, err := s.likes.DeleteOne(sc, bson.M{"userId": userID, "postId": postID})
		if err != nil {
			return fmt.Errorf("delete like: %w", err)
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		count, err = s.bumpCounter(sc, postID, "likesCount", -1)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *MongoStore) AddComment(ctx context.Context, comment *models.Comment) error {
	return s.withTx(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.bumpCounter(sc, comment.PostID, "commentsCount", 1); err != nil {
			return err
		}
		if _, err := s.comments.InsertOne(sc, comment); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return nil
	})
}

func (s *MongoStore) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	cursor, err := s.comments.Find(ctx, bson.M{"postId": postID}, options.Find().SetSort(newestFirst))
	if err != nil {
		return nil, fmt.Errorf("find comments: %w", err)
	}
	comments := []models.Comment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return comments, nil
}

func (s *MongoStore) ReconcileCounters(ctx context.Context) (int, error) {
	cursor, err := s.posts.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1, "likesCount": 1, "commentsCount": 1}))
	if err != nil {
		return 0, fmt.Errorf("find posts: %w", err)
	}
	defer cursor.Close(ctx)

	fixed := 0
	for cursor.Next(ctx) {
		var post models.Post
		if err := cursor.Decode(&post); err != nil {
			return fixed, err
		}
		likes, err := s.likes.CountDocuments(ctx, bson.M{"postId": post.ID})
		if err != nil {
			return fixed, fmt.Errorf("count likes: %w", err)
		}
		comments, err := s.comments.CountDocuments(ctx, bson.M{"postId": post.ID})
		if err != nil {
			return fixed, fmt.Errorf("count comments: %w", err)
		}
		if likes == post.LikesCount && comments == post.CommentsCount {
			continue
		}
		_, err = s.posts.UpdateOne(ctx, bson.M{"_id": post.ID},
			bson.M{"$set": bson.M{"likesCount": likes, "commentsCount": comments}})
		if err != nil {
			return fixed, fmt.Errorf("update counters: %w", err)
		}
		fixed++
	}
	return fixed, cursor.Err()
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"todo-sync/internal/models"
	"todo-sync/pkg/logger"
)

const mongoCollection = "todos"

// todoDoc is the stored document. The todo id is the document _id.
type todoDoc struct {
	ID        string    `bson:"_id"`
	Text      string    `bson:"text"`
	Completed bool      `bson:"completed"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func toDoc(t models.Todo) todoDoc {
	return todoDoc{ID: t.ID, Text: t.Text, Completed: t.Completed, CreatedAt: t.CreatedAt.UTC(), UpdatedAt: t.UpdatedAt.UTC()}
}

func (d todoDoc) todo() models.Todo {
	return models.Todo{ID: d.ID, Text: d.Text, Completed: d.Completed, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

// Mongo stores one document per todo.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ TodoRepository = (*Mongo)(nil)

// DialMongo connects to uri and uses the todos collection of database.
func DialMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(database).Collection(mongoCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "createdAt", Value: -1}}})
	if err != nil {
		logger.Warn(ctx, "Mongo index creation failed", "error", err)
	}
	return &Mongo{client: client, coll: coll}, nil
}

func (m *Mongo) List(ctx context.Context) ([]models.Todo, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		logger.Error(ctx, "Repository List failed", "error", err)
		return nil, err
	}
	defer cur.Close(ctx)
	todos := []models.Todo{}
	for cur.Next(ctx) {
		var d todoDoc
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		todos = append(todos, d.todo())
	}
	return todos, cur.Err()
}

func (m *Mongo) Get(ctx context.Context, id string) (models.Todo, error) {
	var d todoDoc
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Todo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Todo{}, err
	}
	return d.todo(), nil
}

func (m *Mongo) Create(ctx context.Context, todo models.Todo) (models.Todo, error) {
	if _, err := m.coll.InsertOne(ctx, toDoc(todo)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Todo{}, fmt.Errorf("%w: %s", ErrDuplicate, todo.ID)
		}
		logger.Error(ctx, "Repository Create failed", "error", err, "id", todo.ID)
		return models.Todo{}, err
	}
	return todo, nil
}

// Update runs as one server-side pipeline update so concurrent partial updates
// of different fields do not overwrite each other.
func (m *Mongo) Update(ctx context.Context, id string, patch models.TodoPatch) (models.Todo, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d todoDoc
	err := m.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, patchUpdate(patch, time.Now()), opts).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Todo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		logger.Error(ctx, "Repository Update failed", "error", err, "id", id)
		return models.Todo{}, err
	}
	return d.todo(), nil
}

// patchUpdate sets only the fields present in p. updatedAt is p.UpdatedAt, or now
// when missing or earlier than createdAt, and never earlier than createdAt.
func patchUpdate(p models.TodoPatch, now time.Time) bson.A {
	now = now.UTC()
	set := bson.D{}
	if p.Text != nil {
		set = append(set, bson.E{Key: "text", Value: literal(*p.Text)})
	}
	if p.Completed != nil {
		set = append(set, bson.E{Key: "completed", Value: literal(*p.Completed)})
	}
	var stamp any = now
	if !p.UpdatedAt.IsZero() {
		at := p.UpdatedAt.UTC()
		stamp = bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$lt", Value: bson.A{at, "$createdAt"}}}, now, at,
		}}}
	}
	set = append(set, bson.E{Key: "updatedAt", Value: notBeforeCreated(stamp)})
	return bson.A{bson.D{{Key: "$set", Value: set}}}
}

// setAllUpdate completes or reopens a todo, stamping updatedAt no earlier than createdAt.
func setAllUpdate(completed bool, now time.Time) bson.A {
	return bson.A{bson.D{{Key: "$set", Value: bson.D{
		{Key: "completed", Value: literal(completed)},
		{Key: "updatedAt", Value: notBeforeCreated(now.UTC())},
	}}}}
}

func notBeforeCreated(v any) bson.D {
	return bson.D{{Key: "$max", Value: bson.A{v, "$createdAt"}}}
}

// literal keeps pipeline stages from reading user text such as "$x" as a field path.
func literal(v any) bson.D {
	return bson.D{{Key: "$literal", Value: v}}
}

func (m *Mongo) Delete(ctx context.Context, id string) error {
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		logger.Error(ctx, "Repository Delete failed", "error", err, "id", id)
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (m *Mongo) DeleteCompleted(ctx context.Context) (int, error) {
	res, err := m.coll.DeleteMany(ctx, bson.M{"completed": true})
	if err != nil {
		logger.Error(ctx, "Repository DeleteCompleted failed", "error", err)
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (m *Mongo) SetAllCompleted(ctx context.Context, completed bool) ([]models.Todo, error) {
	_, err := m.coll.UpdateMany(ctx,
		bson.M{"completed": bson.M{"$ne": completed}},
		setAllUpdate(completed, time.Now()))
	if err != nil {
		logger.Error(ctx, "Repository SetAllCompleted failed", "error", err)
		return nil, err
	}
	return m.List(ctx)
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

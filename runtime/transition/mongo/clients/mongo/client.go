// Package mongo implements the low-level MongoDB client used by the
// transition log store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/flowforge/taskcore/runtime/transition"
)

type (
	// Client exposes Mongo-backed operations for the transition log.
	Client interface {
		health.Pinger

		Append(ctx context.Context, t *transition.Transition) error
		List(ctx context.Context, executionID string, cursor string, limit int) (transition.Page, error)
		Latest(ctx context.Context, executionID string) (*transition.Transition, error)
	}

	// Options configures the Mongo client implementation.
	Options struct {
		Client     *mongodriver.Client
		Database   string
		Collection string
		Timeout    time.Duration
	}

	client struct {
		mongo   *mongodriver.Client
		coll    collection
		timeout time.Duration
	}

	transitionDocument struct {
		ID          bson.ObjectID  `bson:"_id,omitempty"`
		ExecutionID string         `bson:"execution_id"`
		Seq         int64          `bson:"seq"`
		Type        string         `bson:"type"`
		Current     transition.Cursor `bson:"current"`
		Next        transition.Cursor `bson:"next"`
		Output      bson.Raw       `bson:"output,omitempty"`
		Metadata    bson.M         `bson:"metadata,omitempty"`
		CreatedAt   time.Time      `bson:"created_at"`
		UpdatedAt   time.Time      `bson:"updated_at"`
	}
)

const (
	defaultCollection = "executor_transitions"
	defaultTimeout    = 5 * time.Second
	clientName        = "transition-mongo"
)

// New returns a Client backed by the provided MongoDB client.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	coll := opts.Collection
	if coll == "" {
		coll = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	mcoll := opts.Client.Database(opts.Database).Collection(coll)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	wrapper := mongoCollection{coll: mcoll}
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return &client{mongo: opts.Client, coll: wrapper, timeout: timeout}, nil
}

func (c *client) Name() string { return clientName }

func (c *client) Ping(ctx context.Context) error {
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) Append(ctx context.Context, t *transition.Transition) error {
	if t == nil {
		return errors.New("transition is required")
	}
	if t.ExecutionID == "" {
		return errors.New("execution id is required")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	seq, err := c.nextSeq(ctx, t.ExecutionID)
	if err != nil {
		return err
	}

	output, err := bson.Marshal(bson.M{"v": t.Output})
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	now := time.Now().UTC()
	doc := transitionDocument{
		ExecutionID: t.ExecutionID,
		Seq:         seq,
		Type:        string(t.Type),
		Current:     t.Current,
		Next:        t.Next,
		Output:      output,
		Metadata:    bson.M(t.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	t.ID = oid.Hex()
	t.Seq = seq
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (c *client) nextSeq(ctx context.Context, executionID string) (int64, error) {
	latest, err := c.latestDoc(ctx, executionID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 1, nil
	}
	if latest.Type == string(transition.Finish) || latest.Type == string(transition.Error) || latest.Type == string(transition.Cancelled) {
		return 0, fmt.Errorf("transition: execution %q already terminal", executionID)
	}
	return latest.Seq + 1, nil
}

func (c *client) List(ctx context.Context, executionID string, cursor string, limit int) (transition.Page, error) {
	if executionID == "" {
		return transition.Page{}, errors.New("execution id is required")
	}
	if limit <= 0 {
		return transition.Page{}, errors.New("limit must be > 0")
	}

	filter := bson.M{"execution_id": executionID}
	if cursor != "" {
		var after int64
		if _, err := fmt.Sscanf(cursor, "%d", &after); err != nil {
			return transition.Page{}, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		filter["seq"] = bson.M{"$gt": after}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cur, err := c.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "seq", Value: 1}}).
		SetLimit(int64(limit+1)),
	)
	if err != nil {
		return transition.Page{}, err
	}
	defer cur.Close(ctx)

	var docs []transitionDocument
	for cur.Next(ctx) {
		var doc transitionDocument
		if err := cur.Decode(&doc); err != nil {
			return transition.Page{}, err
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return transition.Page{}, err
	}

	var next string
	if len(docs) > limit {
		next = fmt.Sprintf("%d", docs[limit-1].Seq)
		docs = docs[:limit]
	}

	transitions := make([]*transition.Transition, len(docs))
	for i, doc := range docs {
		transitions[i] = fromDocument(doc)
	}
	return transition.Page{Transitions: transitions, NextCursor: next}, nil
}

func (c *client) Latest(ctx context.Context, executionID string) (*transition.Transition, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	doc, err := c.latestDoc(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return fromDocument(*doc), nil
}

func (c *client) latestDoc(ctx context.Context, executionID string) (*transitionDocument, error) {
	cur, err := c.coll.Find(ctx, bson.M{"execution_id": executionID}, options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(1),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		return nil, cur.Err()
	}
	var doc transitionDocument
	if err := cur.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func fromDocument(doc transitionDocument) *transition.Transition {
	var output any
	if len(doc.Output) > 0 {
		var wrapper struct {
			V any `bson:"v"`
		}
		_ = bson.Unmarshal(doc.Output, &wrapper)
		output = wrapper.V
	}
	return &transition.Transition{
		ID:          doc.ID.Hex(),
		ExecutionID: doc.ExecutionID,
		Seq:         doc.Seq,
		Type:        transition.Type(doc.Type),
		Current:     doc.Current,
		Next:        doc.Next,
		Output:      output,
		Metadata:    map[string]any(doc.Metadata),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func ensureIndexes(ctx context.Context, coll collection) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "execution_id", Value: 1},
			{Key: "seq", Value: 1},
		},
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

type collection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cur *mongodriver.Cursor, err error)
	Indexes() mongodriver.IndexView
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongodriver.Cursor, error) {
	return c.coll.Find(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() mongodriver.IndexView {
	return c.coll.Indexes()
}

package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"redsys/config"
	"redsys/entity"
	"redsys/services"
)

const (
	collectionLog          = "payment_log"
	collectionTransactions = "gateway_transactions"
	collectionSequences    = "sequences"
	collectionOrders       = "orders"
)

// originSaleOrder is the only origin entity kind the store resolves.
const originSaleOrder = "sale.order"

type MongoDB struct {
	ctx              context.Context
	clientOptions    *options.ClientOptions
	database         string
	logRecordsNumber int64
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:              context.Background(),
		clientOptions:    clientOptions,
		database:         conf.Mongo.Database,
		logRecordsNumber: conf.LogRecords,
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	err := connection.Disconnect(m.ctx)
	if err != nil {
		log.Println("mongodb disconnect error", err)
	}
}

// EnsureIndexes creates the partial unique index that enforces reference
// uniqueness among drafts at the store level. Two concurrent notifications
// for the same reference cannot both insert a draft.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "reference_gateway", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.D{{Key: "state", Value: entity.StateDraft}}),
	})
	return err
}

// SaveTransaction upserts one transaction document. The write is a single
// document operation, atomic on the mongo side.
func (m *MongoDB) SaveTransaction(ctx context.Context, transaction *entity.Transaction) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "transaction_id", Value: transaction.Id}}
	set := bson.M{"$set": transaction}
	collection := connection.Database(m.database).Collection(collectionTransactions)
	_, err = collection.UpdateOne(ctx, filter, set, options.Update().SetUpsert(true))
	return err
}

func (m *MongoDB) GetDraftByReference(ctx context.Context, reference string) (*entity.Transaction, error) {
	return m.findTransaction(ctx, bson.D{
		{Key: "reference_gateway", Value: reference},
		{Key: "state", Value: entity.StateDraft},
	})
}

func (m *MongoDB) GetTransactionByReference(ctx context.Context, reference string) (*entity.Transaction, error) {
	return m.findTransaction(ctx, bson.D{{Key: "reference_gateway", Value: reference}})
}

func (m *MongoDB) findTransaction(ctx context.Context, filter bson.D) (*entity.Transaction, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	opt := options.FindOne().SetSort(bson.D{{Key: "time_created", Value: -1}})
	var transaction entity.Transaction
	err = collection.FindOne(ctx, filter, opt).Decode(&transaction)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}

// CancelDraftTransactions closes every draft charging the given origin.
func (m *MongoDB) CancelDraftTransactions(ctx context.Context, origin string) (int64, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionTransactions)
	filter := bson.D{{Key: "origin", Value: origin}, {Key: "state", Value: entity.StateDraft}}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "state", Value: entity.StateCancelled},
			{Key: "time_closed", Value: time.Now()},
		}},
	}
	result, err := collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// NextReference atomically increments the named counter and formats the new
// value as a 12 digit order reference. The processor accepts 4-12 characters
// with a numeric prefix; a monotonic counter never reissues a value.
func (m *MongoDB) NextReference(ctx context.Context, sequence string) (string, error) {
	connection, err := m.connect()
	if err != nil {
		return "", err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSequences)
	filter := bson.D{{Key: "name", Value: sequence}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: 1}}}}
	opt := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Name  string `bson:"name"`
		Value int64  `bson:"value"`
	}
	if err := collection.FindOneAndUpdate(ctx, filter, update, opt).Decode(&counter); err != nil {
		return "", err
	}
	return fmt.Sprintf("%012d", counter.Value), nil
}

func (m *MongoDB) WriteLogMessage(data services.Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	_, err = collection.InsertOne(m.ctx, data)
	return err
}

// orderDocument is a sale order row in the orders collection; amounts are
// stored as decimal strings.
type orderDocument struct {
	OrderId     string `bson:"order_id"`
	TotalAmount string `bson:"total_amount"`
	PaidAmount  string `bson:"paid_amount"`
	Currency    string `bson:"currency"`
}

type orderOrigin struct {
	document orderDocument
}

func (o *orderOrigin) TotalAmount() (decimal.Decimal, bool) {
	if o.document.TotalAmount == "" {
		return decimal.Zero, false
	}
	total, err := decimal.NewFromString(o.document.TotalAmount)
	if err != nil {
		return decimal.Zero, false
	}
	return total, true
}

func (o *orderOrigin) GatewayAmount() decimal.Decimal {
	paid, err := decimal.NewFromString(o.document.PaidAmount)
	if err != nil {
		return decimal.Zero
	}
	return paid
}

func (o *orderOrigin) Currency() string {
	return o.document.Currency
}

// ResolveOrigin looks up the record behind an "<entityKind>,<entityId>"
// origin reference. Only sale orders are known to this store.
func (m *MongoDB) ResolveOrigin(ctx context.Context, kind, id string) (services.Origin, error) {
	if kind != originSaleOrder {
		return nil, fmt.Errorf("unknown origin kind %q", kind)
	}
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionOrders)
	filter := bson.D{{Key: "order_id", Value: id}}
	var document orderDocument
	if err := collection.FindOne(ctx, filter).Decode(&document); err != nil {
		return nil, fmt.Errorf("order %s: %v", id, err)
	}
	return &orderOrigin{document: document}, nil
}

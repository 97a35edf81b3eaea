// Package dynamo stores conversations and properties in DynamoDB. Items use
// the same field names as the hosted record store so that records can move
// between backends unchanged.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/wolfman30/guestpilot/internal/rental"
	"github.com/wolfman30/guestpilot/internal/store"
	"github.com/wolfman30/guestpilot/pkg/logging"
)

const (
	keyID         = "id"
	keyPropertyID = "propertyId"
	keyGuestKey   = "guestKey"

	// GuestIndex is the GSI on the conversations table (propertyId, guestKey).
	GuestIndex = "propertyId-guestKey-index"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store implements store.Store on two DynamoDB tables.
type Store struct {
	client             dynamoAPI
	conversationsTable string
	propertiesTable    string
	logger             *logging.Logger
	now                func() time.Time
}

var _ store.Store = (*Store)(nil)

// New builds a store backed by the provided DynamoDB client.
func New(client dynamoAPI, conversationsTable, propertiesTable string, logger *logging.Logger) *Store {
	if client == nil {
		panic("dynamo: client cannot be nil")
	}
	if conversationsTable == "" || propertiesTable == "" {
		panic("dynamo: table names cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		client:             client,
		conversationsTable: conversationsTable,
		propertiesTable:    propertiesTable,
		logger:             logger,
		now:                func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) QueryConversations(ctx context.Context, propertyID, identity string) ([]rental.Conversation, error) {
	return s.queryConversations(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.conversationsTable),
		IndexName:              aws.String(GuestIndex),
		KeyConditionExpression: aws.String("#pid = :pid AND #guest = :guest"),
		ExpressionAttributeNames: map[string]string{
			"#pid":   keyPropertyID,
			"#guest": keyGuestKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid":   &types.AttributeValueMemberS{Value: propertyID},
			":guest": &types.AttributeValueMemberS{Value: rental.NormalizeIdentity(identity)},
		},
	})
}

func (s *Store) ListConversations(ctx context.Context, propertyID string) ([]rental.Conversation, error) {
	convs, err := s.queryConversations(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(s.conversationsTable),
		IndexName:                aws.String(GuestIndex),
		KeyConditionExpression:   aws.String("#pid = :pid"),
		ExpressionAttributeNames: map[string]string{"#pid": keyPropertyID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pid": &types.AttributeValueMemberS{Value: propertyID},
		},
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].UpdatedAt.After(convs[j].UpdatedAt) })
	return convs, nil
}

func (s *Store) queryConversations(ctx context.Context, input *dynamodb.QueryInput) ([]rental.Conversation, error) {
	out := []rental.Conversation{}
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamo: query conversations: %w", err)
		}
		for _, item := range page.Items {
			conv, err := s.decodeConversation(item)
			if err != nil {
				return nil, err
			}
			out = append(out, conv)
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

func (s *Store) GetConversation(ctx context.Context, id string) (rental.Conversation, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.conversationsTable),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return rental.Conversation{}, fmt.Errorf("dynamo: get conversation %s: %w", id, err)
	}
	if out.Item == nil {
		return rental.Conversation{}, rental.ErrConversationNotFound
	}
	return s.decodeConversation(out.Item)
}

func (s *Store) CreateConversation(ctx context.Context, conv rental.Conversation) (rental.Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.Revision = 1
	conv.UpdatedAt = s.now()
	if conv.Messages == nil {
		conv.Messages = []rental.Message{}
	}

	fields, err := rental.ConversationFields(conv)
	if err != nil {
		return rental.Conversation{}, err
	}
	fields[keyID] = conv.ID
	fields[keyPropertyID] = conv.PropertyID
	fields[keyGuestKey] = rental.NormalizeIdentity(conv.GuestEmail)
	fields[rental.FieldRevision] = conv.Revision
	fields[rental.FieldUpdatedAt] = conv.UpdatedAt.Format(time.RFC3339Nano)

	item, err := attributevalue.MarshalMap(fields)
	if err != nil {
		return rental.Conversation{}, fmt.Errorf("dynamo: marshal conversation: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.conversationsTable),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": keyID},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return rental.Conversation{}, fmt.Errorf("dynamo: create %s: %w", conv.ID, store.ErrAlreadyExists)
		}
		return rental.Conversation{}, fmt.Errorf("dynamo: create conversation: %w", err)
	}
	return conv, nil
}

// UpdateConversation applies the patch in a single conditional UpdateItem so
// that concurrent writers cannot overwrite each other's messages.
func (s *Store) UpdateConversation(ctx context.Context, id string, patch store.ConversationPatch) (rental.Conversation, error) {
	names := map[string]string{
		"#id":       keyID,
		"#revision": rental.FieldRevision,
		"#updated":  rental.FieldUpdatedAt,
	}
	values := map[string]types.AttributeValue{
		":zero":    &types.AttributeValueMemberN{Value: "0"},
		":one":     &types.AttributeValueMemberN{Value: "1"},
		":updated": &types.AttributeValueMemberS{Value: s.now().Format(time.RFC3339Nano)},
	}
	expr := "SET #revision = if_not_exists(#revision, :zero) + :one, #updated = :updated"
	if patch.Messages != nil {
		encoded, err := rental.EncodeMessages(patch.Messages)
		if err != nil {
			return rental.Conversation{}, err
		}
		names["#messages"] = rental.FieldMessages
		values[":messages"] = &types.AttributeValueMemberS{Value: encoded}
		expr += ", #messages = :messages"
	}
	if patch.Status != nil {
		names["#status"] = rental.FieldStatus
		values[":status"] = &types.AttributeValueMemberS{Value: *patch.Status}
		expr += ", #status = :status"
	}
	cond := "attribute_exists(#id)"
	switch {
	case patch.ExpectedRevision == nil:
	case *patch.ExpectedRevision == 0:
		// Items written before revisions were tracked carry no attribute.
		values[":expected"] = &types.AttributeValueMemberN{Value: "0"}
		cond += " AND (attribute_not_exists(#revision) OR #revision = :expected)"
	default:
		values[":expected"] = &types.AttributeValueMemberN{Value: fmt.Sprint(*patch.ExpectedRevision)}
		cond += " AND #revision = :expected"
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.conversationsTable),
		Key:                                 idKey(id),
		UpdateExpression:                    aws.String(expr),
		ConditionExpression:                 aws.String(cond),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return rental.Conversation{}, rental.ErrConversationNotFound
			}
			return rental.Conversation{}, fmt.Errorf("dynamo: update %s at revision %s: %w", id, patch.ExpectedRevisionString(), store.ErrRevisionConflict)
		}
		return rental.Conversation{}, fmt.Errorf("dynamo: update conversation %s: %w", id, err)
	}
	return s.decodeConversation(out.Attributes)
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.conversationsTable),
		Key:                      idKey(id),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": keyID},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return rental.ErrConversationNotFound
		}
		return fmt.Errorf("dynamo: delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListProperties(ctx context.Context) ([]rental.Property, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.propertiesTable)}
	out := []rental.Property{}
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("dynamo: scan properties: %w", err)
		}
		for _, item := range page.Items {
			p, err := decodeProperty(item)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProperty(ctx context.Context, id string) (rental.Property, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.propertiesTable),
		Key:       idKey(id),
	})
	if err != nil {
		return rental.Property{}, fmt.Errorf("dynamo: get property %s: %w", id, err)
	}
	if out.Item == nil {
		return rental.Property{}, rental.ErrPropertyNotFound
	}
	return decodeProperty(out.Item)
}

func (s *Store) SaveProperty(ctx context.Context, p rental.Property) (rental.Property, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	fields, err := rental.PropertyFields(p)
	if err != nil {
		return rental.Property{}, err
	}
	fields[keyID] = p.ID
	item, err := attributevalue.MarshalMap(fields)
	if err != nil {
		return rental.Property{}, fmt.Errorf("dynamo: marshal property: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.propertiesTable),
		Item:      item,
	}); err != nil {
		return rental.Property{}, fmt.Errorf("dynamo: save property %s: %w", p.ID, err)
	}
	return p, nil
}

func (s *Store) decodeConversation(item map[string]types.AttributeValue) (rental.Conversation, error) {
	rec, err := toRecord(item)
	if err != nil {
		return rental.Conversation{}, err
	}
	conv, err := rental.ConversationFromRecord(rec)
	if err != nil {
		var decodeErr *rental.MessagesDecodeError
		if !errors.As(err, &decodeErr) {
			return rental.Conversation{}, err
		}
		s.logger.Warn("conversation has unreadable messages", "conversation_id", rec.ID, "error", err)
	}
	if conv.PropertyID == "" {
		conv.PropertyID, _ = rec.Fields[keyPropertyID].(string)
	}
	return conv, nil
}

func decodeProperty(item map[string]types.AttributeValue) (rental.Property, error) {
	rec, err := toRecord(item)
	if err != nil {
		return rental.Property{}, err
	}
	return rental.PropertyFromRecord(rec)
}

func toRecord(item map[string]types.AttributeValue) (rental.Record, error) {
	var fields map[string]any
	if err := attributevalue.UnmarshalMap(item, &fields); err != nil {
		return rental.Record{}, fmt.Errorf("dynamo: decode item: %w", err)
	}
	id, _ := fields[keyID].(string)
	return rental.Record{ID: id, Fields: fields}, nil
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		keyID: &types.AttributeValueMemberS{Value: id},
	}
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"discord-ollama/internal/domain"
)

const (
	skRenderState = "STATE#"
	ttlDuration   = 30 * 24 * time.Hour // 30-day TTL
)

// ErrNotFound is returned when no render state is stored for a message.
var ErrNotFound = fmt.Errorf("repository: render state: %w", domain.ErrNotFound)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Client mirrors message render state into a DynamoDB table so page buttons
// can be served without the bot process.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// msgPK returns the DynamoDB partition key for a Discord message.
func msgPK(messageID string) string {
	return "MSG#" + messageID
}

func stateKey(messageID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: msgPK(messageID)},
		"SK": &types.AttributeValueMemberS{Value: skRenderState},
	}
}

// PutRenderState writes or replaces the render state of a message.
func (c *Client) PutRenderState(ctx context.Context, msg domain.CachedMessage) error {
	if msg.MessageID == "" {
		return errors.New("repository: PutRenderState: message id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      c.renderStateItem(msg),
	})
	if err != nil {
		return fmt.Errorf("repository: PutRenderState: %w", err)
	}
	return nil
}

// GetRenderState reads the render state of messageID. It returns ErrNotFound
// when the message was never mirrored.
func (c *Client) GetRenderState(ctx context.Context, messageID string) (domain.CachedMessage, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            stateKey(messageID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.CachedMessage{}, fmt.Errorf("repository: GetRenderState get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.CachedMessage{}, ErrNotFound
	}
	msg, err := itemToRenderState(out.Item)
	if err != nil {
		return domain.CachedMessage{}, fmt.Errorf("repository: GetRenderState unmarshal: %w", err)
	}
	msg.MessageID = messageID
	return msg, nil
}

// SetPageIndex stores the page on display for messageID. It returns
// ErrNotFound when the message was never mirrored.
func (c *Client) SetPageIndex(ctx context.Context, messageID string, index int) error {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 stateKey(messageID),
		UpdateExpression:    aws.String("SET currentPageIndex = :idx, updatedAt = :now"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":idx": &types.AttributeValueMemberN{Value: strconv.Itoa(index)},
			":now": &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrNotFound
		}
		return fmt.Errorf("repository: SetPageIndex: %w", err)
	}
	return nil
}

func (c *Client) renderStateItem(msg domain.CachedMessage) map[string]types.AttributeValue {
	pages := make([]types.AttributeValue, 0, len(msg.Data.Pages))
	for _, p := range msg.Data.Pages {
		pages = append(pages, &types.AttributeValueMemberS{Value: p})
	}
	now := c.now()
	return map[string]types.AttributeValue{
		"PK":               &types.AttributeValueMemberS{Value: msgPK(msg.MessageID)},
		"SK":               &types.AttributeValueMemberS{Value: skRenderState},
		"channelId":        &types.AttributeValueMemberS{Value: msg.ChannelID},
		"content":          &types.AttributeValueMemberS{Value: msg.Data.Content},
		"pages":            &types.AttributeValueMemberL{Value: pages},
		"modelName":        &types.AttributeValueMemberS{Value: msg.Data.ModelName},
		"currentPageIndex": &types.AttributeValueMemberN{Value: strconv.Itoa(msg.Data.CurrentPageIndex)},
		"complete":         &types.AttributeValueMemberBOOL{Value: msg.Data.Complete},
		"isUserMessage":    &types.AttributeValueMemberBOOL{Value: msg.Data.IsUserMessage},
		"updatedAt":        &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		"ttl":              &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(ttlDuration).Unix())},
	}
}

// itemToRenderState converts a DynamoDB attribute map to a CachedMessage.
func itemToRenderState(item map[string]types.AttributeValue) (domain.CachedMessage, error) {
	channelID, err := strAttr(item, "channelId")
	if err != nil {
		return domain.CachedMessage{}, err
	}
	index, err := intAttr(item, "currentPageIndex")
	if err != nil {
		return domain.CachedMessage{}, err
	}
	pages, err := listAttr(item, "pages")
	if err != nil {
		return domain.CachedMessage{}, err
	}
	content, _ := strAttr(item, "content")     // allow empty
	modelName, _ := strAttr(item, "modelName") // allow empty

	return domain.CachedMessage{
		ChannelID: channelID,
		Data: domain.MessageData{
			Content:          content,
			IsUserMessage:    boolAttr(item, "isUserMessage"),
			Pages:            pages,
			ModelName:        modelName,
			CurrentPageIndex: index,
			Complete:         boolAttr(item, "complete"),
		},
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func listAttr(item map[string]types.AttributeValue, key string) ([]string, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	l, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a list", key)
	}
	out := make([]string, 0, len(l.Value))
	for i, elem := range l.Value {
		s, ok := elem.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("repository: attribute %q[%d] is not a string", key, i)
		}
		out = append(out, s.Value)
	}
	return out, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) bool {
	b, ok := item[key].(*types.AttributeValueMemberBOOL)
	return ok && b.Value
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	pkgconfig "github.com/cloud-wave-best-zizon/cart-service/pkg/config"
	"go.uber.org/zap"
)

// DynamoAPI is the subset of *dynamodb.Client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// cartItem is one DynamoDB item per session; a single PutItem replaces it atomically.
type cartItem struct {
	SessionID string                          `dynamodbav:"session_id"`
	Items     string                          `dynamodbav:"items"`
	Coupon    *domain.Coupon                  `dynamodbav:"coupon,omitempty"`
	Fields    map[string]domain.CustomerField `dynamodbav:"fields,omitempty"`
	Currency  string                          `dynamodbav:"currency"`
	UpdatedAt time.Time                       `dynamodbav:"updated_at"`
}

type DynamoStore struct {
	client    DynamoAPI
	tableName string
	logger    *zap.Logger
}

// localDynamoEndpoint is where DynamoDB Local listens by default.
const localDynamoEndpoint = "http://localhost:8000"

func NewDynamoDBClient(ctx context.Context, cfg *pkgconfig.Config) (*dynamodb.Client, error) {
	endpoint := dynamoEndpoint(cfg)

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWSRegion),
	}
	// 로컬 DynamoDB는 임의의 정적 자격 증명을 받는다
	if cfg.LocalMode {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// dynamoEndpoint is the explicit endpoint, or DynamoDB Local in local mode.
func dynamoEndpoint(cfg *pkgconfig.Config) string {
	if cfg.DynamoEndpoint != "" {
		return cfg.DynamoEndpoint
	}
	if cfg.LocalMode {
		return localDynamoEndpoint
	}
	return ""
}

func NewDynamoStore(client DynamoAPI, tableName string, logger *zap.Logger) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (s *DynamoStore) Load(ctx context.Context, sessionID string) *domain.Cart {
	cart, err := s.get(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Failed to load cart, starting empty",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return domain.NewCart(sessionID, "")
	}
	return cart
}

func (s *DynamoStore) get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            sessionKey(sessionID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if result.Item == nil {
		return domain.NewCart(sessionID, ""), nil
	}

	var item cartItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	return decodeCart(sessionID, &cartRecord{
		Items:    []byte(item.Items),
		Coupon:   item.Coupon,
		Fields:   item.Fields,
		Currency: domain.Currency(item.Currency),
	})
}

func (s *DynamoStore) Save(ctx context.Context, sessionID string, cart *domain.Cart) error {
	rec, err := encodeCart(cart)
	if err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(cartItem{
		SessionID: sessionID,
		Items:     string(rec.Items),
		Coupon:    rec.Coupon,
		Fields:    rec.Fields,
		Currency:  string(rec.Currency),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       sessionKey(sessionID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Sessions(ctx context.Context) ([]string, error) {
	expr, err := expression.NewBuilder().
		WithProjection(expression.NamesList(expression.Name("session_id"))).
		Build()
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                aws.String(s.tableName),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})

	var sessions []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan carts: %w", err)
		}
		for _, raw := range page.Items {
			var item struct {
				SessionID string `dynamodbav:"session_id"`
			}
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal session: %w", err)
			}
			sessions = append(sessions, item.SessionID)
		}
	}
	return sessions, nil
}

func sessionKey(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
	}
}

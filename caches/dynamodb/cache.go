package dynamodb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	offline "github.com/PKTonmoy/cochin-sub004"
	"github.com/PKTonmoy/cochin-sub004/caches"
)

const (
	attrNamespace = "ns"
	attrKey       = "rkey"
)

// API is the subset of *dynamodb.Client the cache needs.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Config defines the configuration options for the DynamoDB cache implementation.
type Config struct {
	// Table has a string partition key "ns" and a string sort key "rkey".
	Table string
}

// Cache implements offline.CacheStore using Amazon DynamoDB as the storage
// backend. Each namespace is one partition.
type Cache struct {
	client API

	table string
}

type cacheItem struct {
	Namespace string `json:"ns" dynamodbav:"ns"`
	Key       string `json:"rkey" dynamodbav:"rkey"`
	Response  []byte `json:"response" dynamodbav:"response"`
	StoredAt  int64  `json:"stored_at" dynamodbav:"stored_at"`
}

func (c *Cache) itemKey(namespace, k string) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(struct {
		Namespace string `dynamodbav:"ns"`
		Key       string `dynamodbav:"rkey"`
	}{Namespace: namespace, Key: k})
}

// Get retrieves a cache item from DynamoDB by namespace and key.
func (c *Cache) Get(ctx context.Context, namespace, k string) (*offline.CacheItem, error) {
	key, err := c.itemKey(namespace, k)
	if err != nil {
		return nil, err
	}

	output, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		Key:            key,
		ConsistentRead: aws.Bool(true),
		TableName:      aws.String(c.table),
	})
	if err != nil {
		return nil, err
	}

	if output.Item == nil {
		return nil, caches.ErrNoCacheItem
	}

	var item cacheItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, err
	}

	return &offline.CacheItem{
		Response: item.Response,
		StoredAt: time.Unix(0, item.StoredAt).UTC(),
	}, nil
}

// Set stores a cache item, replacing any previous value for the key.
func (c *Cache) Set(ctx context.Context, namespace, k string, v *offline.CacheItem) error {
	response := v.Response
	if response == nil {
		response = []byte{}
	}
	av, err := attributevalue.MarshalMap(cacheItem{
		Namespace: namespace,
		Key:       k,
		Response:  response,
		StoredAt:  v.StoredAt.UTC().UnixNano(),
	})
	if err != nil {
		return err
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      av,
	})
	return err
}

func (c *Cache) Delete(ctx context.Context, namespace, k string) error {
	key, err := c.itemKey(namespace, k)
	if err != nil {
		return err
	}
	_, err = c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.table),
		Key:       key,
	})
	return err
}

// Keys queries the namespace partition for its sort keys.
func (c *Cache) Keys(ctx context.Context, namespace string) ([]string, error) {
	ns, err := attributevalue.Marshal(namespace)
	if err != nil {
		return nil, err
	}

	p := dynamodb.NewQueryPaginator(c.client, &dynamodb.QueryInput{
		TableName:                 aws.String(c.table),
		KeyConditionExpression:    aws.String("ns = :ns"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":ns": ns},
		ProjectionExpression:      aws.String(attrKey),
		ConsistentRead:            aws.Bool(true),
	})

	var keys []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, it := range page.Items {
			var k string
			if err := attributevalue.Unmarshal(it[attrKey], &k); err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Namespaces scans the table for distinct partition keys.
func (c *Cache) Namespaces(ctx context.Context) ([]string, error) {
	p := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:            aws.String(c.table),
		ProjectionExpression: aws.String(attrNamespace),
	})

	seen := make(map[string]bool)
	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, it := range page.Items {
			var ns string
			if err := attributevalue.Unmarshal(it[attrNamespace], &ns); err != nil {
				return nil, err
			}
			if !seen[ns] {
				seen[ns] = true
				names = append(names, ns)
			}
		}
	}
	return names, nil
}

// DropNamespace deletes every item of the namespace partition.
func (c *Cache) DropNamespace(ctx context.Context, namespace string) error {
	keys, err := c.Keys(ctx, namespace)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := c.Delete(ctx, namespace, k); err != nil {
			return err
		}
	}
	return nil
}

// New creates a new DynamoDB cache instance with the provided configuration.
// Returns an error if the client is nil or if no table is configured.
func New(ctx context.Context, client API, config *Config) (*Cache, error) {
	if client == nil {
		return nil, caches.ValidationError{
			Reason: "nil client",
		}
	}

	if config == nil || config.Table == "" {
		return nil, caches.ValidationError{
			Reason: "table is required",
		}
	}

	return &Cache{
		client: client,

		table: config.Table,
	}, nil
}

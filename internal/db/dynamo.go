// Package db holds the DynamoDB run ledger.
package db

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// NewRunStoreFromConfig uses the Lambda execution role (or local profile) from cfg.
func NewRunStoreFromConfig(cfg aws.Config, table string, ttl time.Duration) *RunStore {
	return NewRunStore(dynamodb.NewFromConfig(cfg), table, ttl)
}

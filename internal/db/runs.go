package db

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type RunClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

const (
	RunSucceeded = "SUCCEEDED"
	RunFailed    = "FAILED"
)

// Run is one sync attempt as stored in the ledger table.
type Run struct {
	PK          string `dynamodbav:"PK" json:"-"`
	SK          string `dynamodbav:"SK" json:"-"`
	ID          string `dynamodbav:"RunId" json:"run_id"`
	Job         string `dynamodbav:"Job" json:"job"`
	Table       string `dynamodbav:"TableId" json:"table_id"`
	Disposition string `dynamodbav:"Disposition" json:"disposition"`
	Status      string `dynamodbav:"Status" json:"status"`
	Records     int    `dynamodbav:"Records" json:"records"`
	ErrorKind   string `dynamodbav:"ErrorKind,omitempty" json:"error_kind,omitempty"`
	Error       string `dynamodbav:"Error,omitempty" json:"error,omitempty"`
	Fingerprint string `dynamodbav:"Fingerprint,omitempty" json:"fingerprint,omitempty"`
	StartedAt   string `dynamodbav:"StartedAt" json:"started_at"`
	DurationMs  int64  `dynamodbav:"DurationMs" json:"duration_ms"`
	ExpiresAt   int64  `dynamodbav:"ExpiresAt" json:"-"`
}

func RunPK(job string) string { return "JOB#" + job }

// RunSK sorts runs of a job by start time.
func RunSK(started time.Time, id string) string {
	return fmt.Sprintf("RUN#%s#%s", started.UTC().Format(time.RFC3339Nano), id)
}

type RunStore struct {
	client RunClient
	table  string
	ttl    time.Duration
}

func NewRunStore(c RunClient, table string, ttl time.Duration) *RunStore {
	return &RunStore{client: c, table: table, ttl: ttl}
}

// Record writes r, filling the keys and ExpiresAt from StartedAt.
func (s *RunStore) Record(ctx context.Context, r Run, started time.Time) error {
	r.PK = RunPK(r.Job)
	r.SK = RunSK(started, r.ID)
	r.StartedAt = started.UTC().Format(time.RFC3339)
	if s.ttl > 0 {
		r.ExpiresAt = started.Add(s.ttl).Unix()
	}

	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("runs PutItem: %w", err)
	}
	return nil
}

// Recent returns up to limit runs of job, newest first.
func (s *RunStore) Recent(ctx context.Context, job string, limit int) ([]Run, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#pk = :pk AND begins_with(#sk, :run)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": "PK",
			"#sk": "SK",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":  &ddbtypes.AttributeValueMemberS{Value: RunPK(job)},
			":run": &ddbtypes.AttributeValueMemberS{Value: "RUN#"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("runs Query: %w", err)
	}

	runs := make([]Run, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &runs); err != nil {
		return nil, fmt.Errorf("unmarshal runs: %w", err)
	}
	return runs, nil
}

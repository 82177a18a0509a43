// Package notify publishes sync failure alerts to an SNS topic.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Failure describes one failed sync.
type Failure struct {
	Job     string `json:"job"`
	Table   string `json:"table_id"`
	RunID   string `json:"run_id"`
	Kind    string `json:"error_kind"`
	Message string `json:"message"`
}

type Alerts struct {
	sns      Publisher
	topicArn string
}

func NewAlerts(p Publisher, topicArn string) *Alerts {
	return &Alerts{sns: p, topicArn: topicArn}
}

func (a *Alerts) SyncFailed(ctx context.Context, f Failure) error {
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("rotation sync %s failed: %s", f.Job, f.Kind)
	if len(subject) > 100 {
		subject = subject[:100]
	}

	_, err = a.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"job": {DataType: aws.String("String"), StringValue: aws.String(f.Job)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// Package archive keeps a copy of every fetched report in S3: the raw
// upstream body and the normalized table as Parquet.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"rotationsync/internal/report"
	"rotationsync/internal/warehouse"
)

type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Store struct {
	s3     ObjectPutter
	bucket string
	prefix string
}

func New(c ObjectPutter, bucket, prefix string) *Store {
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{s3: c, bucket: bucket, prefix: prefix}
}

type Entry struct {
	Job   string
	RunID string
	At    time.Time
	Raw   []byte
	Table *report.Table
}

// Keys returns the object keys for e: <prefix><job>/dt=YYYY-MM-DD/<run>.{json,parquet}.
func (s *Store) Keys(e Entry) (raw, table string) {
	base := fmt.Sprintf("%s%s/dt=%s/%s", s.prefix, e.Job, e.At.UTC().Format("2006-01-02"), e.RunID)
	return base + ".json", base + ".parquet"
}

// Put writes the raw body and, when the table has rows, its Parquet snapshot.
func (s *Store) Put(ctx context.Context, e Entry) error {
	rawKey, tableKey := s.Keys(e)

	if err := s.put(ctx, rawKey, e.Raw, "application/json"); err != nil {
		return err
	}
	if e.Table.Len() == 0 {
		return nil
	}

	var buf bytes.Buffer
	_, err := warehouse.EncodeParquet(&buf, warehouse.WriteRequest{
		Columns: e.Table.Columns,
		Rows:    e.Table.Rows,
		Schema:  warehouse.SchemaFor(e.Table),
	})
	if err != nil {
		return fmt.Errorf("encode archive snapshot: %w", err)
	}
	return s.put(ctx, tableKey, buf.Bytes(), "application/octet-stream")
}

func (s *Store) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("s3 putobject %s: %w", key, err)
	}
	return nil
}

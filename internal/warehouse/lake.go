package warehouse

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"rotationsync/internal/logging"
	"rotationsync/internal/report"
)

type LakeStorage interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type LakeCatalog interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
	CreateTable(ctx context.Context, params *glue.CreateTableInput, optFns ...func(*glue.Options)) (*glue.CreateTableOutput, error)
	UpdateTable(ctx context.Context, params *glue.UpdateTableInput, optFns ...func(*glue.Options)) (*glue.UpdateTableOutput, error)
}

// LakeWriter stores each load as Parquet under
// s3://<bucket>/<prefix><dataset>/<table>/ and keeps a Glue table with the
// same name in the dataset's database pointing at that location.
//
// An overwrite writes into a new v-<hex>/ directory and repoints the Glue
// table there before removing the previous parts, so a failed overwrite
// leaves the table as it was. An append adds a part to the table's current
// location and keeps the catalog's column types.
type LakeWriter struct {
	s3     LakeStorage
	glue   LakeCatalog
	bucket string
	prefix string
	log    *slog.Logger
}

func NewLakeWriter(s3c LakeStorage, gc LakeCatalog, bucket, prefix string) *LakeWriter {
	return &LakeWriter{
		s3:     s3c,
		glue:   gc,
		bucket: bucket,
		prefix: ensureTrailingSlash(prefix),
		log:    logging.For("warehouse"),
	}
}

func (w *LakeWriter) tablePrefix(d Destination) string {
	return fmt.Sprintf("%s%s/%s/", w.prefix, d.Dataset, d.Table)
}

func (w *LakeWriter) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	if w.bucket == "" {
		return WriteResult{}, fmt.Errorf("missing env LAKE_BUCKET")
	}

	specs, err := Columns(req)
	if err != nil {
		return WriteResult{}, fmt.Errorf("encode %s: %w", req.Dest, err)
	}

	current, err := w.currentTable(ctx, req.Dest)
	if err != nil {
		return WriteResult{}, err
	}

	cols := glueColumns(specs)
	location := w.tablePrefix(req.Dest) + "v-" + randHex(4) + "/"
	if req.Disposition == WriteAppend && current != nil {
		if specs, cols, err = mergeColumns(current, specs, req.Rows); err != nil {
			return WriteResult{}, fmt.Errorf("append to %s: %w", req.Dest, err)
		}
		if location, err = w.keyPrefix(current); err != nil {
			return WriteResult{}, fmt.Errorf("append to %s: %w", req.Dest, err)
		}
	}

	var buf bytes.Buffer
	if err := writeParquet(&buf, specs, req.Rows); err != nil {
		return WriteResult{}, fmt.Errorf("encode %s: %w", req.Dest, err)
	}

	part := randHex(8)
	key := location + "part-" + part + ".parquet"
	_, err = w.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/octet-stream"),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return WriteResult{}, fmt.Errorf("s3 putobject %s: %w", key, err)
	}

	uri := fmt.Sprintf("s3://%s/%s", w.bucket, location)
	if err := w.syncCatalog(ctx, req.Dest, cols, uri, current != nil); err != nil {
		if derr := w.deleteKeys(ctx, []string{key}); derr != nil {
			w.log.Warn("orphaned part left behind", "key", key, "err", derr)
		}
		return WriteResult{}, err
	}

	if req.Disposition == WriteTruncate {
		if err := w.deleteStale(ctx, w.tablePrefix(req.Dest), location); err != nil {
			w.log.Warn("previous parts not removed", "dest", req.Dest.String(), "err", err)
		}
	}

	return WriteResult{JobID: part, RowsWritten: int64(len(req.Rows))}, nil
}

// currentTable returns the catalog entry for d, or nil when it does not exist.
func (w *LakeWriter) currentTable(ctx context.Context, d Destination) (*gluetypes.Table, error) {
	out, err := w.glue.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(d.Dataset),
		Name:         aws.String(d.Table),
	})
	var notFound *gluetypes.EntityNotFoundException
	switch {
	case errors.As(err, &notFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("glue GetTable %s.%s: %w", d.Dataset, d.Table, err)
	}
	return out.Table, nil
}

// keyPrefix is the object key prefix of t's location in the lake bucket.
func (w *LakeWriter) keyPrefix(t *gluetypes.Table) (string, error) {
	var loc string
	if t.StorageDescriptor != nil {
		loc = aws.ToString(t.StorageDescriptor.Location)
	}
	bucketURI := "s3://" + w.bucket + "/"
	if !strings.HasPrefix(loc, bucketURI) {
		return "", fmt.Errorf("table location %q is not in bucket %s", loc, w.bucket)
	}
	return ensureTrailingSlash(strings.TrimPrefix(loc, bucketURI)), nil
}

func glueColumns(specs []ColumnSpec) []gluetypes.Column {
	cols := make([]gluetypes.Column, 0, len(specs))
	for _, c := range specs {
		cols = append(cols, gluetypes.Column{Name: aws.String(c.Name), Type: aws.String(c.HiveType())})
	}
	return cols
}

// mergeColumns reconciles a batch with the catalog columns of t. Known
// columns keep their catalog type; a batch column that is null throughout
// takes it, any other difference is an error. New columns are added at the
// end.
func mergeColumns(t *gluetypes.Table, specs []ColumnSpec, rows []report.Row) ([]ColumnSpec, []gluetypes.Column, error) {
	var cols []gluetypes.Column
	if t.StorageDescriptor != nil {
		cols = append(cols, t.StorageDescriptor.Columns...)
	}
	known := make(map[string]string, len(cols))
	for _, c := range cols {
		known[aws.ToString(c.Name)] = aws.ToString(c.Type)
	}

	out := make([]ColumnSpec, 0, len(specs))
	for _, c := range specs {
		have, ok := known[c.Name]
		switch {
		case !ok:
			cols = append(cols, gluetypes.Column{Name: aws.String(c.Name), Type: aws.String(c.HiveType())})
		case strings.EqualFold(have, c.HiveType()):
		default:
			kind, mapped := kindForHive(have)
			if !mapped || !allNull(c.Name, rows) {
				return nil, nil, fmt.Errorf("column %s is %s in the catalog, batch has %s", c.Name, have, c.HiveType())
			}
			c.Kind = kind
		}
		out = append(out, c)
	}
	return out, cols, nil
}

func (w *LakeWriter) syncCatalog(ctx context.Context, d Destination, cols []gluetypes.Column, location string, exists bool) error {
	input := &gluetypes.TableInput{
		Name:      aws.String(d.Table),
		TableType: aws.String("EXTERNAL_TABLE"),
		Parameters: map[string]string{
			"classification": "parquet",
		},
		StorageDescriptor: &gluetypes.StorageDescriptor{
			Columns:      cols,
			Location:     aws.String(location),
			InputFormat:  aws.String("org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat"),
			OutputFormat: aws.String("org.apache.hadoop.hive.ql.io.parquet.MapredParquetOutputFormat"),
			SerdeInfo: &gluetypes.SerDeInfo{
				SerializationLibrary: aws.String("org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe"),
			},
		},
	}

	if !exists {
		if _, err := w.glue.CreateTable(ctx, &glue.CreateTableInput{
			DatabaseName: aws.String(d.Dataset),
			TableInput:   input,
		}); err != nil {
			return fmt.Errorf("glue CreateTable %s.%s: %w", d.Dataset, d.Table, err)
		}
		return nil
	}
	if _, err := w.glue.UpdateTable(ctx, &glue.UpdateTableInput{
		DatabaseName: aws.String(d.Dataset),
		TableInput:   input,
	}); err != nil {
		return fmt.Errorf("glue UpdateTable %s.%s: %w", d.Dataset, d.Table, err)
	}
	return nil
}

// deleteStale removes every object under prefix that is not under keep.
func (w *LakeWriter) deleteStale(ctx context.Context, prefix, keep string) error {
	var token *string
	for {
		out, err := w.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(w.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("s3 list %s: %w", prefix, err)
		}

		var stale []string
		for _, obj := range out.Contents {
			if k := aws.ToString(obj.Key); !strings.HasPrefix(k, keep) {
				stale = append(stale, k)
			}
		}
		if err := w.deleteKeys(ctx, stale); err != nil {
			return err
		}

		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		token = out.NextContinuationToken
	}
}

func (w *LakeWriter) deleteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	ids := make([]s3types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, s3types.ObjectIdentifier{Key: aws.String(k)})
	}
	_, err := w.s3.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(w.bucket),
		Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("s3 delete %d objects: %w", len(keys), err)
	}
	return nil
}

func ensureTrailingSlash(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

func randHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

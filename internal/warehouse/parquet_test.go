package warehouse

import (
	"bytes"
	"encoding/json"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"

	"rotationsync/internal/report"
)

func sampleRequest() WriteRequest {
	return WriteRequest{
		Dest:    Destination{Project: "p", Dataset: "d", Table: "t"},
		Columns: []string{"fecha", "hora", "vigilante", "horas", "tarifa", "activo", "nº_serie"},
		Rows: []report.Row{
			{
				"fecha":     civil.Date{Year: 2024, Month: 3, Day: 15},
				"hora":      civil.Time{Hour: 8, Minute: 45},
				"vigilante": "Ana",
				"horas":     json.Number("8"),
				"tarifa":    json.Number("12.5"),
				"activo":    true,
				"nº_serie":  json.Number("7"),
			},
			{
				"fecha":     nil,
				"hora":      nil,
				"vigilante": nil,
				"horas":     json.Number("4"),
				"tarifa":    json.Number("10"),
				"activo":    false,
				"nº_serie":  "A-7",
			},
		},
		Schema:      []Field{{Name: "fecha", Type: FieldDate}, {Name: "hora", Type: FieldTime}},
		Disposition: WriteTruncate,
	}
}

func TestColumnsInference(t *testing.T) {
	specs, err := Columns(sampleRequest())
	require.NoError(t, err)

	kinds := map[string]ColumnKind{}
	for _, s := range specs {
		kinds[s.Name] = s.Kind
	}
	assert.Equal(t, KindDate, kinds["fecha"])
	assert.Equal(t, KindTime, kinds["hora"])
	assert.Equal(t, KindString, kinds["vigilante"])
	assert.Equal(t, KindInt, kinds["horas"])
	assert.Equal(t, KindDouble, kinds["tarifa"])
	assert.Equal(t, KindBool, kinds["activo"])
	assert.Equal(t, KindString, kinds["nº_serie"])

	assert.Equal(t, "date", ColumnSpec{Kind: KindDate}.HiveType())
	assert.Equal(t, "bigint", ColumnSpec{Kind: KindTime}.HiveType())
}

func TestColumnsRejectsUnwritableNames(t *testing.T) {
	_, err := Columns(WriteRequest{Columns: []string{"a,b"}})
	assert.Error(t, err)

	_, err = Columns(WriteRequest{Columns: []string{"x=1"}})
	assert.Error(t, err)
}

func TestEncodeParquet(t *testing.T) {
	req := sampleRequest()

	var buf bytes.Buffer
	specs, err := EncodeParquet(&buf, req)
	require.NoError(t, err)
	require.Len(t, specs, len(req.Columns))
	require.Greater(t, buf.Len(), 8)
	assert.Equal(t, "PAR1", buf.String()[:4])

	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(buf.Bytes()), nil, 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	assert.Equal(t, int64(2), pr.GetNumRows())

	// The reader renames Footer.Schema to Go identifiers; the names stored
	// in the file are kept as ExName.
	fields := pr.Footer.Schema[1:]
	require.Len(t, fields, len(req.Columns))
	for i, name := range req.Columns {
		assert.Equal(t, name, pr.SchemaHandler.GetExName(i+1))
	}
	assert.Contains(t, buf.String(), "nº_serie")
	assert.Equal(t, parquet.Type_INT32, fields[0].GetType())
	assert.Equal(t, parquet.ConvertedType_DATE, fields[0].GetConvertedType())
	assert.Equal(t, parquet.Type_INT64, fields[1].GetType())
	assert.Equal(t, parquet.ConvertedType_TIME_MICROS, fields[1].GetConvertedType())
	assert.Equal(t, parquet.Type_BYTE_ARRAY, fields[2].GetType())
	assert.Equal(t, parquet.Type_INT64, fields[3].GetType())
	assert.Equal(t, parquet.Type_DOUBLE, fields[4].GetType())
	assert.Equal(t, parquet.Type_BOOLEAN, fields[5].GetType())

	dates, _, _, err := pr.ReadColumnByIndex(0, 2)
	require.NoError(t, err)
	require.NotEmpty(t, dates)
	assert.Equal(t, int32(19797), dates[0])
}

func TestParquetRowConversions(t *testing.T) {
	specs := []ColumnSpec{
		{Name: "fecha", Kind: KindDate},
		{Name: "hora", Kind: KindTime},
		{Name: "texto", Kind: KindString},
	}
	row := parquetRow(specs, report.Row{
		"fecha": "15-03-2024",
		"hora":  civil.Time{Hour: 1, Minute: 2, Second: 3},
		"texto": json.Number("42"),
	})
	assert.Nil(t, row["fecha"])
	assert.Equal(t, int64(3_723_000_000), row["hora"])
	assert.Equal(t, "42", row["texto"])
}

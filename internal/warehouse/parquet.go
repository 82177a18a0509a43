package warehouse

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/writer"

	"rotationsync/internal/report"
)

// ColumnKind is the physical type a column is written with.
type ColumnKind int

const (
	KindString ColumnKind = iota
	KindBool
	KindInt
	KindDouble
	KindDate
	KindTime
)

// ColumnSpec is one column of an encoded file.
type ColumnSpec struct {
	Name string
	Kind ColumnKind
}

func (c ColumnSpec) parquetTag() string {
	var typ string
	switch c.Kind {
	case KindBool:
		typ = "type=BOOLEAN"
	case KindInt:
		typ = "type=INT64"
	case KindDouble:
		typ = "type=DOUBLE"
	case KindDate:
		typ = "type=INT32, convertedtype=DATE"
	case KindTime:
		typ = "type=INT64, convertedtype=TIME_MICROS"
	default:
		typ = "type=BYTE_ARRAY, convertedtype=UTF8"
	}
	return fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, typ)
}

// HiveType is the Glue catalog type for the column.
func (c ColumnSpec) HiveType() string {
	switch c.Kind {
	case KindBool:
		return "boolean"
	case KindInt, KindTime:
		return "bigint"
	case KindDouble:
		return "double"
	case KindDate:
		return "date"
	default:
		return "string"
	}
}

// kindForHive maps a catalog type back to the kind that writes it. Time
// columns are stored as bigint and come back as KindInt.
func kindForHive(typ string) (ColumnKind, bool) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "string":
		return KindString, true
	case "boolean":
		return KindBool, true
	case "bigint":
		return KindInt, true
	case "double":
		return KindDouble, true
	case "date":
		return KindDate, true
	}
	return 0, false
}

func allNull(name string, rows []report.Row) bool {
	for _, row := range rows {
		if row[name] != nil {
			return false
		}
	}
	return true
}

// Columns resolves the physical type of every column in req. Fields in
// req.Schema win; the rest are inferred from the non-null values: all bools
// give KindBool, all integral numbers KindInt, all numbers KindDouble, and
// anything mixed falls back to KindString.
func Columns(req WriteRequest) ([]ColumnSpec, error) {
	pinned := make(map[string]FieldType, len(req.Schema))
	for _, f := range req.Schema {
		pinned[f.Name] = f.Type
	}

	specs := make([]ColumnSpec, 0, len(req.Columns))
	inNames := make(map[string]string, len(req.Columns))
	for _, name := range req.Columns {
		if name == "" || strings.ContainsAny(name, ",=") {
			return nil, fmt.Errorf("column name %q cannot be written to parquet", name)
		}
		in := common.StringToVariableName(name)
		if other, dup := inNames[in]; dup {
			return nil, fmt.Errorf("columns %q and %q collide in parquet schema", other, name)
		}
		inNames[in] = name

		switch pinned[name] {
		case FieldDate:
			specs = append(specs, ColumnSpec{Name: name, Kind: KindDate})
		case FieldTime:
			specs = append(specs, ColumnSpec{Name: name, Kind: KindTime})
		default:
			specs = append(specs, ColumnSpec{Name: name, Kind: inferKind(name, req.Rows)})
		}
	}
	return specs, nil
}

func inferKind(name string, rows []report.Row) ColumnKind {
	allBool, allInt, allNum := true, true, true
	seen := false
	for _, row := range rows {
		v := row[name]
		if v == nil {
			continue
		}
		seen = true
		switch x := v.(type) {
		case bool:
			allInt, allNum = false, false
		case json.Number:
			allBool = false
			if _, err := x.Int64(); err != nil {
				allInt = false
			}
			if _, err := x.Float64(); err != nil {
				allNum = false
			}
		default:
			return KindString
		}
	}
	switch {
	case !seen:
		return KindString
	case allBool:
		return KindBool
	case allInt:
		return KindInt
	case allNum:
		return KindDouble
	default:
		return KindString
	}
}

// EncodeParquet writes req's rows as a single Parquet file to w.
func EncodeParquet(w io.Writer, req WriteRequest) ([]ColumnSpec, error) {
	specs, err := Columns(req)
	if err != nil {
		return nil, err
	}
	if err := writeParquet(w, specs, req.Rows); err != nil {
		return nil, err
	}
	return specs, nil
}

func writeParquet(w io.Writer, specs []ColumnSpec, rows []report.Row) error {
	schema, err := jsonSchema(specs)
	if err != nil {
		return err
	}

	pw, err := writer.NewJSONWriter(schema, writerfile.NewWriterFile(w), 1)
	if err != nil {
		return fmt.Errorf("parquet writer: %w", err)
	}

	for i, row := range rows {
		rec, err := json.Marshal(parquetRow(specs, row))
		if err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		if err := pw.Write(string(rec)); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("parquet write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("parquet write stop: %w", err)
	}
	return nil
}

func jsonSchema(specs []ColumnSpec) (string, error) {
	type node struct {
		Tag    string
		Fields []node `json:",omitempty"`
	}
	root := node{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, c := range specs {
		root.Fields = append(root.Fields, node{Tag: c.parquetTag()})
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var unixEpoch = civil.Date{Year: 1970, Month: 1, Day: 1}

// parquetRow converts one table row to the JSON shape the parquet-go JSON
// marshaller expects. Values that do not fit their column become null.
func parquetRow(specs []ColumnSpec, row report.Row) map[string]any {
	out := make(map[string]any, len(specs))
	for _, c := range specs {
		v := row[c.Name]
		if v == nil {
			out[c.Name] = nil
			continue
		}
		switch c.Kind {
		case KindDate:
			if d, ok := v.(civil.Date); ok {
				out[c.Name] = d.DaysSince(unixEpoch)
			} else {
				out[c.Name] = nil
			}
		case KindTime:
			if t, ok := v.(civil.Time); ok {
				out[c.Name] = timeMicros(t)
			} else {
				out[c.Name] = nil
			}
		case KindBool, KindInt, KindDouble:
			out[c.Name] = v
		default:
			out[c.Name] = stringValue(v)
		}
	}
	return out
}

func timeMicros(t civil.Time) int64 {
	return int64(t.Hour)*3_600_000_000 +
		int64(t.Minute)*60_000_000 +
		int64(t.Second)*1_000_000 +
		int64(t.Nanosecond)/1_000
}

func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

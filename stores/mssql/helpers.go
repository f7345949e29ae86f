package mssql

import (
	"encoding/json"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
)

const (
	idColumn            = "id"
	docColumn           = "doc"
	maxRowsPerStatement = 500
)

func quoteIdent(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func qualifiedTable(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

func objectIDName(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

func escapeSQLString(value string) string {
	return strings.ReplaceAll(value, "'", "''")
}

func documentJSON(doc map[string]any) (string, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	payload, err := json.Marshal(griddata.FormatDocumentDates(doc))
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func parseDocument(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	return doc, nil
}

func isStringType(dataType string) bool {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "varchar", "nvarchar", "char", "nchar", "text", "ntext":
		return true
	default:
		return false
	}
}

package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
	"github.com/google/uuid"
)

const (
	idColumn  = "id"
	docColumn = "doc"
)

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func qualifiedTable(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

func documentJSON(doc map[string]any) ([]byte, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	return json.Marshal(griddata.FormatDocumentDates(doc))
}

func parseDocument(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return map[string]any{}, nil
	}
	return out, nil
}

// parseKey decodes a jsonb group key; SQL NULL arrives as nil.
func parseKey(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseRowID(text string) (uuid.UUID, error) {
	id, err := uuid.Parse(text)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decode row id %q: %w", text, err)
	}
	return id, nil
}

// bucketItem is the jsonb_agg element shape of a retained row.
type bucketItem struct {
	ID  string         `json:"id"`
	Doc map[string]any `json:"doc"`
}

func parseBucketItems(raw []byte) ([]griddata.Row, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []bucketItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	rows := make([]griddata.Row, 0, len(items))
	for _, item := range items {
		id, err := parseRowID(item.ID)
		if err != nil {
			return nil, err
		}
		doc := item.Doc
		if doc == nil {
			doc = map[string]any{}
		}
		rows = append(rows, griddata.Row{ID: id, Doc: doc})
	}
	return rows, nil
}

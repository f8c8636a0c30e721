package nbformat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/starford/nbsync/internal/models"
)

// Cell keys with a typed home in models.CellData.
const (
	keyCellType       = "cell_type"
	keySource         = "source"
	keyMetadata       = "metadata"
	keyOutputs        = "outputs"
	keyExecutionCount = "execution_count"
)

// ImportID returns the id assigned to the cell at index when a file is loaded.
func ImportID(index int) string {
	return "NotebookImport#" + strconv.Itoa(index)
}

// DecodeCell converts one interchange cell object into a models.Cell.
// Keys it does not understand are kept verbatim in Data.Extra. All raw
// values are compacted so that equal content compares equal bytewise.
func DecodeCell(raw json.RawMessage, id string) (models.Cell, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return models.Cell{}, fmt.Errorf("nbformat: cell %s: %w", id, err)
	}
	if obj == nil {
		return models.Cell{}, fmt.Errorf("nbformat: cell %s: not an object", id)
	}

	cell := models.Cell{
		ID:    id,
		File:  models.NoFile,
		State: models.StateFinished,
	}

	var cellType string
	if v, ok := obj[keyCellType]; ok {
		if err := json.Unmarshal(v, &cellType); err != nil {
			return models.Cell{}, fmt.Errorf("nbformat: cell %s: cell_type: %w", id, err)
		}
	}
	if cellType == "" {
		cellType = string(models.CellTypeCode)
	}
	cell.Data.CellType = models.CellType(cellType)
	delete(obj, keyCellType)

	if v, ok := obj[keySource]; ok {
		src, err := JoinSource(v)
		if err != nil {
			return models.Cell{}, fmt.Errorf("nbformat: cell %s: source: %w", id, err)
		}
		cell.Data.Source = src
		delete(obj, keySource)
	}

	if v, ok := obj[keyMetadata]; ok {
		m, err := compact(v)
		if err != nil {
			return models.Cell{}, fmt.Errorf("nbformat: cell %s: metadata: %w", id, err)
		}
		cell.Data.Metadata = m
		delete(obj, keyMetadata)
	}

	// Outputs and execution counts only have meaning on code cells. On other
	// cell types they stay in Extra so they are written back untouched.
	if cell.Data.CellType == models.CellTypeCode {
		cell.Data.Outputs = []json.RawMessage{}
		if v, ok := obj[keyOutputs]; ok {
			var outs []json.RawMessage
			if err := json.Unmarshal(v, &outs); err != nil {
				return models.Cell{}, fmt.Errorf("nbformat: cell %s: outputs: %w", id, err)
			}
			for _, o := range outs {
				c, err := compact(o)
				if err != nil {
					return models.Cell{}, fmt.Errorf("nbformat: cell %s: outputs: %w", id, err)
				}
				cell.Data.Outputs = append(cell.Data.Outputs, c)
			}
			delete(obj, keyOutputs)
		}
		if v, ok := obj[keyExecutionCount]; ok {
			var n *int
			if err := json.Unmarshal(v, &n); err != nil {
				return models.Cell{}, fmt.Errorf("nbformat: cell %s: execution_count: %w", id, err)
			}
			cell.Data.ExecutionCount = n
			delete(obj, keyExecutionCount)
		}
	}

	if len(obj) > 0 {
		cell.Data.Extra = make(map[string]json.RawMessage, len(obj))
		for k, v := range obj {
			c, err := compact(v)
			if err != nil {
				return models.Cell{}, fmt.Errorf("nbformat: cell %s: %s: %w", id, k, err)
			}
			cell.Data.Extra[k] = c
		}
	}
	return cell, nil
}

// EncodeCell renders a cell in interchange form with keys sorted and the
// source split into lines. Code cells always carry outputs and
// execution_count; every cell carries metadata.
func EncodeCell(c models.Cell) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, len(c.Data.Extra)+5)
	for k, v := range c.Data.Extra {
		fields[k] = v
	}

	cellType := c.Data.CellType
	if cellType == "" {
		cellType = models.CellTypeCode
	}
	var err error
	if fields[keyCellType], err = marshal(string(cellType)); err != nil {
		return nil, err
	}
	if fields[keySource], err = marshal(SplitSource(c.Data.Source)); err != nil {
		return nil, err
	}

	fields[keyMetadata] = json.RawMessage("{}")
	if len(c.Data.Metadata) > 0 {
		fields[keyMetadata] = c.Data.Metadata
	}

	if cellType == models.CellTypeCode {
		fields[keyOutputs] = json.RawMessage("[]")
		if len(c.Data.Outputs) > 0 {
			if fields[keyOutputs], err = writeArray(c.Data.Outputs); err != nil {
				return nil, err
			}
		}
		fields[keyExecutionCount] = json.RawMessage("null")
		if c.Data.ExecutionCount != nil {
			fields[keyExecutionCount] = json.RawMessage(strconv.Itoa(*c.Data.ExecutionCount))
		}
	}

	return writeObject(slices.Sorted(maps.Keys(fields)), func(k string) json.RawMessage { return fields[k] })
}

// marshal encodes v without escaping HTML characters.
func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("nbformat: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func compact(raw json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeObject writes a JSON object with keys in the given order. Values are
// trusted to be valid JSON.
func writeObject(keys []string, value func(string) json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(value(k))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeArray(items []json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		if !json.Valid(it) {
			return nil, fmt.Errorf("nbformat: invalid raw value at %d", i)
		}
		buf.Write(it)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

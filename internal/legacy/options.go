package legacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// ErrUnparseableOptions is returned by Bag when the blob is not a JSON object.
var ErrUnparseableOptions = errors.New("unparseable options")

// sourceFileKeys name the options that carried the input table path, most
// specific first.
var sourceFileKeys = []string{"otu_table_fp", "biom_table", "input_fp", "i"}

// Options is the raw legacy options blob.
type Options string

// Empty reports whether no options were recorded.
func (o Options) Empty() bool {
	s := strings.TrimSpace(string(o))
	return s == "" || s == "{}" || s == "null"
}

// Bag parses the blob into an untyped bag. Leading dashes are stripped from
// option names so "--tree_fp" and "tree_fp" are the same key.
func (o Options) Bag() (Bag, error) {
	if o.Empty() {
		return Bag{}, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(o), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableOptions, err)
	}
	bag := make(Bag, len(raw))
	for k, v := range raw {
		bag[strings.TrimLeft(k, "-")] = v
	}
	return bag, nil
}

// Bag is the untyped key/value view of legacy options.
type Bag map[string]any

// Text returns the option rendered as text, as the legacy platform passed it
// on a command line.
func (b Bag) Text(key string) (string, bool) {
	v, ok := b[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, ","), true
	default:
		return fmt.Sprint(t), true
	}
}

// SourceFile returns the base name of the input table the job read.
func (b Bag) SourceFile() (string, bool) {
	for _, k := range sourceFileKeys {
		if s, ok := b.Text(k); ok && s != "" {
			return path.Base(s), true
		}
	}
	return "", false
}

// ReferencesFile reports whether the options name a file with the same base
// name as filePath.
func (o Options) ReferencesFile(filePath string) bool {
	bag, err := o.Bag()
	if err != nil {
		return false
	}
	name, ok := bag.SourceFile()
	return ok && name == path.Base(filePath)
}

package reconcile

import (
	"sort"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/legacy"
	"github.com/zjrosen/lineage/internal/log"
)

// convertOptions turns the untyped legacy options of job into a complete
// binding for cmd, with inputID bound to the table parameter. Options that
// do not map to a parameter of cmd are dropped; parameters without a
// recoverable option take their declared default.
func convertOptions(job legacy.Job, cmd *catalog.Command, inputID int64) (catalog.Binding, error) {
	bag, err := job.Options.Bag()
	if err != nil {
		return nil, &LegacyRecordError{JobID: job.ID, Kind: ErrUnparseableOptions, Msg: err.Error()}
	}

	values := map[string]catalog.Value{tableParameter: catalog.ArtifactValue(inputID)}

	keys := make([]string, 0, len(bag))
	for k := range bag {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name, ok := optionNames[key]
		if !ok {
			continue
		}
		param, ok := cmd.Parameter(name)
		if !ok {
			log.Debug(log.CatReconcile, "legacy option has no parameter in target", "job", job.ID, "option", key, "command", cmd.Name())
			continue
		}
		text, ok := bag.Text(key)
		if !ok {
			continue
		}
		v, err := catalog.ParseValue(param.Type().Primitive(), text)
		if err != nil {
			return nil, recordError(job.ID, ErrUnconvertibleOption, "%s=%q: %v", key, text, err)
		}
		values[name] = v
	}

	binding, err := cmd.Bind(values)
	if err != nil {
		return nil, recordError(job.ID, ErrUnconvertibleOption, "%v", err)
	}
	return binding, nil
}

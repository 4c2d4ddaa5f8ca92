package pack

import (
	"fmt"
	"sort"
	"strings"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/internal/layout"
	"github.com/voxpack/voxpack/internal/table"
	"github.com/voxpack/voxpack/pkg/types"
)

// group is the flat input restricted to one (source, speaker) pair, rows in
// their original input order.
type group struct {
	key  types.GroupKey
	rows []types.Row
}

// splitGroups validates the flat input and splits it by sanitized
// (source, speaker). Structural problems (duplicate ids, unresolvable
// partition labels) abort before any output is written.
func splitGroups(t *table.Table, opts Options) ([]group, error) {
	hasSource := hasColumn(t.Columns, opts.Columns.Source)
	hasSpeaker := hasColumn(t.Columns, opts.Columns.Speaker)

	if !hasSource && opts.DefaultSource == "" {
		return nil, errors.NewValidationError(errors.CodeMissingPartitionColumn,
			fmt.Sprintf("flat metadata has no %q column and no default source is configured",
				opts.Columns.Source))
	}
	if !hasSpeaker && opts.DefaultSpeaker == "" {
		return nil, errors.NewValidationError(errors.CodeMissingPartitionColumn,
			fmt.Sprintf("flat metadata has no %q column and no default speaker is configured",
				opts.Columns.Speaker))
	}

	seen := make(map[string]bool, len(t.Rows))
	byKey := make(map[types.GroupKey]*group)
	var order []types.GroupKey
	sanitized := make(map[string]string)

	sanitize := func(raw string) (string, error) {
		if s, ok := sanitized[raw]; ok {
			return s, nil
		}
		s, err := layout.SanitizeLabel(raw)
		if err != nil {
			return "", err
		}
		sanitized[raw] = s
		return s, nil
	}

	for i, row := range t.Rows {
		id := row.Value(opts.Columns.ID)
		if strings.TrimSpace(id) == "" {
			return nil, errors.NewSchemaError(errors.CodeSchemaViolation,
				fmt.Sprintf("flat metadata row %d has an empty %q column", i+1, opts.Columns.ID))
		}
		if seen[id] {
			return nil, errors.NewSchemaError(errors.CodeDuplicateRowID,
				fmt.Sprintf("row id %q appears more than once in the flat metadata", id)).
				WithRow(id, "")
		}
		seen[id] = true

		rawSource := row.Value(opts.Columns.Source)
		if rawSource == "" {
			if opts.DefaultSource == "" {
				return nil, errors.NewValidationError(errors.CodeMissingPartitionColumn,
					fmt.Sprintf("row %q has no %s value and no default source is configured",
						id, opts.Columns.Source)).WithRow(id, "")
			}
			rawSource = opts.DefaultSource
		}
		rawSpeaker := row.Value(opts.Columns.Speaker)
		if rawSpeaker == "" {
			if opts.DefaultSpeaker == "" {
				return nil, errors.NewValidationError(errors.CodeMissingPartitionColumn,
					fmt.Sprintf("row %q has no %s value and no default speaker is configured",
						id, opts.Columns.Speaker)).WithRow(id, "")
			}
			rawSpeaker = opts.DefaultSpeaker
		}

		source, err := sanitize(rawSource)
		if err != nil {
			return nil, err
		}
		speaker, err := sanitize(rawSpeaker)
		if err != nil {
			return nil, err
		}

		key := types.GroupKey{Source: source, Speaker: speaker}
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}

	// Groups are processed in ascending key order so identical input always
	// produces identical batch assignments.
	sort.Slice(order, func(i, j int) bool { return order[i].Less(order[j]) })
	groups := make([]group, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups, nil
}

// validateExplicitBatch checks an explicit batch label. Labels are used
// verbatim (no case folding) but must stay a single path segment.
func validateExplicitBatch(label string) error {
	if label == "" {
		return nil
	}
	if strings.TrimSpace(label) == "" {
		return errors.NewValidationError(errors.CodeInvalidLabel, "explicit batch label is empty")
	}
	if strings.ContainsAny(label, "/\\") || label == "." || label == ".." {
		return errors.NewValidationError(errors.CodeInvalidLabel,
			fmt.Sprintf("explicit batch label %q is not a valid path segment", label))
	}
	return nil
}

func hasColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}

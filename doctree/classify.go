package doctree

import "strings"

// ---------------------------------------------------------------------------
// Structural field classification
// ---------------------------------------------------------------------------

// structuralKeys lists leaf key names whose values must stay byte-identical
// between language variants: identifiers, dates, enumerated codes and
// cross-reference fields. Checked against the final map key of the path.
var structuralKeys = map[string]bool{
	"id":             true,
	"uuid":           true,
	"key":            true,
	"slug":           true,
	"code":           true,
	"ref":            true,
	"refId":          true,
	"parentId":       true,
	"taskId":         true,
	"causeId":        true,
	"objectiveId":    true,
	"dependsOn":      true,
	"predecessorId":  true,
	"date":           true,
	"startDate":      true,
	"endDate":        true,
	"deadline":       true,
	"createdAt":      true,
	"updatedAt":      true,
	"type":           true,
	"category":       true,
	"status":         true,
	"priority":       true,
	"severity":       true,
	"likelihood":     true,
	"impact":         true,
	"dependencyType": true,
	"currency":       true,
	"unit":           true,
	"lang":           true,
	"version":        true,
	"acronym":        true,
	"color":          true,
	"icon":           true,
}

// structuralValues lists closed enumeration constants that must never be
// translated even when they appear under a free-text key. Checked against
// the exact trimmed leaf value.
var structuralValues = map[string]bool{
	// likelihood / impact / severity scale
	"Very Low":  true,
	"Low":       true,
	"Medium":    true,
	"High":      true,
	"Very High": true,
	"Critical":  true,
	// task dependency types
	"FS": true,
	"SS": true,
	"FF": true,
	"SF": true,
	// risk / issue categories
	"Technical":      true,
	"Organizational": true,
	"External":       true,
	"Financial":      true,
	"Legal":          true,
	// generic workflow states
	"Open":        true,
	"Closed":      true,
	"In Progress": true,
	"Done":        true,
	"Pending":     true,
}

// StructuralKey reports whether a leaf key belongs to the structural
// skip-set.
func StructuralKey(key string) bool { return structuralKeys[key] }

// StructuralValue reports whether a leaf value is a closed enumeration
// constant from the value skip-set.
func StructuralValue(v string) bool { return structuralValues[strings.TrimSpace(v)] }

// IsStructural reports whether the leaf must be copied verbatim between
// language variants instead of being translated. A leaf is structural
// when it is a typed scalar (number, boolean), when its final map key is
// in the key skip-set, or when its exact trimmed value is in the value
// skip-set.
func IsStructural(l Leaf) bool {
	return l.Tag != "" || StructuralKey(l.Path.LastKey()) || StructuralValue(l.Value)
}

// SplitLeaves partitions leaves into translatable and structural sets,
// preserving document order within each.
func SplitLeaves(leaves []Leaf) (translatable, structural []Leaf) {
	for _, l := range leaves {
		if IsStructural(l) {
			structural = append(structural, l)
		} else {
			translatable = append(translatable, l)
		}
	}
	return translatable, structural
}

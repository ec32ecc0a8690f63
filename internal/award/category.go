package award

import (
	"maps"
	"slices"
	"strings"
)

// DefaultCategory labels codes that match no entry of the table.
const DefaultCategory = "Construction"

// categoryLabels maps 8-digit classification codes to display labels.
var categoryLabels = map[string]string{
	"45000000": "Construction works",
	"45100000": "Site preparation works",
	"45200000": "Civil construction",
	"45210000": "Building construction",
	"45211000": "Residential and civil buildings",
	"45213000": "Commercial and industrial buildings",
	"45220000": "Civil engineering works",
	"45230000": "Roads and pipelines",
	"45233000": "Road construction",
	"45240000": "Hydraulic works",
	"45300000": "Installation works",
	"45310000": "Electrical installations",
	"45330000": "Plumbing and sanitary installations",
	"45400000": "Finishing works",
	"71000000": "Architecture and engineering services",
	"71300000": "Engineering services",
	"71320000": "Design services",
	"71500000": "Construction-related services",
	"71520000": "Construction supervision",
}

const labelCodeLength = 8

// CategoryLabel returns the display label for a classification code. It looks
// at the first eight characters and falls back to the closest broader code
// (45233100 → 45233000 → 45230000 → 45200000 → 45000000).
func CategoryLabel(code string) string {
	code = strings.TrimSpace(code)
	if len(code) > labelCodeLength {
		code = code[:labelCodeLength]
	}
	if len(code) < labelCodeLength {
		code += strings.Repeat("0", labelCodeLength-len(code))
	}
	for keep := labelCodeLength; keep >= 2; keep-- {
		candidate := code[:keep] + strings.Repeat("0", labelCodeLength-keep)
		if label, ok := categoryLabels[candidate]; ok {
			return label
		}
	}
	return DefaultCategory
}

// Categories lists every known label once, in code order.
func Categories() []string {
	codes := slices.Sorted(maps.Keys(categoryLabels))
	labels := make([]string, 0, len(codes)+1)
	for _, code := range codes {
		labels = append(labels, categoryLabels[code])
	}
	return append(labels, DefaultCategory)
}

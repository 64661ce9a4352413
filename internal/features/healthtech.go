package features

import (
	"strings"

	"github.com/sells-group/dealgen/internal/model"
)

var (
	x12Markers           = []string{"x12", "270", "271", "276", "277", "278", "835", "837"}
	fhirMarkers          = []string{"fhir", "hl7"}
	clearinghouseMarkers = []string{"clearinghouse", "availity", "edifecs", "change healthcare", "optum"}
)

// ParseHealthTech detects healthcare technology rails in a free-text
// technology description. It returns none_detected when nothing matches.
func ParseHealthTech(text string) []model.TechTag {
	s := strings.ToLower(text)

	var tags []model.TechTag
	if containsAny(s, x12Markers) {
		tags = append(tags, model.TechX12)
	}
	if containsAny(s, fhirMarkers) {
		tags = append(tags, model.TechFHIR)
	}
	if containsAny(s, clearinghouseMarkers) {
		tags = append(tags, model.TechClearinghouse)
	}
	if len(tags) == 0 {
		return []model.TechTag{model.TechNoneDetected}
	}
	return tags
}

// ParseTechTags reads a delimited tag list ("x12;fhir_hl7", "X12, FHIR/HL7")
// into known tags, dropping anything unrecognized.
func ParseTechTags(raw string) []model.TechTag {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == ';' || r == ',' || r == '|'
	})

	seen := make(map[model.TechTag]bool)
	var tags []model.TechTag
	for _, f := range fields {
		var tag model.TechTag
		switch strings.TrimSpace(f) {
		case "x12":
			tag = model.TechX12
		case "fhir_hl7", "fhir/hl7", "fhir", "hl7":
			tag = model.TechFHIR
		case "clearinghouse":
			tag = model.TechClearinghouse
		case "none_detected", "none":
			tag = model.TechNoneDetected
		default:
			continue
		}
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

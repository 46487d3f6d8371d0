package diagnosis

import (
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// SchemaName is the name the output contract is registered under with the model provider.
const SchemaName = "medical_diagnosis"

// Severity is the triage level attached to a conclusion.
type Severity string

const (
	SeverityLow       Severity = "Low"
	SeverityModerate  Severity = "Moderate"
	SeverityHigh      Severity = "High"
	SeverityEmergency Severity = "Emergency"
)

var severityLevels = []Severity{SeverityLow, SeverityModerate, SeverityHigh, SeverityEmergency}

// SeverityLevels returns the enumeration in ascending order of urgency.
func SeverityLevels() []Severity {
	out := make([]Severity, len(severityLevels))
	copy(out, severityLevels)
	return out
}

// ParseSeverity maps s onto a canonical level, ignoring case and surrounding space.
func ParseSeverity(s string) (Severity, bool) {
	s = strings.TrimSpace(s)
	for _, level := range severityLevels {
		if strings.EqualFold(s, string(level)) {
			return level, true
		}
	}
	return "", false
}

// Valid reports whether s is one of the four levels.
func (s Severity) Valid() bool {
	for _, level := range severityLevels {
		if s == level {
			return true
		}
	}
	return false
}

// Field names of the structured model response. The set is closed.
const (
	FieldReply        = "reply"
	FieldIsConclusion = "isConclusion"
	FieldDisease      = "disease"
	FieldSeverity     = "severity"
	FieldRedFlags     = "redFlags"
	FieldMedications  = "medications"
	FieldHospitals    = "hospitals"
	FieldConfidence   = "confidence"
)

var requiredFields = []string{
	FieldReply,
	FieldIsConclusion,
	FieldDisease,
	FieldSeverity,
	FieldRedFlags,
	FieldMedications,
	FieldHospitals,
	FieldConfidence,
}

// RequiredFields lists every field a response must carry.
func RequiredFields() []string {
	out := make([]string, len(requiredFields))
	copy(out, requiredFields)
	return out
}

// Schema is the JSON schema handed to the model as its output contract.
func Schema() jsonschema.Definition {
	text := jsonschema.Definition{Type: jsonschema.String}
	list := jsonschema.Definition{Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.String}}

	levels := make([]string, 0, len(severityLevels))
	for _, level := range severityLevels {
		levels = append(levels, string(level))
	}

	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			FieldReply:        {Type: jsonschema.String, Description: "The message to show the user"},
			FieldIsConclusion: {Type: jsonschema.Boolean},
			FieldDisease:      text,
			FieldSeverity:     {Type: jsonschema.String, Enum: levels},
			FieldRedFlags:     list,
			FieldMedications:  list,
			FieldHospitals:    list,
			FieldConfidence:   text,
		},
		Required:             RequiredFields(),
		AdditionalProperties: false,
	}
}

// Package diagnosis defines the structured shape an intake model response must have
// before the conversation engine trusts it.
package diagnosis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrMalformedResponse is returned when a payload does not satisfy the schema.
var ErrMalformedResponse = errors.New("diagnosis: malformed response")

// Conclusion is a validated model response. Only Reply and IsConclusion carry meaning
// when IsConclusion is false.
type Conclusion struct {
	Reply        string   `json:"reply"`
	IsConclusion bool     `json:"isConclusion"`
	Disease      string   `json:"disease"`
	Severity     Severity `json:"severity"`
	RedFlags     []string `json:"redFlags"`
	Medications  []string `json:"medications"`
	Hospitals    []string `json:"hospitals"`
	Confidence   string   `json:"confidence"`
}

// Parse validates raw against the closed schema and returns the typed value.
// Every failure wraps ErrMalformedResponse.
func Parse(raw string) (Conclusion, error) {
	payload := bytes.TrimSpace([]byte(raw))
	if len(payload) == 0 {
		return Conclusion{}, malformed("empty payload")
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return Conclusion{}, malformed("not a json object: %v", err)
	}
	if fields == nil {
		return Conclusion{}, malformed("payload is null")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Conclusion{}, malformed("trailing data after object")
	}

	if extra := unknownFields(fields); len(extra) > 0 {
		return Conclusion{}, malformed("unexpected fields %s", strings.Join(extra, ", "))
	}
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return Conclusion{}, malformed("missing field %q", name)
		}
	}

	var out Conclusion
	var err error
	if out.Reply, err = decodeString(fields, FieldReply, false); err != nil {
		return Conclusion{}, err
	}
	if strings.TrimSpace(out.Reply) == "" {
		return Conclusion{}, malformed("field %q is blank", FieldReply)
	}
	if out.IsConclusion, err = decodeBool(fields, FieldIsConclusion); err != nil {
		return Conclusion{}, err
	}

	// Diagnostic fields are meaningless before a conclusion, so nulls are tolerated there.
	nullable := !out.IsConclusion
	if out.Disease, err = decodeString(fields, FieldDisease, nullable); err != nil {
		return Conclusion{}, err
	}
	if out.Confidence, err = decodeString(fields, FieldConfidence, nullable); err != nil {
		return Conclusion{}, err
	}
	if out.RedFlags, err = decodeStrings(fields, FieldRedFlags, nullable); err != nil {
		return Conclusion{}, err
	}
	if out.Medications, err = decodeStrings(fields, FieldMedications, nullable); err != nil {
		return Conclusion{}, err
	}
	if out.Hospitals, err = decodeStrings(fields, FieldHospitals, nullable); err != nil {
		return Conclusion{}, err
	}

	severity, err := decodeString(fields, FieldSeverity, nullable)
	if err != nil {
		return Conclusion{}, err
	}
	if level, ok := ParseSeverity(severity); ok {
		out.Severity = level
	} else if out.IsConclusion || strings.TrimSpace(severity) != "" {
		return Conclusion{}, malformed("severity %q is not one of Low, Moderate, High, Emergency", severity)
	}

	return out, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

func unknownFields(fields map[string]json.RawMessage) []string {
	allowed := make(map[string]struct{}, len(requiredFields))
	for _, name := range requiredFields {
		allowed[name] = struct{}{}
	}
	var extra []string
	for name := range fields {
		if _, ok := allowed[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return extra
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(fields map[string]json.RawMessage, name string, nullable bool) (string, error) {
	raw := fields[name]
	if isNull(raw) {
		if nullable {
			return "", nil
		}
		return "", malformed("field %q is null", name)
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", malformed("field %q must be a string", name)
	}
	return v, nil
}

func decodeBool(fields map[string]json.RawMessage, name string) (bool, error) {
	raw := fields[name]
	if isNull(raw) {
		return false, malformed("field %q is null", name)
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, malformed("field %q must be a boolean", name)
	}
	return v, nil
}

func decodeStrings(fields map[string]json.RawMessage, name string, nullable bool) ([]string, error) {
	raw := fields[name]
	if isNull(raw) {
		if nullable {
			return nil, nil
		}
		return nil, malformed("field %q is null", name)
	}
	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, malformed("field %q must be an array of strings", name)
	}
	if v == nil {
		v = []string{}
	}
	return v, nil
}

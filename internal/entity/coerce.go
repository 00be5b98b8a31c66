package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// CoercionError reports a wire value that cannot be converted to the
// field's declared type. The field name is carried for 422 bodies.
type CoercionError struct {
	Field   string
	Message string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Message)
}

// Coerce converts a decoded JSON value into the field's storage
// representation. nil is accepted only for nullable fields; absence is
// the caller's concern and never reaches this function.
func (f Field) Coerce(value any) (any, error) {
	if value == nil {
		if !f.Nullable {
			return nil, &CoercionError{Field: f.Name, Message: "null is not allowed"}
		}
		return nil, nil
	}

	switch f.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, &CoercionError{Field: f.Name, Message: "expected a string"}
		}
		return s, nil

	case TypeInt:
		switch v := value.(type) {
		case float64:
			if v != math.Trunc(v) {
				return nil, &CoercionError{Field: f.Name, Message: "expected an integer"}
			}
			return int64(v), nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, &CoercionError{Field: f.Name, Message: "expected an integer"}
			}
			return n, nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		}
		return nil, &CoercionError{Field: f.Name, Message: "expected an integer"}

	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case json.Number:
			n, err := v.Float64()
			if err != nil {
				return nil, &CoercionError{Field: f.Name, Message: "expected a number"}
			}
			return n, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
		return nil, &CoercionError{Field: f.Name, Message: "expected a number"}

	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, &CoercionError{Field: f.Name, Message: "expected a boolean"}
		}
		return b, nil

	case TypeTime:
		s, ok := value.(string)
		if !ok {
			return nil, &CoercionError{Field: f.Name, Message: "expected an RFC 3339 timestamp"}
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			// Accept the date-only form for convenience on time fields.
			t, err = time.Parse(dateLayout, s)
			if err != nil {
				return nil, &CoercionError{Field: f.Name, Message: "invalid timestamp"}
			}
		}
		return t.UTC(), nil

	case TypeDate:
		s, ok := value.(string)
		if !ok {
			return nil, &CoercionError{Field: f.Name, Message: "expected a YYYY-MM-DD date"}
		}
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, &CoercionError{Field: f.Name, Message: "invalid date"}
		}
		return t, nil

	case TypeJSON:
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, &CoercionError{Field: f.Name, Message: "invalid json value"}
		}
		return json.RawMessage(raw), nil

	case TypeGeometry:
		doc, ok := value.(map[string]any)
		if !ok {
			return nil, &CoercionError{Field: f.Name, Message: "expected a geometry object"}
		}
		if _, ok := doc["type"].(string); !ok {
			return nil, &CoercionError{Field: f.Name, Message: "geometry requires a type"}
		}
		if _, ok := doc["coordinates"]; !ok {
			return nil, &CoercionError{Field: f.Name, Message: "geometry requires coordinates"}
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, &CoercionError{Field: f.Name, Message: "invalid geometry value"}
		}
		return json.RawMessage(raw), nil
	}

	return nil, &CoercionError{Field: f.Name, Message: "unsupported field type"}
}

// Render converts a stored value into its canonical wire representation.
// Times become RFC 3339, dates YYYY-MM-DD, raw JSON is re-inflated,
// everything else passes through.
func (f Field) Render(value any) any {
	if value == nil {
		return nil
	}

	switch f.Type {
	case TypeTime:
		if t, ok := value.(time.Time); ok {
			return t.UTC().Format(time.RFC3339)
		}
	case TypeDate:
		if t, ok := value.(time.Time); ok {
			return t.Format(dateLayout)
		}
	case TypeJSON, TypeGeometry:
		switch v := value.(type) {
		case json.RawMessage:
			var decoded any
			if err := json.Unmarshal(v, &decoded); err == nil {
				return decoded
			}
		case []byte:
			var decoded any
			if err := json.Unmarshal(v, &decoded); err == nil {
				return decoded
			}
		case string:
			var decoded any
			if err := json.Unmarshal([]byte(v), &decoded); err == nil {
				return decoded
			}
		}
	case TypeBool:
		// MySQL surfaces BOOL as tinyint.
		switch v := value.(type) {
		case int64:
			return v != 0
		case []byte:
			return string(v) == "1"
		}
	case TypeInt:
		if b, ok := value.([]byte); ok {
			if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
				return n
			}
		}
	case TypeFloat:
		if b, ok := value.([]byte); ok {
			if n, err := strconv.ParseFloat(string(b), 64); err == nil {
				return n
			}
		}
	case TypeString:
		if b, ok := value.([]byte); ok {
			return string(b)
		}
	}

	return value
}

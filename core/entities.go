package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
)

// ID is a primary or foreign key. The hosted backend uses uuid strings,
// older embedded databases use integers; both decode into an ID.
type ID string

// String returns the id as text
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the id is empty
func (id ID) IsZero() bool {
	return id == ""
}

// UnmarshalJSON accepts a JSON string, a JSON number or null
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// IDFrom converts a raw column value to an ID
func IDFrom(v any) ID {
	switch t := v.(type) {
	case nil:
		return ""
	case ID:
		return t
	case string:
		return ID(t)
	case []byte:
		return ID(t)
	case int64:
		return ID(strconv.FormatInt(t, 10))
	case int:
		return ID(strconv.Itoa(t))
	case float64:
		return ID(strconv.FormatFloat(t, 'f', -1, 64))
	case json.Number:
		return ID(t.String())
	default:
		return ID(fmt.Sprint(t))
	}
}

// Timestamp decodes the timestamp spellings produced by both backends
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// NewTimestamp wraps t in UTC
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp parses any supported layout
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// String formats the timestamp as RFC 3339 in UTC
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// MarshalJSON encodes a zero timestamp as null
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts null or any supported layout
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// User is a person belonging to a company
type User struct {
	ID        ID        `json:"id" db:"id,omitempty"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Role      string    `json:"role" db:"role,omitempty"`
	CompanyID ID        `json:"company_id" db:"company_id,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty" db:"avatar_url,omitempty"`
	Status    string    `json:"status" db:"status,omitempty"`
	CreatedAt Timestamp `json:"created_at" db:"created_at,omitempty"`
	UpdatedAt Timestamp `json:"updated_at" db:"updated_at,omitempty"`
}

// Company is the tenant root
type Company struct {
	ID               ID        `json:"id" db:"id,omitempty"`
	Name             string    `json:"name" db:"name"`
	Email            string    `json:"email" db:"email,omitempty"`
	Phone            string    `json:"phone" db:"phone,omitempty"`
	Address          string    `json:"address" db:"address,omitempty"`
	SubscriptionTier string    `json:"subscription_tier" db:"subscription_tier,omitempty"`
	Status           string    `json:"status" db:"status,omitempty"`
	CreatedAt        Timestamp `json:"created_at" db:"created_at,omitempty"`
	UpdatedAt        Timestamp `json:"updated_at" db:"updated_at,omitempty"`
}

// Project is a unit of work under a company
type Project struct {
	ID          ID        `json:"id" db:"id,omitempty"`
	CompanyID   ID        `json:"company_id" db:"company_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description,omitempty"`
	Status      string    `json:"status" db:"status,omitempty"`
	StartDate   *string   `json:"start_date,omitempty" db:"start_date,omitempty"`
	EndDate     *string   `json:"end_date,omitempty" db:"end_date,omitempty"`
	Budget      float64   `json:"budget" db:"budget,omitempty"`
	ActualCost  float64   `json:"actual_cost" db:"actual_cost,omitempty"`
	Progress    int       `json:"progress" db:"progress,omitempty"`
	CreatedAt   Timestamp `json:"created_at" db:"created_at,omitempty"`
	UpdatedAt   Timestamp `json:"updated_at" db:"updated_at,omitempty"`
}

// ToRow converts a struct (or pointer to struct) into a Row.
//
// Column names resolve in order: db tag, json tag, snake_case of the field
// name. A db tag of "-" skips the field; the ",omitempty" option skips zero
// values so that store defaults apply.
func ToRow(v any) Row {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil
	}
	rt := rv.Type()
	row := make(Row, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		column, omitEmpty, skip := columnFor(field)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		row[column] = columnValue(fv)
	}
	return row
}

// FromRow decodes a Row into dest, a pointer to a struct with json tags
// matching the column names
func FromRow(row Row, dest any) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode row: %w", err)
	}
	return nil
}

func columnFor(field reflect.StructField) (name string, omitEmpty, skip bool) {
	if tag, ok := field.Tag.Lookup("db"); ok {
		if tag == "-" {
			return "", false, true
		}
		parts := strings.Split(tag, ",")
		for _, opt := range parts[1:] {
			if opt == "omitempty" {
				omitEmpty = true
			}
		}
		if parts[0] != "" {
			return parts[0], omitEmpty, false
		}
	}
	if jsonTag := field.Tag.Get("json"); jsonTag != "" && jsonTag != "-" {
		if idx := strings.Index(jsonTag, ","); idx != -1 {
			jsonTag = jsonTag[:idx]
		}
		if jsonTag != "" {
			return jsonTag, omitEmpty, false
		}
	}
	return strcase.ToSnake(field.Name), omitEmpty, false
}

func columnValue(fv reflect.Value) any {
	switch v := fv.Interface().(type) {
	case Timestamp:
		return v.String()
	case time.Time:
		return NewTimestamp(v).String()
	case ID:
		return string(v)
	}
	if fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			return nil
		}
		return columnValue(fv.Elem())
	}
	return fv.Interface()
}

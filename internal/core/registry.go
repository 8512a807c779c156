package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Geometry names the columns holding a record's point location.
type Geometry struct {
	XColumn string `validate:"required_with=YColumn"`
	YColumn string `validate:"required_with=XColumn"`
}

// Enabled reports whether the dataset stores positions.
func (g Geometry) Enabled() bool { return g.XColumn != "" && g.YColumn != "" }

// DatasetDefinition describes one reconcilable dataset.
type DatasetDefinition struct {
	Key             string           `validate:"required,lowercase"`
	Label           string           `validate:"required"`
	Table           string           `validate:"required"`
	IdentifierField string           `validate:"required"`
	EditableFields  EditableFieldSet `validate:"required,min=1,unique,dive,required"`
	DateFields      []string         `validate:"omitempty,unique,dive,required"`
	FieldSpecs      []FieldSpec      `validate:"required,min=1,dive"`
	Geometry        Geometry
}

// Spec returns the field spec for name, matched case-insensitively.
func (d DatasetDefinition) Spec(name string) (FieldSpec, bool) {
	for _, spec := range d.FieldSpecs {
		if strings.EqualFold(spec.Name, name) {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// Column returns the database column for a field name.
// It checks the FieldSpecs for a DBColumn mapping, falling back to snake_case conversion.
func (d DatasetDefinition) Column(name string) string {
	if spec, ok := d.Spec(name); ok && spec.DBColumn != "" {
		return spec.DBColumn
	}
	return toDBColumnName(name)
}

// FieldNames returns every registered field name in spec order.
func (d DatasetDefinition) FieldNames() []string {
	names := make([]string, len(d.FieldSpecs))
	for i, spec := range d.FieldSpecs {
		names[i] = spec.Name
	}
	return names
}

// IsDateField reports whether name is rendered as a calendar date on export.
func (d DatasetDefinition) IsDateField(name string) bool {
	for _, f := range d.DateFields {
		if f == name {
			return true
		}
	}
	return false
}

// TypeOf returns the field type for name, defaulting to text.
func (d DatasetDefinition) TypeOf(name string) FieldType {
	if spec, ok := d.Spec(name); ok {
		return spec.Type
	}
	return FieldText
}

// IDKey returns the matching key of an identifier value of this dataset.
func (d DatasetDefinition) IDKey(id Value) string {
	return id.Key(d.TypeOf(d.IdentifierField))
}

// toDBColumnName converts a field name to a database column name.
// "Room Name" -> "room_name"
// "CreationDate" -> "creationdate"
func toDBColumnName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

var (
	registry   = make(map[string]DatasetDefinition)
	registryMu sync.RWMutex
	validate   = validator.New()
)

// ValidateDefinition checks a definition for missing fields and for
// identifier, editable and date fields that have no FieldSpec.
func ValidateDefinition(def DatasetDefinition) error {
	if err := validate.Struct(def); err != nil {
		return fmt.Errorf("dataset %q: %w", def.Key, err)
	}

	idSpec, ok := def.Spec(def.IdentifierField)
	if !ok {
		return fmt.Errorf("dataset %q: identifier field %q has no field spec", def.Key, def.IdentifierField)
	}
	if idSpec.Type == FieldDate {
		return fmt.Errorf("dataset %q: identifier field %q cannot be a date", def.Key, def.IdentifierField)
	}
	for _, f := range def.EditableFields {
		if f == def.IdentifierField {
			return fmt.Errorf("dataset %q: identifier field %q cannot be editable", def.Key, f)
		}
		spec, ok := def.Spec(f)
		if !ok {
			return fmt.Errorf("dataset %q: editable field %q has no field spec", def.Key, f)
		}
		// Exports carry dates at day precision, so a re-upload could never
		// match a stored timestamp.
		if spec.Type == FieldDate || def.IsDateField(spec.Name) {
			return fmt.Errorf("dataset %q: date field %q cannot be editable", def.Key, f)
		}
	}
	for _, f := range def.DateFields {
		if _, ok := def.Spec(f); !ok {
			return fmt.Errorf("dataset %q: date field %q has no field spec", def.Key, f)
		}
	}

	seen := make(map[string]bool, len(def.FieldSpecs))
	for _, spec := range def.FieldSpecs {
		k := strings.ToLower(spec.Name)
		if seen[k] {
			return fmt.Errorf("dataset %q: duplicate field spec %q", def.Key, spec.Name)
		}
		seen[k] = true
	}
	return nil
}

// Register adds a dataset definition to the registry.
// Panics if the definition is invalid or the key is already registered.
func Register(def DatasetDefinition) {
	if err := ValidateDefinition(def); err != nil {
		panic(err.Error())
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Key]; exists {
		panic(fmt.Sprintf("dataset already registered: %s", def.Key))
	}
	registry[def.Key] = def
}

// Get returns a dataset definition by key.
// Returns false if not found.
func Get(key string) (DatasetDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// Lookup is Get with an error wrapping ErrUnknownDataset.
func Lookup(key string) (DatasetDefinition, error) {
	def, ok := Get(key)
	if !ok {
		return DatasetDefinition{}, fmt.Errorf("%w: %s", ErrUnknownDataset, key)
	}
	return def, nil
}

// All returns all registered dataset definitions sorted by key.
func All() []DatasetDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasetDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// DatasetCount returns the number of registered datasets.
func DatasetCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered datasets.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]DatasetDefinition)
}

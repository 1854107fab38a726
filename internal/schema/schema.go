package schema

import (
	"fmt"
	"reflect"
	"strings"
)

type Type string

const (
	TypeObject  Type = "object"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeArray   Type = "array"
	TypeBoolean Type = "boolean"
	TypeNull    Type = "null"
)

// Node is one level of a derived payload schema. Which of the optional
// fields are set depends on Type.
type Node struct {
	Type        Type             `json:"type"`
	Description string           `json:"description,omitempty"`
	Required    []string         `json:"required,omitempty"`
	Properties  map[string]*Node `json:"properties,omitempty"`
	Enum        []string         `json:"enum,omitempty"`
	Items       *Node            `json:"items,omitempty"`
}

func Null(description string) *Node {
	return &Node{Type: TypeNull, Description: description}
}

// Char is a single character. It derives to a string node rather than an
// integer one.
type Char rune

// Enum is implemented by named types that only take a fixed set of values.
type Enum interface {
	EnumValues() []string
}

// Describer attaches a description to every node derived from the type.
type Describer interface {
	SchemaDescription() string
}

// Resolver returns the allowed values for the string field at path, or
// nothing when the field is free text.
type Resolver func(path string) []string

type UnsupportedKindError struct {
	Type reflect.Type
	Path string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("%s has unsupported kind %s (path %q)", e.Type, e.Type.Kind(), e.Path)
}

type RecursiveTypeError struct {
	Type reflect.Type
	Path string
}

func (e *RecursiveTypeError) Error() string {
	return fmt.Sprintf("%s refers to itself (path %q)", e.Type, e.Path)
}

var (
	charType      = reflect.TypeOf(Char(0))
	enumType      = reflect.TypeOf((*Enum)(nil)).Elem()
	describerType = reflect.TypeOf((*Describer)(nil)).Elem()
)

// For derives the schema of T starting at its Go type name.
func For[T any](resolver Resolver) (*Node, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return Derive(t, t.String(), resolver)
}

// Derive builds the schema for t. The resolver is consulted once per string
// field with the path of that field; nested list elements use "[path]".
func Derive(t reflect.Type, path string, resolver Resolver) (*Node, error) {
	if resolver == nil {
		resolver = func(string) []string { return nil }
	}
	d := &deriver{resolver: resolver, active: map[reflect.Type]bool{}}
	return d.derive(t, path, "")
}

type deriver struct {
	resolver Resolver
	// struct types currently being expanded; a repeat means the type is
	// self-referential and has no finite schema.
	active map[reflect.Type]bool
}

func (d *deriver) derive(t reflect.Type, path, description string) (*Node, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if description == "" {
		description = typeDescription(t)
	}

	if t == charType {
		return &Node{Type: TypeString, Description: description}, nil
	}
	if e, ok := implementation(t, enumType).(Enum); ok {
		values := e.EnumValues()
		return &Node{Type: TypeString, Description: description, Enum: append([]string(nil), values...)}, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return &Node{Type: TypeBoolean, Description: description}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return &Node{Type: TypeInteger, Description: description}, nil
	case reflect.Float32, reflect.Float64:
		return &Node{Type: TypeNumber, Description: description}, nil
	case reflect.String:
		node := &Node{Type: TypeString, Description: description}
		if limited := d.resolver(path); len(limited) > 0 {
			node.Enum = append([]string(nil), limited...)
		}
		return node, nil
	case reflect.Slice, reflect.Array:
		items, err := d.derive(t.Elem(), "["+path+"]", "")
		if err != nil {
			return nil, err
		}
		return &Node{Type: TypeArray, Description: description, Items: items}, nil
	case reflect.Map:
		return &Node{Type: TypeObject, Description: description, Properties: map[string]*Node{}}, nil
	case reflect.Struct:
		if d.active[t] {
			return nil, &RecursiveTypeError{Type: t, Path: path}
		}
		d.active[t] = true
		defer delete(d.active, t)
		node := &Node{Type: TypeObject, Description: description, Properties: map[string]*Node{}}
		if err := d.addFields(node, t); err != nil {
			return nil, err
		}
		return node, nil
	default:
		return nil, &UnsupportedKindError{Type: t, Path: path}
	}
}

func (d *deriver) addFields(node *Node, t reflect.Type) error {
	for i := range t.NumField() {
		field := t.Field(i)
		name, optional, skip := fieldName(field)
		if skip {
			continue
		}
		// Untagged embedded structs are flattened, as encoding/json does.
		if field.Anonymous && name == "" {
			embedded := field.Type
			if embedded.Kind() == reflect.Pointer {
				embedded = embedded.Elem()
			}
			if embedded.Kind() == reflect.Struct {
				if err := d.addFields(node, embedded); err != nil {
					return err
				}
				continue
			}
			if !field.IsExported() {
				continue
			}
			name = field.Name
		}
		if !field.IsExported() {
			continue
		}
		prop, err := d.derive(field.Type, name, field.Tag.Get("desc"))
		if err != nil {
			return err
		}
		node.Properties[name] = prop
		if !optional {
			node.Required = append(node.Required, name)
		}
	}
	return nil
}

func fieldName(field reflect.StructField) (name string, optional, skip bool) {
	tag, ok := field.Tag.Lookup("json")
	if tag == "-" {
		return "", false, true
	}
	if !ok || tag == "" {
		if field.Anonymous {
			return "", false, false
		}
		return field.Name, false, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" && !field.Anonymous {
		name = field.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			optional = true
		}
	}
	return name, optional, false
}

func typeDescription(t reflect.Type) string {
	if d, ok := implementation(t, describerType).(Describer); ok {
		return d.SchemaDescription()
	}
	return ""
}

// implementation returns a zero value of t (or *t) satisfying iface, or nil.
func implementation(t, iface reflect.Type) any {
	if t.Kind() == reflect.Interface {
		return nil
	}
	if t.Implements(iface) {
		return reflect.Zero(t).Interface()
	}
	if reflect.PointerTo(t).Implements(iface) {
		return reflect.New(t).Interface()
	}
	return nil
}

// Package querystring encodes tagged structs into URL query values.
//
// Fields are read from the `url` struct tag. A tag of "-" or no tag skips the
// field and ",omitempty" drops zero values. Anonymous struct fields are
// flattened into the parent, so shared parameters such as credentials can be
// embedded in every request type.
package querystring

import (
	"encoding"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

var textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()

// Values encodes v, a struct or a pointer to one.
func Values(v interface{}) (url.Values, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("querystring: nil %v", rv.Type())
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("querystring: expected struct, got %v", rv.Kind())
	}

	values := url.Values{}
	if err := encodeStruct(values, rv); err != nil {
		return nil, err
	}
	return values, nil
}

func encodeStruct(values url.Values, rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		field := rv.Field(i)

		tag, hasTag := sf.Tag.Lookup("url")
		if tag == "-" {
			continue
		}
		if sf.Anonymous && !hasTag {
			if field.Kind() == reflect.Ptr {
				if field.IsNil() {
					continue
				}
				field = field.Elem()
			}
			if field.Kind() == reflect.Struct {
				if err := encodeStruct(values, field); err != nil {
					return err
				}
			}
			continue
		}
		if !hasTag || !sf.IsExported() {
			continue
		}

		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = sf.Name
		}
		if opts == "omitempty" && field.IsZero() {
			continue
		}
		if err := encodeValue(values, name, field); err != nil {
			return err
		}
	}
	return nil
}

func encodeValue(values url.Values, name string, v reflect.Value) error {
	if v.Type().Implements(textMarshalerType) {
		if v.Kind() == reflect.Ptr && v.IsNil() {
			return nil
		}
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return fmt.Errorf("querystring: field %s: %w", name, err)
		}
		values.Add(name, string(text))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		values.Add(name, v.String())
	case reflect.Bool:
		values.Add(name, strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		values.Add(name, strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		values.Add(name, strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		values.Add(name, strconv.FormatFloat(v.Float(), 'f', -1, 64))
	case reflect.Ptr:
		if !v.IsNil() {
			return encodeValue(values, name, v.Elem())
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := encodeValue(values, name, v.Index(i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("querystring: unsupported type %v for field %s", v.Kind(), name)
	}
	return nil
}

package output

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
)

// Field is one flattened key/value pair.
type Field struct {
	Key   string
	Value string
}

// Fields is an ordered list of flattened values.
type Fields []Field

// Map returns the fields keyed by name.
func (fs Fields) Map() map[string]string {
	m := make(map[string]string, len(fs))
	for _, f := range fs {
		m[f.Key] = f.Value
	}
	return m
}

// Flatten walks a struct (or pointer to one) in field order and returns its
// leaf values under dotted keys built from tag. Fields without the tag use
// their Go name; fields tagged "-" are skipped. Slices are joined with
// commas and other leaves are printed with fmt.
func Flatten(v any, tag string) Fields {
	var out Fields
	flatten(reflect.ValueOf(v), tag, "", &out)
	return out
}

func flatten(v reflect.Value, tag, prefix string, out *Fields) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			*out = append(*out, Field{Key: prefix, Value: ""})
			return
		}
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		*out = append(*out, Field{Key: prefix, Value: leaf(v)})
		return
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tv, ok := sf.Tag.Lookup(tag); ok {
			tv, _, _ = strings.Cut(tv, ",")
			if tv == "-" {
				continue
			}
			if tv != "" {
				name = tv
			}
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		flatten(v.Field(i), tag, key, out)
	}
}

func leaf(v reflect.Value) string {
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(v.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v.Interface())
}

// TableFormatter writes a KEY/VALUE table. Structs are flattened by Tag.
type TableFormatter struct {
	Tag       string
	NoHeaders bool
}

// Format implements Formatter.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	fields, ok := data.(Fields)
	if !ok {
		fields = Flatten(data, f.Tag)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !f.NoHeaders {
		fmt.Fprintln(tw, "KEY\tVALUE")
	}
	for _, field := range fields {
		fmt.Fprintf(tw, "%s\t%s\n", field.Key, field.Value)
	}
	return tw.Flush()
}

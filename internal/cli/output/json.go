package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter writes indented JSON. Fields are written as an object.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	if fields, ok := data.(Fields); ok {
		data = fields.Map()
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"
)

type inner struct {
	Interval time.Duration `koanf:"interval"`
	Seeds    []string      `koanf:"seeds"`
}

type sample struct {
	Name     string `koanf:"name" json:"name"`
	Count    int    `koanf:"count" json:"count"`
	Nested   inner  `koanf:"nested" json:"-"`
	Skipped  string `koanf:"-" json:"-"`
	Untagged bool
	hidden   string
}

func newSample() sample {
	return sample{
		Name:     "node-a",
		Count:    3,
		Nested:   inner{Interval: 15 * time.Minute, Seeds: []string{"10.0.0.1:7946", "10.0.0.2:7946"}},
		Skipped:  "x",
		Untagged: true,
		hidden:   "h",
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFlatten(t *testing.T) {
	s := newSample()
	got := Flatten(&s, "koanf")
	want := Fields{
		{"name", "node-a"},
		{"count", "3"},
		{"nested.interval", "15m0s"},
		{"nested.seeds", "10.0.0.1:7946,10.0.0.2:7946"},
		{"Untagged", "true"},
	}
	if len(got) != len(want) {
		t.Fatalf("Flatten() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatTable, "koanf").Format(&buf, newSample()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6:\n%s", len(lines), buf.String())
	}
	if fields := strings.Fields(lines[0]); len(fields) != 2 || fields[0] != "KEY" || fields[1] != "VALUE" {
		t.Errorf("header = %q", lines[0])
	}
	if fields := strings.Fields(lines[3]); fields[0] != "nested.interval" || fields[1] != "15m0s" {
		t.Errorf("row = %q", lines[3])
	}

	buf.Reset()
	tf := &TableFormatter{Tag: "koanf", NoHeaders: true}
	if err := tf.Format(&buf, Fields{{"a", "1"}}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "a  1" {
		t.Errorf("no-header table = %q", got)
	}
}

func TestJSONFormatter(t *testing.T) {
	t.Run("struct uses json tags", func(t *testing.T) {
		var buf bytes.Buffer
		if err := NewFormatter(FormatJSON, "").Format(&buf, newSample()); err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["name"] != "node-a" || got["count"] != float64(3) {
			t.Errorf("got %v", got)
		}
		if !strings.Contains(buf.String(), "\n  ") {
			t.Error("JSON output should be indented")
		}
	})

	t.Run("fields become an object", func(t *testing.T) {
		var buf bytes.Buffer
		if err := (&JSONFormatter{}).Format(&buf, Flatten(newSample(), "koanf")); err != nil {
			t.Fatalf("Format() error = %v", err)
		}
		var got map[string]string
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got["nested.seeds"] != "10.0.0.1:7946,10.0.0.2:7946" {
			t.Errorf("nested.seeds = %q", got["nested.seeds"])
		}
	})
}

func TestYAMLFormatter(t *testing.T) {
	tests := []struct {
		name string
		data any
		key  string
		want string
	}{
		{"struct", newSample(), "name", "node-a"},
		{"fields", Flatten(newSample(), "koanf"), "nested.interval", "15m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewFormatter(FormatYAML, "").Format(&buf, tt.data); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			var got map[string]any
			if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
			}
			if got[tt.key] != tt.want {
				t.Errorf("%s = %v, want %s", tt.key, got[tt.key], tt.want)
			}
		})
	}
}

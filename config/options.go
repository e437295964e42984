package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

type rawValue struct {
	values   []string
	explicit bool
}

// RawOptions holds parsed option values by name. Values set by the operator
// (file or command line) are explicit; values filled in by interaction rules
// are soft and never override an explicit setting.
type RawOptions struct {
	m map[string]*rawValue
}

// NewRawOptions returns an empty option set.
func NewRawOptions() *RawOptions {
	return &RawOptions{m: make(map[string]*rawValue)}
}

// Set records an operator-supplied value, appending when the option repeats.
func (o *RawOptions) Set(name string, values ...string) {
	name = normalize(name)
	rv := o.m[name]
	if rv == nil || !rv.explicit {
		rv = &rawValue{explicit: true}
		o.m[name] = rv
	}
	rv.values = append(rv.values, values...)
}

// Override replaces the option's values outright with a single explicit one.
func (o *RawOptions) Override(name, value string) {
	o.m[normalize(name)] = &rawValue{values: []string{value}, explicit: true}
}

// Clone returns an independent copy of the option set.
func (o *RawOptions) Clone() *RawOptions {
	out := NewRawOptions()
	for name, rv := range o.m {
		out.m[name] = &rawValue{
			values:   append([]string(nil), rv.values...),
			explicit: rv.explicit,
		}
	}
	return out
}

// SoftSet assigns value only when the option has no value at all, mirroring
// the soft-set semantics of the interaction rules. Reports whether the value
// was applied.
func (o *RawOptions) SoftSet(name, value string) bool {
	name = normalize(name)
	if _, ok := o.m[name]; ok {
		return false
	}
	o.m[name] = &rawValue{values: []string{value}}
	return true
}

// Has reports whether the option carries any value, explicit or soft.
func (o *RawOptions) Has(name string) bool {
	_, ok := o.m[normalize(name)]
	return ok
}

// Explicit reports whether the operator set the option themselves.
func (o *RawOptions) Explicit(name string) bool {
	rv, ok := o.m[normalize(name)]
	return ok && rv.explicit
}

// Get returns the first value of the option, or def when unset.
func (o *RawOptions) Get(name, def string) string {
	rv, ok := o.m[normalize(name)]
	if !ok || len(rv.values) == 0 {
		return def
	}
	return rv.values[0]
}

// Multi returns every value of a repeatable option.
func (o *RawOptions) Multi(name string) []string {
	rv, ok := o.m[normalize(name)]
	if !ok {
		return nil
	}
	out := make([]string, len(rv.values))
	copy(out, rv.values)
	return out
}

// Bool interprets the option as a boolean flag. A bare flag counts as true;
// "0" and "false" count as false.
func (o *RawOptions) Bool(name string, def bool) bool {
	rv, ok := o.m[normalize(name)]
	if !ok || len(rv.values) == 0 {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(rv.values[0])) {
	case "", "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return def
	}
}

// Int interprets the option as an integer, returning def when unset.
func (o *RawOptions) Int(name string, def int64) (int64, error) {
	rv, ok := o.m[normalize(name)]
	if !ok || len(rv.values) == 0 {
		return def, nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(rv.values[0]), 10, 64)
	if err != nil {
		return 0, &Error{Option: name, Value: rv.values[0], Reason: "not a valid integer"}
	}
	return v, nil
}

// Names returns the option names present, sorted, for deterministic logging.
func (o *RawOptions) Names() []string {
	names := make([]string, 0, len(o.m))
	for name := range o.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(name, "-"), "-"))
}

// ParseArgs folds command-line arguments of the form -name=value (or bare
// -name for boolean flags) into the option set as explicit values.
func ParseArgs(o *RawOptions, args []string) error {
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") {
			return &Error{Option: arg, Value: arg, Reason: "options must start with '-'"}
		}
		name, value, found := strings.Cut(arg, "=")
		if !found {
			value = ""
		}
		name = normalize(name)
		if name == "" {
			return &Error{Option: arg, Value: arg, Reason: "empty option name"}
		}
		o.Set(name, value)
	}
	return nil
}

// LoadFile merges options from a TOML file. Scalar values become single
// values, arrays become repeated values. A missing file is not an error; the
// daemon runs fine on defaults and command-line options alone.
func LoadFile(o *RawOptions, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	var fileOpts map[string]interface{}
	if _, err := toml.DecodeFile(path, &fileOpts); err != nil {
		return &Error{Option: "conf", Value: path, Reason: err.Error()}
	}
	names := make([]string, 0, len(fileOpts))
	for name := range fileOpts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		// Command-line options win over the file.
		if o.Explicit(name) {
			continue
		}
		values, err := tomlValues(fileOpts[name])
		if err != nil {
			return &Error{Option: name, Value: fmt.Sprint(fileOpts[name]), Reason: err.Error()}
		}
		o.Set(name, values...)
	}
	return nil
}

// WriteDefaultConfig creates a commented starter configuration file on first
// run. An existing file is left alone.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	const defaults = `# nyxd configuration. Values here lose to command-line options.

# testnet = true
# listen = true
# maxconnections = 200
# addnode = ["node1.example:24055"]

# rpcauthtoken = ""

# staking = true
# reservebalance = "0"

# masternode = false
# masternodeprivkey = ""
`
	return os.WriteFile(path, []byte(defaults), 0o600)
}

func tomlValues(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case bool:
		if t {
			return []string{"1"}, nil
		}
		return []string{"0"}, nil
	case int64:
		return []string{strconv.FormatInt(t, 10)}, nil
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			vals, err := tomlValues(item)
			if err != nil {
				return nil, err
			}
			out = append(out, vals...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

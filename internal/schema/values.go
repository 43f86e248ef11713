package schema

import (
	"time"

	"github.com/spf13/pflag"
)

// Values is the parsed configuration shared read-only by the core and every
// action. Accessors return the zero value for unknown names.
type Values struct {
	fs     *pflag.FlagSet
	owners map[string]string
	kinds  map[string]Kind
	order  []string
}

// String returns a string option.
func (v *Values) String(name string) string {
	s, _ := v.fs.GetString(name) //nolint:errcheck // zero value on unknown names
	return s
}

// Int returns an integer option.
func (v *Values) Int(name string) int {
	n, _ := v.fs.GetInt(name) //nolint:errcheck // zero value on unknown names
	return n
}

// Bool returns a boolean option.
func (v *Values) Bool(name string) bool {
	b, _ := v.fs.GetBool(name) //nolint:errcheck // zero value on unknown names
	return b
}

// Float returns a floating point option.
func (v *Values) Float(name string) float64 {
	f, _ := v.fs.GetFloat64(name) //nolint:errcheck // zero value on unknown names
	return f
}

// Duration returns a duration option.
func (v *Values) Duration(name string) time.Duration {
	d, _ := v.fs.GetDuration(name) //nolint:errcheck // zero value on unknown names
	return d
}

// Has reports whether name is a registered option.
func (v *Values) Has(name string) bool {
	_, ok := v.owners[name]
	return ok
}

// IsSet reports whether the option was given on the command line or through
// the environment.
func (v *Values) IsSet(name string) bool {
	return v.Has(name) && v.fs.Changed(name)
}

// Raw returns the option value in its string form.
func (v *Values) Raw(name string) string {
	f := v.fs.Lookup(name)
	if f == nil {
		return ""
	}
	return f.Value.String()
}

// KindOf returns the value type of an option.
func (v *Values) KindOf(name string) Kind {
	return v.kinds[name]
}

// Owner returns the owner of an option.
func (v *Values) Owner(name string) string {
	return v.owners[name]
}

// Owned lists the options registered by owner, in registration order.
func (v *Values) Owned(owner string) []string {
	var names []string
	for _, name := range v.order {
		if v.owners[name] == owner {
			names = append(names, name)
		}
	}
	return names
}

// Names lists every option in registration order.
func (v *Values) Names() []string {
	return append([]string(nil), v.order...)
}

// Package schema composes the command-line surface from the base watcher
// options and the options contributed by plugins.
//
// Every option has exactly one owner. Plugins receive a Scope bound to their
// name and register options through it; a name that is already taken is a
// startup error naming both owners.
package schema

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/dropwatch/dropwatch/internal/errors"
)

// CoreOwner owns the base and ambient options.
const CoreOwner = "core"

// DefaultPattern matches every file name.
const DefaultPattern = `.*$`

// Base option names.
const (
	OptDirectory = "directory"
	OptPattern   = "pattern"
)

// reserved names cannot be registered by anyone.
var reserved = map[string]struct{}{
	"help":    {},
	"version": {},
}

// Kind is the value type of an option.
type Kind int

// Supported option kinds.
const (
	KindString Kind = iota
	KindInt
	KindBool
	KindFloat
	KindDuration
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	case KindDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// Builder accumulates options before parsing.
type Builder struct {
	fs        *pflag.FlagSet
	owners    map[string]string
	kinds     map[string]Kind
	envKeys   map[string]string
	required  map[string]struct{}
	order     []string
	lookupEnv func(string) (string, bool)
}

// New creates a builder holding the base options --directory and --pattern.
func New(name string) *Builder {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false

	b := &Builder{
		fs:        fs,
		owners:    make(map[string]string),
		kinds:     make(map[string]Kind),
		envKeys:   make(map[string]string),
		required:  make(map[string]struct{}),
		lookupEnv: os.LookupEnv,
	}

	// A fresh builder cannot collide.
	core := b.Scope(CoreOwner)
	_ = core.String(OptDirectory, "", "Directory to watch for new files")
	_ = core.Required(OptDirectory)
	_ = core.String(OptPattern, DefaultPattern, "Regex matched against the start of each new file name")

	return b
}

// FlagSet exposes the underlying flag set so a command can adopt it.
func (b *Builder) FlagSet() *pflag.FlagSet {
	return b.fs
}

// SetEnvLookup replaces the environment lookup used by Resolve.
func (b *Builder) SetEnvLookup(fn func(string) (string, bool)) {
	b.lookupEnv = fn
}

// Scope returns a registration handle bound to owner.
func (b *Builder) Scope(owner string) *Scope {
	return &Scope{b: b, owner: owner}
}

// Owner returns the owner of an option, or "" if it is not registered.
func (b *Builder) Owner(name string) string {
	return b.owners[name]
}

// claim reserves name for owner.
func (b *Builder) claim(owner, name string, kind Kind) error {
	if name == "" || strings.HasPrefix(name, "-") {
		return errors.Validationf("%s: invalid option name %q", owner, name)
	}
	if _, ok := reserved[name]; ok {
		return errors.OptionCollisionf("%s: option --%s is reserved", owner, name)
	}
	if prev, ok := b.owners[name]; ok {
		return errors.OptionCollisionf("option --%s contributed by %s is already registered by %s", name, owner, prev)
	}

	b.owners[name] = owner
	b.kinds[name] = kind
	b.envKeys[name] = scopedEnvKey(owner, name)
	b.order = append(b.order, name)
	return nil
}

// Parse parses args and resolves environment fallbacks.
func (b *Builder) Parse(args []string) (*Values, error) {
	if err := b.fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "parse arguments")
	}
	return b.Resolve()
}

// Resolve applies environment fallbacks to options that were not set on the
// command line and checks required options. Call it after the flag set has
// been parsed, either by Parse or by a command that adopted FlagSet.
func (b *Builder) Resolve() (*Values, error) {
	for _, name := range b.order {
		if b.fs.Changed(name) {
			continue
		}
		key := b.envKeys[name]
		value, ok := b.lookupEnv(key)
		if !ok || value == "" {
			continue
		}
		if err := b.fs.Set(name, value); err != nil {
			return nil, errors.Wrapf(err, errors.CodeValidation, "invalid value for %s", key)
		}
	}

	var missing []string
	for _, name := range b.order {
		if _, req := b.required[name]; req && !b.fs.Changed(name) {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.MissingOptionf("required option(s) not set: %s", strings.Join(missing, ", "))
	}

	return &Values{
		fs:     b.fs,
		owners: b.owners,
		kinds:  b.kinds,
		order:  append([]string(nil), b.order...),
	}, nil
}

// EnvKey derives the environment variable consulted for a core option:
// log-level becomes LOG_LEVEL.
func EnvKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// EnvKeyOf returns the environment variable consulted for a registered
// option, or "" if the option is unknown.
func (b *Builder) EnvKeyOf(name string) string {
	return b.envKeys[name]
}

// scopedEnvKey keeps contributed options out of the general environment.
// An option already prefixed with its owner's name maps like a core option
// (kafka-endpoint owned by kafka becomes KAFKA_ENDPOINT); any other name is
// prefixed with the owner (path owned by archive becomes ARCHIVE_PATH).
func scopedEnvKey(owner, name string) string {
	if owner == CoreOwner || name == owner || strings.HasPrefix(name, owner+"-") {
		return EnvKey(name)
	}
	return EnvKey(owner + "-" + name)
}

// Scope is the mutable schema handed to one contributor.
type Scope struct {
	b     *Builder
	owner string
}

// Owner returns the name the scope registers options under.
func (s *Scope) Owner() string {
	return s.owner
}

// String registers a string option.
func (s *Scope) String(name, value, usage string) error {
	if err := s.b.claim(s.owner, name, KindString); err != nil {
		return err
	}
	s.b.fs.String(name, value, usage)
	return nil
}

// Int registers an integer option.
func (s *Scope) Int(name string, value int, usage string) error {
	if err := s.b.claim(s.owner, name, KindInt); err != nil {
		return err
	}
	s.b.fs.Int(name, value, usage)
	return nil
}

// Bool registers a boolean option.
func (s *Scope) Bool(name string, value bool, usage string) error {
	if err := s.b.claim(s.owner, name, KindBool); err != nil {
		return err
	}
	s.b.fs.Bool(name, value, usage)
	return nil
}

// Float registers a floating point option.
func (s *Scope) Float(name string, value float64, usage string) error {
	if err := s.b.claim(s.owner, name, KindFloat); err != nil {
		return err
	}
	s.b.fs.Float64(name, value, usage)
	return nil
}

// Duration registers a duration option.
func (s *Scope) Duration(name string, value time.Duration, usage string) error {
	if err := s.b.claim(s.owner, name, KindDuration); err != nil {
		return err
	}
	s.b.fs.Duration(name, value, usage)
	return nil
}

// Required marks an option registered by this scope as mandatory.
func (s *Scope) Required(name string) error {
	if s.b.owners[name] != s.owner {
		return errors.Validationf("%s: cannot require option --%s it does not own", s.owner, name)
	}
	s.b.required[name] = struct{}{}
	f := s.b.fs.Lookup(name)
	if !strings.HasSuffix(f.Usage, "(required)") {
		f.Usage += " (required)"
	}
	return nil
}

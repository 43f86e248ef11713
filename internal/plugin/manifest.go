package plugin

import (
	"os"

	"github.com/tidwall/gjson"

	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/validation"
)

// ManifestExt is the file extension of plugin manifests.
const ManifestExt = ".json"

// Manifest enables a compiled-in plugin:
//
//	{"name": "kafka", "builtin": "kafka"}
//
// Name defaults to Builtin.
type Manifest struct {
	Name    string `json:"name" validate:"required,plugin_name"`
	Builtin string `json:"builtin" validate:"required,plugin_name"`
	Path    string `json:"-"`
}

var manifestValidator = validation.New()

// ReadManifest reads and validates the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodePluginLoad, "read manifest %s", path)
	}
	return ParseManifest(path, data)
}

// ParseManifest decodes manifest bytes. path is only used in messages.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.PluginLoadf("manifest %s: malformed JSON", path)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, errors.PluginLoadf("manifest %s: expected a JSON object", path)
	}

	for _, key := range []string{"name", "builtin"} {
		if v := doc.Get(key); v.Exists() && v.Type != gjson.String {
			return nil, errors.PluginLoadf("manifest %s: %s must be a string", path, key)
		}
	}

	m := &Manifest{
		Name:    doc.Get("name").String(),
		Builtin: doc.Get("builtin").String(),
		Path:    path,
	}
	if m.Name == "" {
		m.Name = m.Builtin
	}

	if err := manifestValidator.Validate(m); err != nil {
		return nil, errors.Wrapf(err, errors.CodePluginLoad, "manifest %s", path)
	}
	return m, nil
}

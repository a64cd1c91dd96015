package locator

import (
	"net/url"
	"strings"
)

// SceneParameters is the key/value set carried by a QR-code or share
// deep-link "scene" string.
type SceneParameters map[string]string

// ParseScene decodes the whole scene once, splits it into key=value pairs and
// decodes each value. Pairs without a key, without a value or with an
// undecodable value are skipped.
func ParseScene(scene string) SceneParameters {
	params := SceneParameters{}
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return params
	}

	decoded, err := url.PathUnescape(scene)
	if err != nil {
		decoded = scene
	}

	for _, pair := range strings.Split(decoded, "&") {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" || value == "" {
			continue
		}
		v, err := url.PathUnescape(value)
		if err != nil {
			continue
		}
		params[key] = v
	}

	return params
}

func (p SceneParameters) Get(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

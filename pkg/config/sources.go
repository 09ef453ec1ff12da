package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyp3rd/ewrap"
	"gopkg.in/yaml.v3"

	"github.com/hyp3rd/onecollector/internal/constants"
)

// FileLoader reads a YAML layer from Path, resolved against FS when set and the
// local filesystem otherwise. A missing file yields ErrSourceMissing.
type FileLoader struct {
	Path string
	FS   fs.FS
}

// Load implements Loader.
func (fl FileLoader) Load(_ context.Context) (map[string]any, error) {
	path := filepath.Clean(fl.path())

	var (
		data []byte
		err  error
	)

	if fl.FS != nil {
		data, err = fs.ReadFile(fl.FS, path)
	} else {
		data, err = os.ReadFile(path)
	}

	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSourceMissing
	}

	if err != nil {
		return nil, ewrap.Wrapf(err, "read config file %q", path)
	}

	var layer map[string]any

	err = yaml.Unmarshal(data, &layer)
	if err != nil {
		return nil, ewrap.Wrapf(err, "unmarshal yaml %q", path)
	}

	return layer, nil
}

func (fl FileLoader) path() string {
	if fl.Path == "" {
		return constants.DefaultConfigFile
	}

	return fl.Path
}

// EnvLoader reads overrides from variables named Prefix + SECTION__FIELD, for example
// ONECOLLECTOR_TRANSPORT__MAX_ITEMS_PER_PAYLOAD=-1. Map settings take "k=v,k=v".
type EnvLoader struct {
	Prefix string
}

// mapSettings are decoded into map[string]string fields.
var mapSettings = map[string]bool{
	"service.attributes":     true,
	"self_telemetry.headers": true,
}

// Load implements Loader.
func (el EnvLoader) Load(ctx context.Context) (map[string]any, error) {
	prefix := el.Prefix
	if prefix == "" {
		prefix = constants.DefaultEnvPrefix
	}

	layer := map[string]any{}

	for _, entry := range os.Environ() {
		err := ctx.Err()
		if err != nil {
			return nil, ewrap.Wrap(err, "read environment overrides")
		}

		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}

		path := settingPath(strings.TrimPrefix(name, prefix))
		if len(path) == 0 {
			continue
		}

		if mapSettings[strings.Join(path, ".")] {
			assign(layer, path, splitPairs(value))

			continue
		}

		assign(layer, path, value)
	}

	if len(layer) == 0 {
		return nil, ErrSourceMissing
	}

	return layer, nil
}

// settingPath turns TRANSPORT__HTTP_COMPRESSION into [transport http_compression].
func settingPath(name string) []string {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")

	var path []string

	for segment := range strings.SplitSeq(name, "__") {
		segment = strings.Trim(segment, "._")
		if segment != "" {
			path = append(path, segment)
		}
	}

	return path
}

// assign stores value at path inside layer, creating intermediate sections.
func assign(layer map[string]any, path []string, value any) {
	if len(path) == 1 {
		layer[path[0]] = value

		return
	}

	section, ok := layer[path[0]].(map[string]any)
	if !ok {
		section = map[string]any{}
		layer[path[0]] = section
	}

	assign(section, path[1:], value)
}

// splitPairs turns "k1=v1,k2=v2" into a map. Entries without "=" or with an empty key are dropped.
func splitPairs(raw string) map[string]any {
	out := map[string]any{}

	for item := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)

		if !ok || key == "" {
			continue
		}

		out[key] = strings.TrimSpace(value)
	}

	return out
}

package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/mitchellh/mapstructure"
)

// ErrSourceMissing is returned by a Loader whose source does not exist.
// Load skips that layer instead of failing.
var ErrSourceMissing = ewrap.New("config source missing")

// Loader produces one layer of raw settings keyed by the yaml field names of Config.
type Loader interface {
	Load(ctx context.Context) (map[string]any, error)
}

// LoaderFunc adapts ordinary functions into Loader.
type LoaderFunc func(ctx context.Context) (map[string]any, error)

// Load implements Loader.
func (lf LoaderFunc) Load(ctx context.Context) (map[string]any, error) {
	return lf(ctx)
}

// nullAsEmpty lists settings where an explicit null must clear the default rather than
// keep it. The decoder then sees "" and Validate reports the field.
var nullAsEmpty = map[string]bool{
	"transport.endpoint": true,
}

// Load layers each loader over DefaultConfig() in order, rebinds the transport client
// factory to the decoded http_client section and validates the result.
func Load(ctx context.Context, loaders ...Loader) (Config, error) {
	cfg := DefaultConfig()

	for _, loader := range loaders {
		if loader == nil {
			continue
		}

		layer, err := loader.Load(ctx)
		if errors.Is(err, ErrSourceMissing) {
			continue
		}

		if err != nil {
			return Config{}, err
		}

		if len(layer) == 0 {
			continue
		}

		err = decodeInto(&cfg, normalizeLayer(layer, ""))
		if err != nil {
			return Config{}, err
		}
	}

	factory, err := NewClientFactory(cfg.HTTPClient)
	if err != nil {
		return Config{}, ewrap.Wrap(err, "build http client factory")
	}

	cfg.Transport.ClientFactory = factory

	err = Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// normalizeLayer copies a raw layer with string keys at every level and explicit nulls
// in nullAsEmpty replaced by "". The caller's map is left untouched.
func normalizeLayer(layer map[string]any, prefix string) map[string]any {
	out := make(map[string]any, len(layer))

	for key, value := range layer {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		out[key] = normalizeValue(value, path)
	}

	return out
}

func normalizeValue(value any, path string) any {
	switch typed := value.(type) {
	case nil:
		if nullAsEmpty[path] {
			return ""
		}

		return nil
	case map[string]any:
		return normalizeLayer(typed, path)
	case map[any]any:
		converted := make(map[string]any, len(typed))
		for k, v := range typed {
			converted[fmt.Sprint(k)] = v
		}

		return normalizeLayer(converted, path)
	case []any:
		items := make([]any, len(typed))
		for i, item := range typed {
			items[i] = normalizeValue(item, path)
		}

		return items
	default:
		return value
	}
}

func decodeInto(target *Config, layer map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToURLHookFunc(),
			stringToEnumHookFunc(),
		),
	})
	if err != nil {
		return ewrap.Wrap(err, "create config decoder")
	}

	err = decoder.Decode(layer)
	if err != nil {
		return ewrap.Wrap(err, "decode config")
	}

	return nil
}

var (
	urlType         = reflect.TypeOf(url.URL{})
	urlPtrType      = reflect.TypeOf(&url.URL{})
	compressionType = reflect.TypeOf(Compression(""))
	protocolType    = reflect.TypeOf(Protocol(""))
)

// stringToURLHookFunc parses endpoint strings. An empty string decodes to an empty
// URL so Validate reports the endpoint instead of silently keeping the default.
func stringToURLHookFunc() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || (to != urlType && to != urlPtrType) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			if to == urlPtrType {
				return &url.URL{}, nil
			}

			return url.URL{}, nil
		}

		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, ewrap.Wrapf(err, "parse url %q", raw)
		}

		if to == urlType {
			return *parsed, nil
		}

		return parsed, nil
	}
}

// stringToEnumHookFunc normalizes compression and protocol names. Unknown values
// pass through untouched and are rejected by Validate with the field name.
func stringToEnumHookFunc() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String {
			return data, nil
		}

		raw, _ := data.(string)

		switch to {
		case compressionType:
			parsed, err := ParseCompression(raw)
			if err != nil {
				return Compression(raw), nil //nolint:nilerr // surfaced by Validate
			}

			return parsed, nil
		case protocolType:
			parsed, err := ParseProtocol(raw)
			if err != nil {
				return Protocol(raw), nil //nolint:nilerr // surfaced by Validate
			}

			return parsed, nil
		default:
			return data, nil
		}
	}
}

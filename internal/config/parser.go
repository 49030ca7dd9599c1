package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// ConfigParser decodes loosely typed configuration into T and validates it
// with `validate` struct tags.
//
// Supported rules: required, min=N, max=N, range=A-B, oneof=a b c, url, port.
type ConfigParser[T any] struct {
	defaults T
}

// NewParser creates a parser without defaults.
func NewParser[T any]() *ConfigParser[T] {
	return &ConfigParser[T]{}
}

// NewParserWithDefaults creates a parser that starts every decode from defaults.
func NewParserWithDefaults[T any](defaults T) *ConfigParser[T] {
	return &ConfigParser[T]{defaults: defaults}
}

// Parse decodes raw JSON over the defaults and validates the result.
func (p *ConfigParser[T]) Parse(raw json.RawMessage) (*T, error) {
	cfg := p.defaults
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := p.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// ParseFromMap decodes a generic map, e.g. a channel's `config` block.
func (p *ConfigParser[T]) ParseFromMap(data map[string]interface{}) (*T, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal map to json: %w", err)
	}
	return p.Parse(raw)
}

// ParseFromManager decodes the subtree at key.
func (p *ConfigParser[T]) ParseFromManager(mgr ConfigManager, key string) (*T, error) {
	cfg := p.defaults
	if err := mgr.GetAs(key, &cfg); err != nil {
		return nil, fmt.Errorf("get config from manager: %w", err)
	}
	if err := p.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func (p *ConfigParser[T]) Validate(cfg *T) error {
	return ValidateStruct(cfg)
}

// ValidateStruct checks any struct pointer against its `validate` tags.
func ValidateStruct(v interface{}) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return fmt.Errorf("validate: nil value")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("validate: expected struct, got %s", rv.Kind())
	}
	return walkStruct(rv, "")
}

func walkStruct(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanInterface() {
			continue
		}
		name := fieldName(t.Field(i), prefix)

		if tag := t.Field(i).Tag.Get("validate"); tag != "" {
			for _, rule := range strings.Split(tag, ",") {
				if err := checkRule(field, name, strings.TrimSpace(rule)); err != nil {
					return err
				}
			}
		}

		if field.Kind() == reflect.Struct {
			if err := walkStruct(field, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func fieldName(f reflect.StructField, prefix string) string {
	name := f.Name
	if tag := strings.Split(f.Tag.Get("json"), ",")[0]; tag != "" && tag != "-" {
		name = tag
	}
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func checkRule(field reflect.Value, name, rule string) error {
	key, arg, _ := strings.Cut(rule, "=")
	switch key {
	case "":
		return nil
	case "required":
		if field.IsZero() {
			return fmt.Errorf("field '%s' is required", name)
		}
	case "min", "max":
		bound, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid %s value for field '%s': %s", key, name, arg)
		}
		if key == "min" {
			return checkBound(field, name, bound, false)
		}
		return checkBound(field, name, bound, true)
	case "range":
		lo, hi, ok := strings.Cut(arg, "-")
		min, err1 := strconv.Atoi(lo)
		max, err2 := strconv.Atoi(hi)
		if !ok || err1 != nil || err2 != nil {
			return fmt.Errorf("invalid range for field '%s': %s", name, arg)
		}
		if err := checkBound(field, name, min, false); err != nil {
			return err
		}
		return checkBound(field, name, max, true)
	case "oneof":
		value := fmt.Sprintf("%v", field.Interface())
		options := strings.Fields(arg)
		for _, option := range options {
			if value == option {
				return nil
			}
		}
		return fmt.Errorf("field '%s' must be one of: %s", name, strings.Join(options, ", "))
	case "url":
		return checkURL(field, name)
	case "port":
		return checkPort(field, name)
	default:
		return fmt.Errorf("unknown validation rule %q on field '%s'", rule, name)
	}
	return nil
}

// checkBound compares numbers by value and strings, slices and maps by length.
func checkBound(field reflect.Value, name string, bound int, upper bool) error {
	var got float64
	var unit string
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		got = float64(field.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		got = float64(field.Uint())
	case reflect.Float32, reflect.Float64:
		got = field.Float()
	case reflect.String:
		got, unit = float64(len(field.String())), " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		got, unit = float64(field.Len()), " elements"
	default:
		return nil
	}

	if upper && got > float64(bound) {
		return fmt.Errorf("field '%s' must be at most %d%s", name, bound, unit)
	}
	if !upper && got < float64(bound) {
		return fmt.Errorf("field '%s' must be at least %d%s", name, bound, unit)
	}
	return nil
}

var urlSchemes = map[string]bool{
	"http": true, "https": true, "tcp": true, "ssl": true,
	"ws": true, "wss": true, "mqtt": true, "mqtts": true, "nats": true,
}

func checkURL(field reflect.Value, name string) error {
	if field.Kind() != reflect.String {
		return fmt.Errorf("field '%s' must be a string for URL validation", name)
	}
	raw := field.String()
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !urlSchemes[strings.ToLower(u.Scheme)] || u.Host == "" {
		return fmt.Errorf("field '%s' must be a valid URL", name)
	}
	return nil
}

func checkPort(field reflect.Value, name string) error {
	var port int64
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		port = field.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		port = int64(field.Uint())
	default:
		return fmt.Errorf("field '%s' must be a number for port validation", name)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("field '%s' must be a valid port number (1-65535)", name)
	}
	return nil
}

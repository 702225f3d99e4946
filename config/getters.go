package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("field not found")

type Option func(options *options)

type options struct {
	withDefault  bool
	defaultValue interface{}
}

func getOptions(opts ...Option) *options {
	defaultOptions := &options{
		withDefault:  false,
		defaultValue: nil,
	}

	for _, opt := range opts {
		opt(defaultOptions)
	}

	return defaultOptions
}

func WithDefault(value interface{}) Option {
	return func(options *options) {
		options.withDefault = true
		options.defaultValue = value
	}
}

// GetString gets a string from the given option.
func GetString(config map[string]string, field string, opts ...Option) (string, error) {
	options := getOptions(opts...)
	out, ok := config[field]
	if !ok {
		if options.withDefault {
			return options.defaultValue.(string), nil
		}
		return "", errors.Wrapf(ErrNotFound, "%s", field)
	}

	return out, nil
}

// GetStringList gets a whitespace separated list of strings from the given option.
func GetStringList(config map[string]string, field string, opts ...Option) ([]string, error) {
	options := getOptions(opts...)
	out, ok := config[field]
	if !ok {
		if options.withDefault {
			return options.defaultValue.([]string), nil
		}
		return nil, errors.Wrapf(ErrNotFound, "%s", field)
	}

	return strings.Fields(out), nil
}

// GetInt gets an int from the given option.
func GetInt(config map[string]string, field string, opts ...Option) (int, error) {
	options := getOptions(opts...)
	out, ok := config[field]
	if !ok {
		if options.withDefault {
			return options.defaultValue.(int), nil
		}
		return 0, errors.Wrapf(ErrNotFound, "%s", field)
	}

	outInt, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, errors.Wrapf(err, "expected int in %s", field)
	}

	return outInt, nil
}

// GetPositiveInt gets an int greater than zero from the given option.
func GetPositiveInt(config map[string]string, field string, opts ...Option) (int, error) {
	out, err := GetInt(config, field, opts...)
	if err != nil {
		return 0, err
	}
	if out <= 0 {
		return 0, errors.Errorf("%s must be positive, got %d", field, out)
	}

	return out, nil
}

// GetBool gets a bool from the given option.
func GetBool(config map[string]string, field string, opts ...Option) (bool, error) {
	options := getOptions(opts...)
	out, ok := config[field]
	if !ok {
		if options.withDefault {
			return options.defaultValue.(bool), nil
		}
		return false, errors.Wrapf(ErrNotFound, "%s", field)
	}

	outBool, err := strconv.ParseBool(strings.TrimSpace(out))
	if err != nil {
		return false, errors.Wrapf(err, "expected bool in %s", field)
	}

	return outBool, nil
}

// GetDuration gets a duration, like 10s or 1m30s, from the given option.
func GetDuration(config map[string]string, field string, opts ...Option) (time.Duration, error) {
	options := getOptions(opts...)
	out, ok := config[field]
	if !ok {
		if options.withDefault {
			return options.defaultValue.(time.Duration), nil
		}
		return 0, errors.Wrapf(ErrNotFound, "%s", field)
	}

	outDuration, err := time.ParseDuration(strings.TrimSpace(out))
	if err != nil {
		return 0, errors.Wrapf(err, "expected duration in %s", field)
	}

	return outDuration, nil
}

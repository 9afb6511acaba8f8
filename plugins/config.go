package plugins

import (
	"errors"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"gopkg.in/yaml.v3"
)

// DecodeConfig fills target from a plugin_config document and then from
// request parameters. The document is a single YAML document, which also
// accepts JSON; keys that match no config field are rejected. A parameter
// overrides the config field whose yaml tag matches its key, but only when
// info declares the key as supported; every other parameter is ignored.
//
// target must be a pointer to a struct already holding the defaults.
func DecodeConfig(raw string, params map[string]string, info *models.InfoResponse, target interface{}) error {
	if strings.TrimSpace(raw) != "" {
		if err := decodeDocument(raw, target); err != nil {
			return err
		}
	}
	return applyParameters(params, info, target)
}

func decodeDocument(raw string, target interface{}) error {
	dec := yaml.NewDecoder(strings.NewReader(raw))
	dec.KnownFields(true)

	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return utils.InvalidArgument("plugin_config is not a valid YAML or JSON document: %v", err)
	}

	var extra yaml.Node
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return utils.InvalidArgument("plugin_config is not a valid YAML or JSON document: %v", err)
	default:
		return utils.InvalidArgument("plugin_config must be a single document")
	}
}

func applyParameters(params map[string]string, info *models.InfoResponse, target interface{}) error {
	if len(params) == 0 {
		return nil
	}

	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return utils.Internal("plugin config target must be a struct pointer", nil)
	}
	val = val.Elem()
	typ := val.Type()

	for i := 0; i < typ.NumField(); i++ {
		key := strings.SplitN(typ.Field(i).Tag.Get("yaml"), ",", 2)[0]
		if key == "" || key == "-" || !info.Supports(key) {
			continue
		}
		raw, ok := params[key]
		if !ok {
			continue
		}
		if err := setField(val.Field(i), strings.TrimSpace(raw)); err != nil {
			return utils.InvalidArgument("parameter %q: %v", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := parseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.New("must be an integer")
		}
		if n < 0 {
			return errors.New("must not be negative")
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return errors.New("must be a number")
		}
		field.SetFloat(f)
	default:
		return errors.New("cannot be set from a parameter")
	}
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "on", "t":
		return true, nil
	case "false", "0", "no", "off", "f":
		return false, nil
	}
	return false, errors.New("must be a boolean")
}

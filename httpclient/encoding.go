package httpclient

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	contentTypeJSON = "application/json"
	contentTypeForm = "application/x-www-form-urlencoded; charset=utf-8"
)

var errParametersNotObject = errors.New("parameters must encode to an object for URL encoding")

// encodedParameters is the result of applying a ParameterEncoding.
type encodedParameters struct {
	body        []byte
	contentType string
	query       string
}

// encodeParameters encodes params once per request; every attempt reuses
// the result.
func encodeParameters(params any, encoding ParameterEncoding) (encodedParameters, error) {
	if isNil(params) {
		return encodedParameters{}, nil
	}

	if encoding == EncodingJSON {
		body, err := json.Marshal(params)
		if err != nil {
			return encodedParameters{}, err
		}
		return encodedParameters{body: body, contentType: contentTypeJSON}, nil
	}

	m, err := toParameters(params)
	if err != nil {
		return encodedParameters{}, err
	}
	if len(m) == 0 {
		return encodedParameters{}, nil
	}
	query := encodeQuery(m)

	if encoding == EncodingBody {
		return encodedParameters{body: []byte(query), contentType: contentTypeForm}, nil
	}
	return encodedParameters{query: query}, nil
}

// toParameters converts maps directly and anything else through its JSON
// form.
func toParameters(params any) (map[string]any, error) {
	switch p := params.(type) {
	case map[string]any:
		return p, nil
	case map[string]string:
		m := make(map[string]any, len(p))
		for k, v := range p {
			m[k] = v
		}
		return m, nil
	case url.Values:
		m := make(map[string]any, len(p))
		for k, v := range p {
			m[k] = v
		}
		return m, nil
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errParametersNotObject
	}
	return m, nil
}

// encodeQuery writes params as key=value pairs sorted by key. Arrays use
// "key[]" and nested objects "key[sub]"; booleans are 1 and 0.
func encodeQuery(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		pairs = appendComponents(pairs, k, params[k])
	}
	return strings.Join(pairs, "&")
}

func appendComponents(pairs []string, key string, value any) []string {
	if isNil(value) {
		return append(pairs, url.QueryEscape(key)+"=")
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		values := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, k)
			values[k] = iter.Value().Interface()
		}
		sort.Strings(keys)
		for _, k := range keys {
			pairs = appendComponents(pairs, key+"["+k+"]", values[k])
		}
		return pairs
	case reflect.Slice, reflect.Array:
		if b, ok := value.([]byte); ok {
			return append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(string(b)))
		}
		for i := range rv.Len() {
			pairs = appendComponents(pairs, key+"[]", rv.Index(i).Interface())
		}
		return pairs
	case reflect.Bool:
		v := "0"
		if rv.Bool() {
			v = "1"
		}
		return append(pairs, url.QueryEscape(key)+"="+v)
	default:
		return append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(fmt.Sprint(value)))
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

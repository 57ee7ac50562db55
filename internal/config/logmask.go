// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

const maskedValue = "***"

// sensitiveKeywords mark a key as secret when contained in it, case-insensitively.
var sensitiveKeywords = []string{"password", "secret", "token", "streamkey", "stream_key", "credential"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// MaskSecrets converts data into plain maps and slices keyed like the YAML
// file, with every sensitive key replaced by "***". The result is meant for
// printing, not for loading back.
func MaskSecrets(data any) any {
	if data == nil {
		return nil
	}
	return maskValue(reflect.ValueOf(data))
}

func maskValue(v reflect.Value) any {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := range v.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			out[fieldKey(f)] = maskEntry(fieldKey(f), v.Field(i))
		}
		return out
	case reflect.Map:
		out := make(map[string]any, v.Len())
		for it := v.MapRange(); it.Next(); {
			key := fmt.Sprint(it.Key().Interface())
			out[key] = maskEntry(key, it.Value())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = maskValue(v.Index(i))
		}
		return out
	}

	if d, ok := v.Interface().(time.Duration); ok {
		return d.String()
	}
	return v.Interface()
}

func maskEntry(key string, v reflect.Value) any {
	if isSensitiveKey(key) {
		return maskedValue
	}
	return maskValue(v)
}

// fieldKey is the yaml tag name, or the Go field name without one.
func fieldKey(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ","); tag != "" && tag != "-" {
		return tag
	}
	return f.Name
}

// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package configtest

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

type checker struct {
	module string
	seen   map[reflect.Type]struct{}
}

func (c *checker) check(t reflect.Type) error {
	if _, ok := c.seen[t]; ok {
		return nil
	}
	c.seen[t] = struct{}{}

	switch t.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.Pointer:
		return c.check(t.Elem())
	case reflect.Struct:
		if !strings.HasPrefix(t.PkgPath(), c.module) {
			// types from other modules follow their own conventions
			return nil
		}

		var errs error
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)

			if !field.IsExported() {
				// ignore unexported fields
				continue
			}

			if field.Type.Kind() == reflect.Bool {
				// ignore boolean fields
				continue
			}

			if field.Tag.Get("config") == "allowempty" {
				// ignore configured exceptions
				continue
			}

			parts := strings.Split(field.Tag.Get("yaml"), ",")
			if parts[0] == "-" {
				// ignore unparsed fields
				continue
			}

			if !slices.Contains(parts, "omitempty") && !slices.Contains(parts, "inline") {
				errs = multierr.Append(errs, fmt.Errorf("%s/%s.%s missing omitempty tag", t.PkgPath(), t.Name(), field.Name))
			}

			errs = multierr.Append(errs, c.check(field.Type))
		}
		return errs
	default:
		return nil
	}
}

// CheckYAMLTags makes sure every non boolean field of config, and of the structs it is made
// of within the same module, is tagged omitempty.
func CheckYAMLTags(config any) error {
	t := reflect.TypeOf(config)
	module := t.PkgPath()
	if parts := strings.SplitN(module, "/", 4); len(parts) == 4 {
		module = strings.Join(parts[:3], "/")
	}

	c := &checker{
		module: module,
		seen:   map[reflect.Type]struct{}{},
	}
	return c.check(t)
}

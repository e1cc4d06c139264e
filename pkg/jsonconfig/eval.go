/*
Copyright 2024 The Corekernel Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package jsonconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

type stringVector struct {
	v []string
}

func (v *stringVector) Push(s string) { v.v = append(v.v, s) }
func (v *stringVector) Pop()          { v.v = v.v[:len(v.v)-1] }
func (v *stringVector) Last() string  { return v.v[len(v.v)-1] }

// configParser carries the state needed to detect include cycles while
// a config file (and anything it _file-includes) is being read.
type configParser struct {
	touchedFiles map[string]bool
	includeStack stringVector
}

// envPattern matches ${VARNAME} inside a string value subject to _env
// expansion.
var envPattern = regexp.MustCompile(`\$\{[A-Za-z0-9_]+\}`)

func (c *configParser) recursiveReadJSON(configPath string) (map[string]interface{}, error) {
	configPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand absolute path for %s: %w", configPath, err)
	}
	if c.touchedFiles[configPath] {
		return nil, fmt.Errorf("config include cycle detected reading %v", configPath)
	}
	c.touchedFiles[configPath] = true

	c.includeStack.Push(configPath)
	defer c.includeStack.Pop()

	f, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", configPath, err)
	}
	defer f.Close()

	decoded := make(map[string]interface{})
	if err := json.NewDecoder(f).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("error parsing JSON object in config file %s: %w", f.Name(), err)
	}

	if err := c.evaluateExpressions(decoded); err != nil {
		return nil, fmt.Errorf("error expanding JSON config expressions in %s: %w", f.Name(), err)
	}
	return decoded, nil
}

type expanderFunc func(c *configParser, v []interface{}) (interface{}, error)

func namedExpander(name string) (expanderFunc, bool) {
	switch name {
	case "_env":
		return expanderFunc((*configParser).expandEnv), true
	case "_file":
		return expanderFunc((*configParser).expandFile), true
	}
	return nil, false
}

func (c *configParser) evalValue(v interface{}) (interface{}, error) {
	sl, ok := v.([]interface{})
	if !ok {
		return v, nil
	}
	if name, ok := sl[0].(string); ok {
		if expander, ok := namedExpander(name); ok {
			return expander(c, sl[1:])
		}
	}
	for i, oldval := range sl {
		newval, err := c.evalValue(oldval)
		if err != nil {
			return nil, err
		}
		sl[i] = newval
	}
	return v, nil
}

func (c *configParser) evaluateExpressions(m map[string]interface{}) error {
	for k, ei := range m {
		switch subval := ei.(type) {
		case string, bool, float64, nil:
			continue
		case []interface{}:
			if len(subval) == 0 {
				continue
			}
			newval, err := c.evalValue(subval)
			if err != nil {
				return err
			}
			m[k] = newval
		case map[string]interface{}:
			if err := c.evaluateExpressions(subval); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unhandled config value type %T for key %q", ei, k)
		}
	}
	return nil
}

// expandEnv implements ["_env", "VARIABLE"] or
// ["_env", "VARIABLE", "default"], used in kernel config files to pick
// up things like the disk image path from the environment without
// baking a machine-specific path into the file.
func (c *configParser) expandEnv(v []interface{}) (interface{}, error) {
	if len(v) < 1 || len(v) > 2 {
		return "", fmt.Errorf("_env expansion expected 1 or 2 args, got %d", len(v))
	}
	s, ok := v[0].(string)
	if !ok {
		return "", fmt.Errorf("expected a string after _env expansion; got %#v", v[0])
	}
	hasDefault := len(v) == 2
	var def string
	wantsBool, boolDefault := false, false
	if hasDefault {
		switch vdef := v[1].(type) {
		case string:
			def = vdef
		case bool:
			wantsBool, boolDefault = true, vdef
		default:
			return "", fmt.Errorf("unexpected default value in %q _env expansion: %#v", s, v[1])
		}
	}
	var err error
	expanded := envPattern.ReplaceAllStringFunc(s, func(match string) string {
		envVar := match[2 : len(match)-1]
		val := os.Getenv(envVar)
		if val == "" {
			if hasDefault {
				return def
			}
			err = fmt.Errorf("couldn't expand environment variable %q", envVar)
		}
		return val
	})
	if wantsBool {
		if expanded == "" {
			return boolDefault, nil
		}
		return strconv.ParseBool(expanded)
	}
	return expanded, err
}

// expandFile implements ["_file", "relative/path.json"]: the named file
// is read relative to the directory of the file that is including it,
// and spliced in as an object.
func (c *configParser) expandFile(v []interface{}) (interface{}, error) {
	if len(v) != 1 {
		return "", fmt.Errorf("_file expansion expected 1 arg, got %d", len(v))
	}
	name, ok := v[0].(string)
	if !ok {
		return "", fmt.Errorf("_file expansion argument must be a string, got %#v", v[0])
	}
	base := filepath.Dir(c.includeStack.Last())
	exp, err := c.recursiveReadJSON(filepath.Join(base, name))
	if err != nil {
		return "", fmt.Errorf("in file included from %s: %w", c.includeStack.Last(), err)
	}
	return exp, nil
}

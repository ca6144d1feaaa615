// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package standby

import (
	"os"
	"sort"
	"strings"
	"sync"
)

// Env is the environment snapshot owned by a Supervisor.  It starts out as
// a copy of the process environment, is rewritten once by Derive, and is
// copied again (never shared) when the child is spawned.
type Env struct {
	vars    map[string]string
	derived bool
	lock    sync.Mutex
}

// NewEnv builds a snapshot from "name=value" pairs, as returned by
// os.Environ.  Malformed entries are ignored; later duplicates win.
func NewEnv(environ []string) *Env {
	e := &Env{vars: make(map[string]string, len(environ))}
	for _, kv := range environ {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		e.vars[kv[:i]] = kv[i+1:]
	}
	return e
}

// OSEnv returns a snapshot of the current process environment.
func OSEnv() *Env {
	return NewEnv(os.Environ())
}

func (e *Env) Lookup(n VarName) (string, bool) {
	e.lock.Lock()
	v, ok := e.vars[string(n)]
	e.lock.Unlock()
	return v, ok
}

func (e *Env) Get(n VarName) string {
	v, _ := e.Lookup(n)
	return v
}

// GetDefault returns the value of n, or def if n is unset or empty.
func (e *Env) GetDefault(n VarName, def string) string {
	if v := e.Get(n); v != "" {
		return v
	}
	return def
}

func (e *Env) Set(n VarName, v string) {
	e.lock.Lock()
	e.vars[string(n)] = v
	e.lock.Unlock()
}

func (e *Env) Unset(n VarName) {
	e.lock.Lock()
	delete(e.vars, string(n))
	e.lock.Unlock()
}

// Environ returns a sorted copy of the snapshot in os/exec form.  Later
// changes to the snapshot are not reflected in the returned slice.
func (e *Env) Environ() []string {
	e.lock.Lock()
	rv := make([]string, 0, len(e.vars))
	for k, v := range e.vars {
		rv = append(rv, k+"="+v)
	}
	e.lock.Unlock()
	sort.Strings(rv)
	return rv
}

func (e *Env) markDerived() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.derived {
		return false
	}
	e.derived = true
	return true
}

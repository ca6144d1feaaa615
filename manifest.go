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
	"encoding/json"
	"io"
	"os"
	"time"
)

// Manifest is the optional JSON description of the child.  Zero values
// leave the corresponding Config field alone.
type Manifest struct {
	Name        string        `json:"name"`
	Command     []string      `json:"command"`
	Directory   string        `json:"directory"`
	Env         []string      `json:"env"`
	Markers     []string      `json:"markers"`
	MaxOldSpace int           `json:"maxOldSpace"`
	Delay       time.Duration `json:"delay"`
	StopTime    time.Duration `json:"stopTime"`
}

func NewManifestFromJson(r io.Reader) (*Manifest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	m := &Manifest{}
	if e := dec.Decode(m); e != nil {
		return nil, e
	}
	return m, nil
}

func LoadManifest(path string) (*Manifest, error) {
	f, e := os.Open(path)
	if e != nil {
		return nil, e
	}
	defer f.Close()
	return NewManifestFromJson(f)
}

// Apply overlays the manifest onto cfg.
func (m *Manifest) Apply(cfg *Config) {
	if len(m.Command) != 0 {
		cfg.Child.Command = m.Command
	}
	if m.Directory != "" {
		cfg.Child.Dir = m.Directory
	}
	cfg.Child.Env = append(cfg.Child.Env, m.Env...)
	if len(m.Markers) != 0 {
		cfg.Markers = m.Markers
	}
	if m.MaxOldSpace != 0 {
		cfg.Child.MaxOldSpace = m.MaxOldSpace
	}
	if m.Delay != 0 {
		cfg.Delay = m.Delay
	}
	if m.StopTime != 0 {
		cfg.StopTime = m.StopTime
	}
}

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
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestManifest(t *testing.T) {
	Convey("Loading a manifest", t, func() {
		m, e := NewManifestFromJson(strings.NewReader(`{
			"name": "n8n",
			"command": ["node", "/app/n8n/bin/n8n", "start"],
			"directory": "/app",
			"env": ["N8N_LOG_LEVEL=debug"],
			"markers": ["Editor is now accessible via"],
			"maxOldSpace": 1024,
			"stopTime": 5000000000
		}`))
		So(e, ShouldBeNil)
		So(m.Name, ShouldEqual, "n8n")

		cfg := Config{
			Child: ChildConfig{
				Command:     []string{"npx", "n8n"},
				MaxOldSpace: DefaultMaxOldSpace,
			},
			Delay:    DefaultDelay,
			StopTime: DefaultStopTime,
		}
		m.Apply(&cfg)
		So(cfg.Child.Command, ShouldResemble, []string{"node", "/app/n8n/bin/n8n", "start"})
		So(cfg.Child.Dir, ShouldEqual, "/app")
		So(cfg.Child.Env, ShouldResemble, []string{"N8N_LOG_LEVEL=debug"})
		So(cfg.Child.MaxOldSpace, ShouldEqual, 1024)
		So(cfg.Markers, ShouldResemble, []string{"Editor is now accessible via"})
		So(cfg.StopTime, ShouldEqual, time.Second*5)
		So(cfg.Delay, ShouldEqual, DefaultDelay)
	})

	Convey("Unknown fields are rejected", t, func() {
		_, e := NewManifestFromJson(strings.NewReader(`{"restart": true}`))
		So(e, ShouldNotBeNil)
	})
}

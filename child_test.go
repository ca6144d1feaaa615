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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

// These tests run testdata/child.sh as the child, so they need a POSIX
// shell.

package standby

import (
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type outputLines struct {
	lines []string
	sync.Mutex
}

func (o *outputLines) add(stream, line string) {
	o.Lock()
	o.lines = append(o.lines, stream+": "+line)
	o.Unlock()
}

func (o *outputLines) has(s string) bool {
	o.Lock()
	defer o.Unlock()
	for _, l := range o.lines {
		if l == s {
			return true
		}
	}
	return false
}

// testEnv returns a snapshot with just PATH, which the script needs.
func testEnv(vars ...string) *Env {
	return NewEnv(append([]string{"PATH=" + os.Getenv("PATH")}, vars...))
}

func testChild(mode string, env *Env) (*Child, *Detector, *outputLines) {
	d := NewDetector(nil, nil)
	c := NewChild(ChildConfig{
		Command:     []string{"/bin/sh", "testdata/child.sh", mode},
		MaxOldSpace: DefaultMaxOldSpace,
	}, env, d, nil)
	out := &outputLines{}
	c.SetOutput(out.add)
	return c, d, out
}

func TestChildReady(t *testing.T) {
	Convey("Given a child that becomes ready", t, func() {
		c, d, out := testChild("ready", testEnv())
		So(c.Start(), ShouldBeNil)
		Reset(func() {
			c.Kill()
			c.Wait(time.Second)
		})

		ci := c.Info()
		So(ci.Running, ShouldBeTrue)
		So(ci.Pid, ShouldBeGreaterThan, 0)
		So(ci.Generation, ShouldNotBeEmpty)
		So(ci.Starts, ShouldEqual, 1)

		So(eventually(time.Second*2, d.Ready), ShouldBeTrue)
		So(out.has("stdout: booting"), ShouldBeTrue)

		Convey("A second start is refused", func() {
			So(c.Start(), ShouldEqual, ErrChildRunning)
			So(c.Info().Starts, ShouldEqual, 1)
		})

		Convey("SIGINT is forwarded as SIGINT", func() {
			So(c.Signal(syscall.SIGINT), ShouldBeNil)
			So(c.Wait(time.Second*2), ShouldBeTrue)
			So(out.has("stdout: got INT"), ShouldBeTrue)
			So(out.has("stdout: got TERM"), ShouldBeFalse)
		})

		Convey("Kill takes down the whole process group", func() {
			c.Kill()
			So(c.Wait(time.Second*2), ShouldBeTrue)
			So(c.Info().LastExit, ShouldEqual, "signal: killed")
			So(d.Ready(), ShouldBeFalse)
		})

		Convey("Signals are forwarded", func() {
			So(c.Signal(syscall.SIGTERM), ShouldBeNil)
			So(c.Wait(time.Second*2), ShouldBeTrue)
			So(out.has("stdout: got TERM"), ShouldBeTrue)
			So(d.Ready(), ShouldBeFalse)

			ci := c.Info()
			So(ci.Running, ShouldBeFalse)
			So(ci.LastExit, ShouldEqual, "exit status 0")

			Convey("And are a no-op once it has gone", func() {
				So(c.Signal(syscall.SIGTERM), ShouldEqual, ErrChildNotRunning)
			})
		})
	})
}

func TestChildExit(t *testing.T) {
	Convey("Given a child that exits after becoming ready", t, func() {
		c, d, _ := testChild("exit", testEnv())
		f := &flips{}
		d.SetNotify(f.record)
		exited := make(chan *os.ProcessState, 1)
		c.SetHooks(nil, func(ps *os.ProcessState) { exited <- ps })

		So(c.Start(), ShouldBeNil)
		So(c.Wait(time.Second*2), ShouldBeTrue)

		ps := <-exited
		So(ps.ExitCode(), ShouldEqual, 3)
		So(f.get(), ShouldResemble, []bool{true, false})
		So(d.Ready(), ShouldBeFalse)

		Convey("It is not restarted", func() {
			time.Sleep(time.Millisecond * 100)
			ci := c.Info()
			So(ci.Running, ShouldBeFalse)
			So(ci.Starts, ShouldEqual, 1)
			So(ci.LastExit, ShouldEqual, "exit status 3")
		})

		Convey("It can be started again by hand", func() {
			So(c.Start(), ShouldBeNil)
			So(c.Wait(time.Second*2), ShouldBeTrue)
			So(c.Info().Starts, ShouldEqual, 2)
		})
	})
}

func TestChildLeftovers(t *testing.T) {
	Convey("Given a child that exits while something it started holds its output", t, func() {
		c, d, _ := testChild("orphan", testEnv())
		f := &flips{}
		d.SetNotify(f.record)
		start := time.Now()
		So(c.Start(), ShouldBeNil)

		Convey("The exit is still noticed promptly", func() {
			So(c.Wait(time.Second), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, time.Second*2)

			ci := c.Info()
			So(ci.Running, ShouldBeFalse)
			So(ci.LastExit, ShouldEqual, "exit status 3")
			So(d.Ready(), ShouldBeFalse)
			So(f.get(), ShouldResemble, []bool{true, false})
		})
	})
}

func TestChildStderr(t *testing.T) {
	Convey("Markers on stderr are logged but ignored", t, func() {
		c, d, out := testChild("stderr", testEnv())
		So(c.Start(), ShouldBeNil)
		So(c.Wait(time.Second*2), ShouldBeTrue)
		So(out.has("stderr: Editor is now accessible via: http://localhost:5678/"), ShouldBeTrue)
		So(d.Ready(), ShouldBeFalse)
	})
}

func TestChildEnv(t *testing.T) {
	Convey("The child gets a copy of the derived environment", t, func() {
		env := testEnv(
			"POSTGRESQL_ADDON_URI=postgres://u:p@db.example.com/app",
			"NODE_OPTIONS=--trace-warnings",
		)
		_, e := Derive(env, DeriveOptions{})
		So(e, ShouldBeNil)

		c, _, out := testChild("env", env)
		c.cfg.Env = []string{"EXTRA=yes"}
		So(c.Start(), ShouldBeNil)

		// Changes after the spawn are not seen by the child.
		env.Set(VarDBHost, "changed")
		So(c.Wait(time.Second*2), ShouldBeTrue)

		So(out.has("stdout: host=db.example.com"), ShouldBeTrue)
		So(out.has("stdout: port=8080"), ShouldBeTrue)
		So(out.has("stdout: node=--trace-warnings --max-old-space-size=460"), ShouldBeTrue)
		So(out.has("stdout: extra=yes"), ShouldBeTrue)
		So(env.Get(VarNodeOptions), ShouldEqual, "--trace-warnings")
	})
}

func TestChildSpawnFailure(t *testing.T) {
	Convey("A missing executable is an error, not a crash", t, func() {
		d := NewDetector(nil, nil)
		c := NewChild(ChildConfig{
			Command: []string{"/nonexistent/standby-child"},
		}, NewEnv(nil), d, nil)
		e := c.Start()
		So(e, ShouldNotBeNil)
		So(c.Info().Running, ShouldBeFalse)
		So(c.Info().Starts, ShouldEqual, 0)
		So(c.Wait(time.Millisecond), ShouldBeTrue)
		So(c.Signal(syscall.SIGTERM), ShouldEqual, ErrChildNotRunning)
	})

	Convey("No command at all is an error", t, func() {
		c := NewChild(ChildConfig{}, NewEnv(nil), NewDetector(nil, nil), nil)
		So(c.Start(), ShouldEqual, ErrNoCommand)
	})

	Convey("Output lines are logged with the stream name by default", t, func() {
		var b strings.Builder
		logger := NewMultiLogger()
		logger.AddWriter(&b, 0)
		c := NewChild(ChildConfig{
			Command: []string{"/bin/sh", "testdata/child.sh", "env"},
		}, NewEnv(nil), NewDetector(nil, nil), logger.Logger())
		So(c.Start(), ShouldBeNil)
		So(c.Wait(time.Second*2), ShouldBeTrue)
		So(b.String(), ShouldContainSubstring, "stdout> port=")
	})
}

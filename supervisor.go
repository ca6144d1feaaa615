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
	"context"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

const (
	DefaultDelay    = 2 * time.Second
	DefaultStopTime = 10 * time.Second
)

// Config gathers everything a Supervisor needs besides the environment.
type Config struct {
	Child       ChildConfig
	Markers     []string      // if empty, STANDBY_MARKERS, then defaults
	MarkersFile string        // watched and reloaded when set
	PageFile    string        // replaces the built in waiting page
	Delay       time.Duration // between bind and spawn
	StopTime    time.Duration // grace period on shutdown, 0 for DefaultStopTime
	Lenient     bool          // tolerate a malformed database URI
}

// Supervisor is the single context object tying the pieces together.  It
// owns the environment snapshot, the readiness flag (through its
// Detector), and the child handle (through its Child).
type Supervisor struct {
	name        string
	cfg         Config
	env         *Env
	derived     *Derived
	detector    *Detector
	child       *Child
	placeholder *Placeholder
	metrics     *Metrics
	serial      *serial
	log         *Log
	mlog        *MultiLogger
	logger      *log.Logger
	console     *log.Logger
	createTime  time.Time
	lock        sync.Mutex
}

// NewSupervisor builds a Supervisor around env.  Nothing is bound or
// spawned until Run.
func NewSupervisor(name string, env *Env, cfg Config) *Supervisor {
	if name == "" {
		name = "standby"
	}
	if cfg.StopTime <= 0 {
		cfg.StopTime = DefaultStopTime
	}
	s := &Supervisor{
		name:       name,
		cfg:        cfg,
		env:        env,
		serial:     newSerial(),
		log:        NewLog(0),
		mlog:       NewMultiLogger(),
		createTime: time.Now(),
	}
	s.mlog.AddWriter(s.log.Writer(StreamSupervisor), 0)
	s.console = s.mlog.AddWriter(os.Stderr, log.LstdFlags)
	s.logger = s.mlog.Logger()

	markers := cfg.Markers
	if len(markers) == 0 {
		markers = MarkersFromEnv(env)
	}
	s.detector = NewDetector(markers, s.logger)
	s.child = NewChild(cfg.Child, env, s.detector, s.logger)
	s.placeholder = NewPlaceholder(s.detector, ChildPort(env), s.logger)
	s.metrics = newMetrics(s.detector, s.child)

	s.child.SetOutput(s.childOutput)
	s.detector.SetNotify(func(ready bool) {
		if ready {
			if st := s.child.Info().StartTime; !st.IsZero() {
				s.metrics.startup.Observe(time.Since(st).Seconds())
			}
		}
		s.serial.bump()
	})
	s.child.SetHooks(func(string) {
		s.metrics.spawns.Inc()
		s.serial.bump()
	}, func(ps *os.ProcessState) {
		s.metrics.childExited(ps)
		s.serial.bump()
	})
	s.placeholder.SetHooks(s.metrics.request, func() string {
		if ci := s.child.Info(); ci.Running {
			return ci.Generation
		}
		return ""
	})
	return s
}

func (s *Supervisor) childOutput(stream, line string) {
	s.log.Append(stream, line)
	s.lock.Lock()
	console := s.console
	s.lock.Unlock()
	if console != nil {
		console.Print(stream, "> ", line)
	}
}

// SetLogWriter sends console output to w instead of stderr.  A nil w
// silences the console; the in-memory Log is unaffected.
func (s *Supervisor) SetLogWriter(w io.Writer) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.console != nil {
		s.mlog.DelLogger(s.console)
		s.console = nil
	}
	if w != nil {
		s.console = s.mlog.AddWriter(w, log.LstdFlags)
	}
}

func (s *Supervisor) Name() string {
	return s.name
}

// Env returns the environment snapshot handed to the child.
func (s *Supervisor) Env() *Env {
	return s.env
}

func (s *Supervisor) Logger() *log.Logger {
	return s.logger
}

// Log returns the in-memory log of supervisor messages and child output.
func (s *Supervisor) Log() *Log {
	return s.log
}

func (s *Supervisor) Detector() *Detector {
	return s.detector
}

func (s *Supervisor) Child() *Child {
	return s.child
}

func (s *Supervisor) Metrics() *Metrics {
	return s.metrics
}

func (s *Supervisor) Placeholder() *Placeholder {
	return s.placeholder
}

// Derive runs the config deriver over the supervisor's snapshot, and
// applies the page override.  Errors are fatal to the caller.
func (s *Supervisor) Derive() (*Derived, error) {
	d, e := Derive(s.env, DeriveOptions{
		Lenient: s.cfg.Lenient,
		Logger:  s.logger,
	})
	if e != nil {
		return nil, e
	}
	if d != nil {
		s.lock.Lock()
		s.derived = d
		s.lock.Unlock()
	}
	if s.cfg.PageFile != "" {
		if e := s.placeholder.LoadPage(s.cfg.PageFile); e != nil {
			return nil, e
		}
	}
	return d, nil
}

// Listen binds the public port.  Call it before Run, and treat an error
// as fatal.
func (s *Supervisor) Listen() (net.Listener, error) {
	return Listen(PublicPort(s.env))
}

// SetMarkers replaces the readiness markers at run time.
func (s *Supervisor) SetMarkers(markers []string) error {
	if e := s.detector.SetMarkers(markers); e != nil {
		return e
	}
	s.logger.Printf("Readiness markers updated (%d)", len(s.detector.Markers()))
	s.serial.bump()
	return nil
}

// Run serves the placeholder on ln, spawns the child once the settling
// delay has passed, and then waits.  A signal on sigs (or ctx ending) is
// forwarded to the child, the placeholder is closed, and Run returns nil.
// The child exiting on its own does not end Run.
func (s *Supervisor) Run(ctx context.Context, ln net.Listener, sigs <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.MarkersFile != "" {
		if e := WatchMarkers(ctx, s.cfg.MarkersFile, s.SetMarkers, s.logger); e != nil {
			s.logger.Printf("Not watching %s: %v", s.cfg.MarkersFile, e)
		}
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.placeholder.Serve(ln)
	}()
	s.logger.Printf("Placeholder listening on %s", ln.Addr())

	delay := time.NewTimer(s.cfg.Delay)
	defer delay.Stop()

	for {
		select {
		case <-delay.C:
			s.logger.Printf("Starting child")
			if e := s.child.Start(); e != nil {
				s.metrics.spawnFailures.Inc()
				s.logger.Printf("Child not started: %v", e)
			}
		case sig := <-sigs:
			s.shutdown(sig)
			return nil
		case <-ctx.Done():
			s.shutdown(syscall.SIGTERM)
			return nil
		case e := <-errc:
			s.logger.Printf("Placeholder failed: %v", e)
			s.shutdown(syscall.SIGTERM)
			return e
		}
	}
}

func (s *Supervisor) shutdown(sig os.Signal) {
	s.logger.Printf("Received %v, shutting down", sig)
	if e := s.child.Signal(sig); e == ErrChildNotRunning {
		s.logger.Printf("No child to signal")
	}
	if e := s.placeholder.Close(); e != nil {
		s.logger.Printf("Closing placeholder: %v", e)
	}
	if !s.child.Wait(s.cfg.StopTime) {
		s.logger.Printf("Graceful shutdown timed out")
		s.child.Kill()
		s.child.Wait(time.Second)
	}
	s.logger.Printf("*** %s shut down ***", s.name)
}

// Serial returns the current state serial.
func (s *Supervisor) Serial() int64 {
	v, _ := s.serial.get()
	return v
}

// WatchSerial waits up to expire for the state to change from old.
func (s *Supervisor) WatchSerial(old int64, expire time.Duration) int64 {
	return s.serial.watch(old, expire)
}

// Status returns a consistent snapshot of the supervisor.
func (s *Supervisor) Status() *Status {
	ci := s.child.Info()
	sn, ut := s.serial.get()
	s.lock.Lock()
	db := s.derived != nil && s.derived.Conn != nil
	s.lock.Unlock()
	return &Status{
		Name:       s.name,
		Ready:      s.detector.Ready(),
		Running:    ci.Running,
		Pid:        ci.Pid,
		Generation: ci.Generation,
		Starts:     ci.Starts,
		LastExit:   ci.LastExit,
		StartTime:  ci.StartTime,
		ExitTime:   ci.ExitTime,
		Port:       PublicPort(s.env),
		ChildPort:  ChildPort(s.env),
		Database:   db,
		Markers:    s.detector.Markers(),
		Serial:     sn,
		UpdateTime: ut,
		CreateTime: s.createTime,
	}
}

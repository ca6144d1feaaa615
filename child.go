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
	"bufio"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxOldSpace is the V8 heap ceiling, in megabytes, handed to the
// child through NODE_OPTIONS.
const DefaultMaxOldSpace = 460

// ChildConfig describes how to run the child.
type ChildConfig struct {
	Command     []string // argv; Command[0] is looked up in PATH
	Dir         string   // working directory, empty for ours
	Env         []string // extra "name=value" pairs, applied last
	MaxOldSpace int      // megabytes, 0 leaves NODE_OPTIONS alone
}

// ChildInfo is a snapshot of the child's state.
type ChildInfo struct {
	Running    bool
	Pid        int
	Generation string
	Starts     int
	LastExit   string
	StartTime  time.Time
	ExitTime   time.Time
}

// Child runs at most one instance of the child process at a time.  Output
// is captured through pipes, handed line by line to the Detector, and then
// to the output function.  Nothing is restarted when the child exits.
type Child struct {
	cfg      ChildConfig
	env      *Env
	detector *Detector
	logger   *log.Logger
	output   func(stream, line string)

	onStart func(generation string)
	onExit  func(ps *os.ProcessState)

	proc       *os.Process
	done       chan struct{}
	generation string
	starts     int
	lastExit   string
	startTime  time.Time
	exitTime   time.Time

	lock sync.Mutex
}

// NewChild returns a Child that will run with a copy of env, taken when
// Start is called.
func NewChild(cfg ChildConfig, env *Env, d *Detector, logger *log.Logger) *Child {
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	c := &Child{
		cfg:      cfg,
		env:      env,
		detector: d,
		logger:   logger,
	}
	c.output = func(stream, line string) {
		c.logger.Print(stream, "> ", line)
	}
	return c
}

// SetOutput replaces the function receiving each line of child output.
func (c *Child) SetOutput(fn func(stream, line string)) {
	c.lock.Lock()
	c.output = fn
	c.lock.Unlock()
}

// SetHooks registers functions run after a successful spawn and after the
// child has been reaped.  Either may be nil.
func (c *Child) SetHooks(onStart func(string), onExit func(*os.ProcessState)) {
	c.lock.Lock()
	c.onStart = onStart
	c.onExit = onExit
	c.lock.Unlock()
}

// environ builds the child's environment: the snapshot, the configured
// extras, then the heap ceiling appended to any NODE_OPTIONS.
func (c *Child) environ() []string {
	env := NewEnv(c.env.Environ())
	for _, kv := range c.cfg.Env {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env.Set(VarName(kv[:i]), kv[i+1:])
		}
	}
	if c.cfg.MaxOldSpace > 0 {
		opt := "--max-old-space-size=" + strconv.Itoa(c.cfg.MaxOldSpace)
		env.Set(VarNodeOptions,
			strings.TrimSpace(env.Get(VarNodeOptions)+" "+opt))
	}
	return env.Environ()
}

func (c *Child) doLog(r io.Reader, stream string, wg *sync.WaitGroup) {
	defer wg.Done()
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); len(line) != 0 {
			c.detector.Scan(stream, line)
			c.lock.Lock()
			out := c.output
			c.lock.Unlock()
			out(stream, line)
		}
		if err != nil {
			return
		}
	}
}

// Start spawns the child.  It fails with ErrChildRunning if one is already
// live.  Spawn errors are logged and returned; the caller is expected to
// carry on without a child.
func (c *Child) Start() error {
	gen, onStart, e := c.spawn()
	if e != nil {
		return e
	}
	if onStart != nil {
		onStart(gen)
	}
	return nil
}

func (c *Child) spawn() (string, func(string), error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.proc != nil {
		return "", nil, ErrChildRunning
	}
	if len(c.cfg.Command) == 0 {
		return "", nil, ErrNoCommand
	}

	cmd := exec.Command(c.cfg.Command[0], c.cfg.Command[1:]...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = c.environ()
	setGroup(cmd)

	outr, outw, e := os.Pipe()
	if e != nil {
		return "", nil, fmt.Errorf("capture stdout: %w", e)
	}
	errr, errw, e := os.Pipe()
	if e != nil {
		outr.Close()
		outw.Close()
		return "", nil, fmt.Errorf("capture stderr: %w", e)
	}
	cmd.Stdout = outw
	cmd.Stderr = errw

	e = cmd.Start()
	// Only the child keeps the write ends, so readers see EOF once it
	// and everything it started are gone.
	outw.Close()
	errw.Close()
	if e != nil {
		outr.Close()
		errr.Close()
		c.logger.Printf("Failed to start %s: %v", c.cfg.Command[0], e)
		return "", nil, e
	}

	c.proc = cmd.Process
	c.done = make(chan struct{})
	c.generation = uuid.New().String()
	c.starts++
	c.startTime = time.Now()
	c.logger.Printf("Started %s (pid %d, generation %s)",
		strings.Join(c.cfg.Command, " "), c.proc.Pid, c.generation)

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go c.doLog(outr, StreamStdout, wg)
	go c.doLog(errr, StreamStderr, wg)
	go c.doWait(cmd, []*os.File{outr, errr}, wg, c.done)

	return c.generation, c.onStart, nil
}

// drainTime bounds how long output is still read after the child has
// been reaped.
const drainTime = 250 * time.Millisecond

// doWait reaps the child as soon as it exits, then gives the readers up
// to drainTime to finish, so that a readiness marker printed just before
// exit is seen before the flag is reset.  Anything the child left behind
// still holding its output is killed.
func (c *Child) doWait(cmd *exec.Cmd, pipes []*os.File, wg *sync.WaitGroup, done chan struct{}) {
	e := cmd.Wait()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	timer := time.NewTimer(drainTime)
	select {
	case <-drained:
	case <-timer.C:
		c.logger.Printf("Output still open after exit, killing process group %d",
			cmd.Process.Pid)
		signalGroup(cmd.Process, os.Kill)
	}
	timer.Stop()
	for _, f := range pipes {
		f.Close()
	}
	<-drained

	c.lock.Lock()
	ps := cmd.ProcessState
	switch {
	case ps != nil:
		c.lastExit = ps.String()
		c.logger.Printf("Child exited with code %d (%s)", ps.ExitCode(), ps)
	default:
		c.lastExit = e.Error()
		c.logger.Printf("Child wait failed: %v", e)
	}
	c.proc = nil
	c.exitTime = time.Now()
	onExit := c.onExit
	c.lock.Unlock()

	c.detector.Reset()
	if onExit != nil {
		onExit(ps)
	}
	c.logger.Printf("Not restarting; placeholder stays up")
	close(done)
}

// Signal forwards sig to the live child and its process group.  With no
// child it does nothing and returns ErrChildNotRunning.
func (c *Child) Signal(sig os.Signal) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.proc == nil {
		return ErrChildNotRunning
	}
	if e := signalGroup(c.proc, sig); e != nil {
		c.logger.Printf("Failed sending %v: %v", sig, e)
		return e
	}
	c.logger.Printf("Forwarded %v to pid %d", sig, c.proc.Pid)
	return nil
}

// Wait blocks until the current child has exited and been logged, or d
// elapses.  A d of zero waits forever.  It returns true if no child is
// left running.
func (c *Child) Wait(d time.Duration) bool {
	c.lock.Lock()
	done := c.done
	live := c.proc != nil
	c.lock.Unlock()
	if !live {
		return true
	}
	if d == 0 {
		<-done
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Kill forcibly terminates the live child, and whatever it started, if
// any.
func (c *Child) Kill() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.proc != nil {
		if e := signalGroup(c.proc, os.Kill); e != nil {
			c.logger.Printf("Failed killing: %v", e)
		}
	}
}

func (c *Child) Info() ChildInfo {
	c.lock.Lock()
	defer c.lock.Unlock()
	ci := ChildInfo{
		Running:    c.proc != nil,
		Generation: c.generation,
		Starts:     c.starts,
		LastExit:   c.lastExit,
		StartTime:  c.startTime,
		ExitTime:   c.exitTime,
	}
	if c.proc != nil {
		ci.Pid = c.proc.Pid
	}
	return ci
}

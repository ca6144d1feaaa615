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
	"sync"
	"time"
)

// serial tracks changes to the supervisor's observable state.  Every spawn,
// readiness flip, exit and marker change bumps it, so that clients can use
// it as an Etag and long poll for the next change.
type serial struct {
	value      int64
	updateTime time.Time
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

func newSerial() *serial {
	// Start from the current time in nsec, so that a client caching an
	// old value sees a change if we restart.
	now := time.Now()
	return &serial{
		value:      now.UnixNano(),
		updateTime: now,
		cvs:        make(map[*sync.Cond]bool),
	}
}

func (s *serial) bump() int64 {
	s.mx.Lock()
	s.updateTime = time.Now()
	s.value++
	rv := s.value
	// NB: broadcast with the lock held, or woken waiters may miss
	// the new value.
	for cv := range s.cvs {
		cv.Broadcast()
	}
	s.mx.Unlock()
	return rv
}

func (s *serial) get() (int64, time.Time) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.value, s.updateTime
}

// watch waits until the serial moves past old or expire elapses, and
// returns the current value.  An expire of zero just polls.
func (s *serial) watch(old int64, expire time.Duration) int64 {
	expired := false
	cv := sync.NewCond(&s.mx)
	var timer *time.Timer

	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			s.mx.Lock()
			expired = true
			cv.Broadcast()
			s.mx.Unlock()
		})
	} else {
		expired = true
	}

	s.mx.Lock()
	s.cvs[cv] = true
	for s.value == old && !expired {
		cv.Wait()
	}
	delete(s.cvs, cv)
	rv := s.value
	s.mx.Unlock()
	if timer != nil {
		timer.Stop()
	}
	return rv
}

// Status is a consistent snapshot of the supervisor.
type Status struct {
	Name       string    `json:"name"`
	Ready      bool      `json:"ready"`
	Running    bool      `json:"running"`
	Pid        int       `json:"pid,omitempty"`
	Generation string    `json:"generation,omitempty"`
	Starts     int       `json:"starts"`
	LastExit   string    `json:"lastExit,omitempty"`
	StartTime  time.Time `json:"startTime"`
	ExitTime   time.Time `json:"exitTime"`
	Port       string    `json:"port"`
	ChildPort  string    `json:"childPort"`
	Database   bool      `json:"database"`
	Markers    []string  `json:"markers"`
	Serial     int64     `json:"serial,string"`
	UpdateTime time.Time `json:"updateTime"`
	CreateTime time.Time `json:"createTime"`
}

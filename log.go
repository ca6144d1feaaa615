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
	"io"
	"strings"
	"sync"
	"time"
)

const (
	MaxLogRecords = 1000
)

// Stream names used to tag log records.
const (
	StreamSupervisor = "supervisor"
	StreamStdout     = "stdout"
	StreamStderr     = "stderr"
)

type LogRecord struct {
	Id     int64     `json:"id,string"`
	Time   time.Time `json:"time"`
	Stream string    `json:"stream"`
	Text   string    `json:"text"`
}

// Log is a ring of the most recent records from the supervisor and the
// child.  Readers use the last returned id as an Etag, and can block in
// Watch until something new arrives.
type Log struct {
	records    []LogRecord
	numRecords int
	maxRecords int
	id         int64
	cvs        map[*sync.Cond]bool
	mx         sync.Mutex
}

func (log *Log) lock() {
	log.mx.Lock()
}

func (log *Log) unlock() {
	log.mx.Unlock()
}

// Append adds the lines of text to the ring, each as its own record.
func (log *Log) Append(stream string, text string) {
	now := time.Now()
	log.lock()
	for _, line := range strings.Split(strings.Trim(text, "\n"), "\n") {
		rec := &log.records[log.numRecords%log.maxRecords]
		log.id++
		rec.Id = log.id
		rec.Time = now
		rec.Stream = stream
		rec.Text = line
		// NB: numRecords may exceed maxRecords once we've looped;
		// it is only used to find the next slot.
		log.numRecords++
	}
	for cv := range log.cvs {
		cv.Broadcast()
	}
	log.unlock()
}

type streamWriter struct {
	log    *Log
	stream string
}

func (w *streamWriter) Write(b []byte) (int, error) {
	w.log.Append(w.stream, string(b))
	return len(b), nil
}

// Writer returns an io.Writer, suitable for log.Logger, that tags
// everything written through it with the stream name.
func (log *Log) Writer(stream string) io.Writer {
	return &streamWriter{log: log, stream: stream}
}

func (log *Log) Clear() {
	log.lock()
	log.numRecords = 0
	// We presume that we cannot add new records more quickly than
	// once every nanosecond.
	log.id = time.Now().UnixNano()
	for cv := range log.cvs {
		cv.Broadcast()
	}
	log.unlock()
}

// GetRecords returns the stored records, oldest first, and the id of the
// newest one.  If last matches that id nothing has changed, and nil is
// returned without copying.  Ids are not comparable across Log instances.
func (log *Log) GetRecords(last int64) ([]LogRecord, int64) {
	log.lock()
	defer log.unlock()
	if log.id == last {
		return nil, last
	}
	cnt := log.numRecords
	if cnt > log.maxRecords {
		cnt = log.maxRecords
	}
	recs := make([]LogRecord, 0, cnt)
	index := log.numRecords - cnt
	for j := 0; j < cnt; j++ {
		recs = append(recs, log.records[index%log.maxRecords])
		index++
	}
	return recs, log.id
}

// Watch waits up to expire for the log to move past last, and returns the
// current id.  An expire of zero just polls.
func (log *Log) Watch(last int64, expire time.Duration) int64 {
	expired := false
	var timer *time.Timer
	cv := sync.NewCond(&log.mx)
	if expire > 0 {
		timer = time.AfterFunc(expire, func() {
			log.lock()
			expired = true
			cv.Broadcast()
			log.unlock()
		})
	} else {
		expired = true
	}

	log.lock()
	log.cvs[cv] = true
	for log.id == last && !expired {
		cv.Wait()
	}
	delete(log.cvs, cv)
	last = log.id
	log.unlock()
	if timer != nil {
		timer.Stop()
	}
	return last
}

// NewLog returns a Log holding up to max records.  A max of zero
// selects MaxLogRecords.
func NewLog(max int) *Log {
	if max <= 0 {
		max = MaxLogRecords
	}
	return &Log{
		records:    make([]LogRecord, max),
		maxRecords: max,
		id:         time.Now().UnixNano(),
		cvs:        make(map[*sync.Cond]bool),
	}
}

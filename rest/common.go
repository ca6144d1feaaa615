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

// Package rest exposes a Supervisor over a small HTTP admin API, and
// provides a client for it.  The API is meant for a loopback address; it
// is never served on the public port.
//
//	GET  /status    supervisor status (long poll with If-None-Match)
//	GET  /log       recent supervisor and child log records (long poll)
//	GET  /markers   readiness markers
//	PUT  /markers   replace readiness markers
//	GET  /metrics   Prometheus metrics
package rest

const (
	mimeJson = "application/json; charset=UTF-8"

	// PollHeader carries the number of seconds a client is willing to
	// wait for a change to the resource named by If-None-Match.
	PollHeader = "X-Standby-Poll"

	// MaxPoll caps PollHeader.
	MaxPoll = 300
)

var ok struct{}

type MarkerList struct {
	Markers []string `json:"markers"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

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

// Package standby supervises a single slow-starting child application,
// holding its public port open with a placeholder page until the child
// announces that it is ready.
//
// The flow is simple.  Derive rewrites the environment snapshot with the
// database, networking and feature settings the child expects.  A
// Supervisor then binds the public port straight away, so that platform
// health checks see an open port, serves a "starting up" page from it,
// and after a short settling delay spawns the child.  Lines written by the
// child on stdout are scanned for readiness markers; once one is seen the
// placeholder answers with a redirect to the child's loopback address.
//
// There is deliberately no restart policy.  If the child exits, readiness
// is cleared, the exit is logged, and the placeholder keeps serving the
// waiting page until the supervisor itself is told to stop.
//
// Note that the placeholder never hands traffic over to the child; it
// keeps redirecting for as long as it runs.  Deployments that need the
// child to own the public port should give the child a different internal
// port and put a real proxy in front.
package standby

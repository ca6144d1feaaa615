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
	"fmt"
	"io/ioutil"
	"log"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPort   = "8080"
	DefaultDBPort = "5432"
	BindHost      = "0.0.0.0"
	Protocol      = "https"
)

// ConnInfo is the decomposed form of a database connection URI.
type ConnInfo struct {
	Type     string
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// String returns a loggable form, without credentials.
func (c *ConnInfo) String() string {
	return c.Host + ":" + c.Port + "/" + c.Database
}

// ParseConnInfo decomposes a postgres:// or postgresql:// URI.  The port
// defaults to 5432, and the database name is the path with its leading
// slash removed.  User and password are returned percent-decoded.
func ParseConnInfo(uri string) (*ConnInfo, error) {
	u, e := url.Parse(uri)
	if e != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDatabaseURI, e)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q",
			ErrBadDatabaseURI, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrBadDatabaseURI)
	}
	c := &ConnInfo{
		Type:     "postgresdb",
		Host:     u.Hostname(),
		Port:     u.Port(),
		Database: strings.TrimPrefix(u.Path, "/"),
	}
	if c.Port == "" {
		c.Port = DefaultDBPort
	}
	if u.User != nil {
		c.User = u.User.Username()
		c.Password, _ = u.User.Password()
	}
	return c, nil
}

// DeriveOptions tunes Derive.
type DeriveOptions struct {
	// Lenient makes a malformed database URI a logged warning instead
	// of an error.  Derivation of the database variables is skipped.
	Lenient bool

	// Logger receives informational messages.  If nil, they are
	// discarded.
	Logger *log.Logger
}

// Derived summarizes what Derive wrote into the snapshot.
type Derived struct {
	Conn      *ConnInfo // nil when no database is configured
	Port      string    // public port for the placeholder
	ChildPort string    // port the child listens on
	BaseURL   string
	NodeEnv   string // NODE_ENV, informational only
}

// PublicPort returns the platform supplied port, or DefaultPort.
func PublicPort(env *Env) string {
	return env.GetDefault(VarPort, DefaultPort)
}

// ChildPort returns the port the child is told to listen on.  Unless
// overridden, this is the same as the public port.
func ChildPort(env *Env) string {
	return env.GetDefault(VarInternalPort, PublicPort(env))
}

func checkPort(p string) error {
	if n, e := strconv.Atoi(p); e != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: %q", ErrBadPort, p)
	}
	return nil
}

func databaseURI(env *Env) (string, bool) {
	if v, ok := env.Lookup(VarDatabaseURI); ok && v != "" {
		return v, true
	}
	if v, ok := env.Lookup(VarDatabaseURL); ok && v != "" {
		return v, true
	}
	return "", false
}

func baseURL(env *Env) string {
	if v := env.Get(VarAppURL); v != "" {
		if !strings.HasSuffix(v, "/") {
			v += "/"
		}
		return v
	}
	return Protocol + "://" + env.GetDefault(VarAppHost, "localhost") + "/"
}

// Derive rewrites the snapshot with the variables the child consumes.  It
// touches neither the network nor the filesystem.  Derivation happens at
// most once per snapshot; later calls return (nil, nil) without changes.
func Derive(env *Env, opts DeriveOptions) (*Derived, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	if !env.markDerived() {
		return nil, nil
	}

	d := &Derived{
		Port:      PublicPort(env),
		ChildPort: ChildPort(env),
		BaseURL:   baseURL(env),
		NodeEnv:   env.Get(VarNodeEnv),
	}
	if e := checkPort(d.Port); e != nil {
		return nil, e
	}
	if e := checkPort(d.ChildPort); e != nil {
		return nil, e
	}

	if uri, ok := databaseURI(env); !ok {
		logger.Printf("No database configured")
	} else if c, e := ParseConnInfo(uri); e != nil {
		if !opts.Lenient {
			return nil, e
		}
		logger.Printf("Ignoring database configuration: %v", e)
	} else {
		d.Conn = c
		env.Set(VarDBType, c.Type)
		env.Set(VarDBHost, c.Host)
		env.Set(VarDBPort, c.Port)
		env.Set(VarDBName, c.Database)
		env.Set(VarDBUser, c.User)
		env.Set(VarDBPassword, c.Password)
		logger.Printf("Database: %s", c)
	}

	env.Set(VarListenPort, d.ChildPort)
	env.Set(VarListenHost, BindHost)
	env.Set(VarProtocol, Protocol)
	env.Set(VarEditorURL, d.BaseURL)
	env.Set(VarWebhookURL, d.BaseURL)
	env.Set(VarDiagnostics, "false")
	env.Set(VarVersionNotify, "false")
	env.Set(VarTemplates, "false")
	env.Set(VarPersonalization, "false")

	logger.Printf("Port: %s", d.Port)
	logger.Printf("Host: %s", BindHost)
	if d.NodeEnv != "" {
		logger.Printf("Environment: %s", d.NodeEnv)
	}
	if d.ChildPort == d.Port {
		logger.Printf("Child port %s is held by the placeholder; "+
			"set %s so the child can bind", d.ChildPort, VarInternalPort)
	}
	return d, nil
}

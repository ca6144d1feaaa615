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

// Environment variable names.  The first group is read from the platform,
// the second is produced for the child.  The child specific names follow
// n8n's conventions, since that is what this was built to front.
type VarName string

const (
	VarPort         VarName = "PORT"                 // Public port
	VarNodeEnv              = "NODE_ENV"             // Runtime environment
	VarDatabaseURI          = "POSTGRESQL_ADDON_URI" // Primary DB URI
	VarDatabaseURL          = "DATABASE_URL"         // Fallback DB URI
	VarAppURL               = "APP_URL"              // Externally visible URL
	VarAppHost              = "APP_HOST"             // Externally visible host
	VarMarkers              = "STANDBY_MARKERS"      // "|" separated markers
	VarMaxOldSpace          = "STANDBY_MAX_OLD_SPACE"
	VarInternalPort         = "STANDBY_INTERNAL_PORT"
)

const (
	VarDBType          VarName = "DB_TYPE"
	VarDBHost                  = "DB_POSTGRESDB_HOST"
	VarDBPort                  = "DB_POSTGRESDB_PORT"
	VarDBName                  = "DB_POSTGRESDB_DATABASE"
	VarDBUser                  = "DB_POSTGRESDB_USER"
	VarDBPassword              = "DB_POSTGRESDB_PASSWORD"
	VarListenPort              = "N8N_PORT"
	VarListenHost              = "N8N_HOST"
	VarProtocol                = "N8N_PROTOCOL"
	VarEditorURL               = "N8N_EDITOR_BASE_URL"
	VarWebhookURL              = "WEBHOOK_URL"
	VarDiagnostics             = "N8N_DIAGNOSTICS_ENABLED"
	VarVersionNotify           = "N8N_VERSION_NOTIFICATIONS_ENABLED"
	VarTemplates               = "N8N_TEMPLATES_ENABLED"
	VarPersonalization         = "N8N_PERSONALIZATION_ENABLED"
	VarNodeOptions             = "NODE_OPTIONS"
)

// dbVars lists everything Derive sets only when a database is configured.
var dbVars = []VarName{
	VarDBType, VarDBHost, VarDBPort, VarDBName, VarDBUser, VarDBPassword,
}

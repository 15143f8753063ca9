// Package resource describes the Tenable.sc object kinds the CLI can list:
// where each lives in the REST API, which fields are requested and how each
// field becomes a display column.
package resource

import (
	"fmt"
	"strings"
)

// Kind is one of the fixed set of remote object types.
type Kind int

const (
	Status Kind = iota
	System
	User
	Group
	Scan
	ScanResult
	Policy
	Credential
	Role
	AuditFile
)

var kindNames = [...]string{
	Status:     "status",
	System:     "system",
	User:       "user",
	Group:      "group",
	Scan:       "scan",
	ScanResult: "scan_result",
	Policy:     "policy",
	Credential: "credential",
	Role:       "role",
	AuditFile:  "audit_file",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kindNames))
	for i := range kindNames {
		out[i] = Kind(i)
	}
	return out
}

// Parse returns the kind named s (e.g. "scan_result").
func Parse(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resource kind %q", s)
}

// Format selects how a raw field value is turned into a display value.
type Format int

const (
	// Auto is Timestamp for columns whose name ends in "Time", Text otherwise.
	Auto Format = iota
	Text
	Timestamp
	Duration
)

// Column maps one source path in the raw record (dot separated) to a display column.
type Column struct {
	Name   string
	Path   string
	Format Format
}

// Resolved returns the effective format of the column.
func (c Column) Resolved() Format {
	if c.Format != Auto {
		return c.Format
	}
	if strings.HasSuffix(c.Name, "Time") {
		return Timestamp
	}
	return Text
}

// Spec is the fixed query and projection rule of one kind.
type Spec struct {
	Kind     Kind
	Endpoint string
	// Envelope is the path of the record list inside the response body.
	Envelope string
	Columns  []Column
}

// Fields returns the top-level fields the projection consumes, in column order.
func (s Spec) Fields() []string {
	seen := make(map[string]bool, len(s.Columns))
	var out []string
	for _, c := range s.Columns {
		top, _, _ := strings.Cut(c.Path, ".")
		if !seen[top] {
			seen[top] = true
			out = append(out, top)
		}
	}
	return out
}

// ColumnNames returns the display column names in order.
func (s Spec) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// SpecFor returns the spec of k.
func SpecFor(k Kind) (Spec, error) {
	s, ok := specs[k]
	if !ok {
		return Spec{}, fmt.Errorf("no spec for %s", k)
	}
	return s, nil
}

func col(name string) Column { return Column{Name: name, Path: name} }

func nested(name, path string) Column { return Column{Name: name, Path: path} }

var ownerUsername = nested("ownerUsername", "owner.username")

var specs = map[Kind]Spec{
	Status: {
		Kind: Status, Endpoint: "status", Envelope: "response",
		Columns: []Column{col("jobd"), col("licenseStatus"), col("licensedIPs"), col("activeIPs")},
	},
	System: {
		Kind: System, Endpoint: "system", Envelope: "response",
		Columns: []Column{col("version"), col("buildID"), col("releaseID"), col("banner"), col("timezone")},
	},
	User: {
		Kind: User, Endpoint: "user", Envelope: "response",
		Columns: []Column{
			col("id"), col("username"), col("firstname"), col("lastname"),
			nested("roleName", "role.name"),
			col("createdTime"), col("modifiedTime"),
			{Name: "lastLogin", Path: "lastLogin", Format: Timestamp},
			col("locked"), col("failedLogins"),
		},
	},
	Group: {
		Kind: Group, Endpoint: "group", Envelope: "response",
		Columns: []Column{col("id"), col("name"), col("description"), col("createdTime"), col("modifiedTime")},
	},
	Scan: {
		Kind: Scan, Endpoint: "scan", Envelope: "response.usable",
		Columns: []Column{
			col("id"), col("name"), ownerUsername,
			nested("scheduleType", "schedule.type"),
			nested("scheduleEnabled", "schedule.enabled"),
			nested("scheduleRepeatRule", "schedule.repeatRule"),
			nested("scheduleStart", "schedule.start"),
			{Name: "scheduleNextRun", Path: "schedule.nextRun", Format: Timestamp},
			col("createdTime"), col("modifiedTime"),
		},
	},
	ScanResult: {
		Kind: ScanResult, Endpoint: "scanResult", Envelope: "response.usable",
		Columns: []Column{
			col("id"), col("name"), col("status"), ownerUsername,
			col("startTime"), col("finishTime"),
			{Name: "scanDuration", Path: "scanDuration", Format: Duration},
			col("totalIPs"), col("scannedIPs"), col("createdTime"),
		},
	},
	Policy: {
		Kind: Policy, Endpoint: "policy", Envelope: "response.usable",
		Columns: []Column{
			col("id"), col("name"), col("description"), ownerUsername,
			nested("policyTemplateName", "policyTemplate.name"),
			col("createdTime"), col("modifiedTime"),
		},
	},
	Credential: {
		Kind: Credential, Endpoint: "credential", Envelope: "response.usable",
		Columns: []Column{
			col("id"), col("name"), col("type"),
			nested("authType", "typeFields.authType"),
			ownerUsername, col("createdTime"), col("modifiedTime"),
		},
	},
	Role: {
		Kind: Role, Endpoint: "role", Envelope: "response",
		Columns: []Column{col("id"), col("name"), col("description"), col("createdTime"), col("modifiedTime")},
	},
	AuditFile: {
		Kind: AuditFile, Endpoint: "auditFile", Envelope: "response.usable",
		Columns: []Column{
			col("id"), col("name"), col("type"), col("version"), ownerUsername,
			col("createdTime"), col("modifiedTime"),
		},
	},
}

// Package environment holds the deployment environments of the
// read-it-later-anator infrastructure and the naming and tagging rules that
// derive from them.
package environment

import (
	"fmt"
	"strings"
)

// Name identifies a deployment environment.
type Name string

const (
	Dev     Name = "dev"
	Staging Name = "staging"
	Prod    Name = "prod"
)

const (
	// Application is the application name used in tags.
	Application = "read-it-later-anator"

	// ManagedBy is the value of the ManagedBy tag on every resource.
	ManagedBy = "Pulumi"

	resourcePrefix = "read-it-later"
)

// All lists the valid environments in promotion order.
var All = []Name{Dev, Staging, Prod}

// Parse validates s as an environment name. An empty string selects [Dev].
func Parse(s string) (Name, error) {
	if s == "" {
		return Dev, nil
	}

	for _, n := range All {
		if string(n) == s {
			return n, nil
		}
	}

	valid := make([]string, len(All))
	for i, n := range All {
		valid[i] = string(n)
	}

	return "", fmt.Errorf("invalid environment: %s. Must be one of: %s", s, strings.Join(valid, ", "))
}

func (n Name) String() string {
	return string(n)
}

// IsProd reports whether n is the production environment. Production gets
// retention on delete, point-in-time recovery, versioning, storage class
// transitions and dead-letter alarms.
func (n Name) IsProd() bool {
	return n == Prod
}

// ResourceName returns the physical name of a resource:
// read-it-later-<parts...>-<env>.
func (n Name) ResourceName(parts ...string) string {
	elems := make([]string, 0, len(parts)+2)
	elems = append(elems, resourcePrefix)
	elems = append(elems, parts...)
	elems = append(elems, string(n))

	return strings.Join(elems, "-")
}

// ExportName returns the cross-stack export name for key, e.g. prod-TableName.
func (n Name) ExportName(key string) string {
	return string(n) + "-" + key
}

// StackName returns the logical name of a deployable unit, e.g.
// ReadItLater-Database-dev.
func (n Name) StackName(unit string) string {
	return "ReadItLater-" + unit + "-" + string(n)
}

// Description is the human readable description of the environment's
// infrastructure.
func (n Name) Description() string {
	return "Read-It-Later-Anator " + string(n) + " infrastructure"
}

// Tags returns the tags applied uniformly to every resource in n.
func (n Name) Tags() map[string]string {
	return map[string]string{
		"Application": Application,
		"Project":     Application,
		"Environment": string(n),
		"ManagedBy":   ManagedBy,
	}
}

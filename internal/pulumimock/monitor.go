// Package pulumimock provides a recording Pulumi resource monitor used by the
// declaration tests. It fills in the provider-computed outputs (ARNs, URLs,
// stream ARNs) that the declarations read back.
package pulumimock

import (
	"fmt"
	"sync"

	"github.com/pulumi/pulumi/sdk/v3/go/common/resource"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	// Project is the project name used by [Run].
	Project = "read-it-later-anator"

	// DefaultAccountID is returned by the caller identity invoke unless
	// [Monitor.AccountID] is set.
	DefaultAccountID = "123456789012"

	// Region is the region encoded into mocked ARNs and URLs.
	Region = "us-east-1"

	callerIdentityToken = "aws:index/getCallerIdentity:getCallerIdentity"
)

// Resource is a registered resource as seen by the monitor.
type Resource struct {
	Type     string
	Name     string
	Custom   bool
	Provider string
	Inputs   resource.PropertyMap

	// RetainOnDelete is the retainOnDelete option the resource was
	// registered with.
	RetainOnDelete bool
}

// Values returns the resource inputs as plain Go values. Numbers are float64.
func (r Resource) Values() map[string]any {
	return r.Inputs.Mappable()
}

// Monitor implements [pulumi.MockResourceMonitor] and records every resource
// registration.
type Monitor struct {
	AccountID string

	mu        sync.Mutex
	resources []Resource
}

// New returns an empty Monitor.
func New() *Monitor {
	return &Monitor{AccountID: DefaultAccountID}
}

func (m *Monitor) NewResource(args pulumi.MockResourceArgs) (string, resource.PropertyMap, error) {
	m.mu.Lock()
	m.resources = append(m.resources, Resource{
		Type:     args.TypeToken,
		Name:     args.Name,
		Custom:   args.Custom,
		Provider: args.Provider,
		Inputs:   args.Inputs,

		RetainOnDelete: args.RegisterRPC.GetRetainOnDelete(),
	})
	m.mu.Unlock()

	outputs := args.Inputs.Copy()
	id := args.Name + "-id"

	switch args.TypeToken {
	case "aws:dynamodb/table:Table":
		name := stringInput(args.Inputs, "name")
		arn := fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", Region, m.AccountID, name)
		outputs["arn"] = resource.NewStringProperty(arn)
		if v, ok := args.Inputs["streamEnabled"]; ok && v.IsBool() && v.BoolValue() {
			outputs["streamArn"] = resource.NewStringProperty(arn + "/stream/2026-01-01T00:00:00.000")
		} else {
			outputs["streamArn"] = resource.NewStringProperty("")
		}
		id = name
	case "aws:s3/bucketV2:BucketV2":
		name := stringInput(args.Inputs, "bucket")
		outputs["arn"] = resource.NewStringProperty("arn:aws:s3:::" + name)
		id = name
	case "aws:sqs/queue:Queue":
		name := stringInput(args.Inputs, "name")
		url := fmt.Sprintf("https://sqs.%s.amazonaws.com/%s/%s", Region, m.AccountID, name)
		outputs["arn"] = resource.NewStringProperty(fmt.Sprintf("arn:aws:sqs:%s:%s:%s", Region, m.AccountID, name))
		outputs["url"] = resource.NewStringProperty(url)
		id = url
	case "aws:sns/topic:Topic":
		name := stringInput(args.Inputs, "name")
		outputs["arn"] = resource.NewStringProperty(fmt.Sprintf("arn:aws:sns:%s:%s:%s", Region, m.AccountID, name))
	}

	return id, outputs, nil
}

func (m *Monitor) Call(args pulumi.MockCallArgs) (resource.PropertyMap, error) {
	if args.Token == callerIdentityToken {
		return resource.NewPropertyMapFromMap(map[string]any{
			"accountId": m.AccountID,
			"arn":       fmt.Sprintf("arn:aws:iam::%s:user/deployer", m.AccountID),
			"id":        m.AccountID,
			"userId":    "AIDAEXAMPLE",
		}), nil
	}

	return args.Args, nil
}

// Resources returns a snapshot of every registered resource.
func (m *Monitor) Resources() []Resource {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Resource(nil), m.resources...)
}

// ByType returns the registered resources of the given type token.
func (m *Monitor) ByType(typ string) []Resource {
	var out []Resource
	for _, r := range m.Resources() {
		if r.Type == typ {
			out = append(out, r)
		}
	}

	return out
}

// Find returns the resource with the given type token and name.
func (m *Monitor) Find(typ, name string) (Resource, bool) {
	for _, r := range m.ByType(typ) {
		if r.Name == name {
			return r, true
		}
	}

	return Resource{}, false
}

// Run executes fn against m as stack stackName.
func Run(m *Monitor, stackName string, fn pulumi.RunFunc) error {
	return pulumi.RunErr(fn, pulumi.WithMocks(Project, stackName, m))
}

func stringInput(inputs resource.PropertyMap, key resource.PropertyKey) string {
	v, ok := inputs[key]
	if !ok || !v.IsString() {
		return ""
	}

	return v.StringValue()
}

package deploy

import (
	"errors"
	"io"
	"regexp"
)

var organizationPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Option is a functional option for configuring a [Deployer].
type Option func(*Options)

// Options holds the configuration for a [Deployer].
type Options struct {
	organization     string
	progress         io.Writer
	allowProdDestroy bool
	engine           Engine
}

func newOptions() *Options {
	return &Options{}
}

func (o *Options) validate() error {
	if o.organization != "" && !organizationPattern.MatchString(o.organization) {
		return errors.New("organization may only contain letters, digits, '-', '_' and '.'")
	}

	return nil
}

// WithOrganization places the stack in a Pulumi Cloud organization. By
// default the stack belongs to the current backend user.
func WithOrganization(org string) Option {
	return func(o *Options) {
		o.organization = org
	}
}

// WithProgress streams engine progress to w.
func WithProgress(w io.Writer) Option {
	return func(o *Options) {
		o.progress = w
	}
}

// WithAllowProdDestroy permits [Deployer.Destroy] on the prod environment.
func WithAllowProdDestroy(allow bool) Option {
	return func(o *Options) {
		o.allowProdDestroy = allow
	}
}

// WithEngine replaces the Automation API stack, for testing.
func WithEngine(engine Engine) Option {
	return func(o *Options) {
		o.engine = engine
	}
}

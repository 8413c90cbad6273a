package deploy

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/pulumi/pulumi/sdk/v3/go/auto"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optdestroy"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optpreview"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optrefresh"
	"github.com/pulumi/pulumi/sdk/v3/go/auto/optup"

	"github.com/readitlater/infrastructure/environment"
	"github.com/readitlater/infrastructure/logging"
	"github.com/readitlater/infrastructure/stack"
)

// Project is the Pulumi project every environment stack belongs to.
const Project = environment.Application

var (
	// ErrProdDestroyRefused is returned by [Deployer.Destroy] for prod unless
	// [WithAllowProdDestroy] was given.
	ErrProdDestroyRefused = errors.New("refusing to destroy prod")

	// ErrConcurrentUpdate is returned when another update holds the stack
	// lock.
	ErrConcurrentUpdate = errors.New("stack is locked by another update")
)

// Engine is the subset of [auto.Stack] used by [Deployer].
type Engine interface {
	SetConfig(ctx context.Context, key string, val auto.ConfigValue) error
	Preview(ctx context.Context, opts ...optpreview.Option) (auto.PreviewResult, error)
	Up(ctx context.Context, opts ...optup.Option) (auto.UpResult, error)
	Refresh(ctx context.Context, opts ...optrefresh.Option) (auto.RefreshResult, error)
	Destroy(ctx context.Context, opts ...optdestroy.Option) (auto.DestroyResult, error)
	Outputs(ctx context.Context) (auto.OutputMap, error)
}

// Summary is the outcome of an engine operation.
type Summary struct {
	Operation string
	Result    string

	// Changes counts resources per operation type, e.g. "create": 12.
	Changes map[string]int
}

// Deployer previews, applies, refreshes and destroys the stack of one
// environment.
//
// Create a Deployer with [New], then call [Deployer.Init] once before any
// other method.
type Deployer struct {
	cfg         *stack.Config
	opts        *Options
	logger      logging.Logger
	engine      Engine
	stackName   string
	initialized bool

	// isConcurrentUpdate classifies engine errors caused by a held stack lock.
	isConcurrentUpdate func(error) bool
}

// New creates a Deployer for cfg. New does not contact the Pulumi backend.
func New(cfg *stack.Config, logger logging.Logger, opts ...Option) *Deployer {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	return &Deployer{
		cfg:                cfg,
		opts:               options,
		logger:             logger.WithField("component", "deploy"),
		isConcurrentUpdate: auto.IsConcurrentUpdateError,
	}
}

// Init validates the configuration, selects or creates the environment's
// stack with the inline program and sets the AWS region. It returns the
// receiver so that initialization can be chained with [New]:
//
//	d, err := deploy.New(cfg, logger).Init(ctx)
//
// Init is idempotent and not thread-safe.
func (d *Deployer) Init(ctx context.Context) (*Deployer, error) {
	if d.initialized {
		return d, nil
	}

	if err := d.opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid deploy options: %w", err)
	}

	if err := d.cfg.Validate(); err != nil {
		return nil, err
	}

	d.stackName = string(d.cfg.Environment)
	if d.opts.organization != "" {
		d.stackName = auto.FullyQualifiedStackName(d.opts.organization, Project, d.stackName)
	}

	d.logger = d.logger.WithField("stack", d.stackName)

	if d.opts.engine != nil {
		d.engine = d.opts.engine
	} else {
		st, err := auto.UpsertStackInlineSource(ctx, d.stackName, Project, stack.Program(d.cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to select stack %s: %w", d.stackName, err)
		}
		d.engine = &st
	}

	if err := d.engine.SetConfig(ctx, "aws:region", auto.ConfigValue{Value: d.cfg.Region}); err != nil {
		return nil, fmt.Errorf("failed to set aws:region on stack %s: %w", d.stackName, err)
	}

	d.initialized = true

	d.logger.Debug("Pulumi stack ready")

	return d, nil
}

// StackName returns the Pulumi stack name, available after Init.
func (d *Deployer) StackName() string {
	return d.stackName
}

// Environment returns the environment the Deployer targets.
func (d *Deployer) Environment() environment.Name {
	return d.cfg.Environment
}

// Preview computes the changes an update would make.
func (d *Deployer) Preview(ctx context.Context) (Summary, error) {
	if !d.initialized {
		return Summary{}, errors.New("deployer not initialized")
	}

	var opts []optpreview.Option
	if d.opts.progress != nil {
		opts = append(opts, optpreview.ProgressStreams(d.opts.progress))
	}

	res, err := d.engine.Preview(ctx, opts...)
	if err != nil {
		return Summary{}, d.wrap("preview", err)
	}

	changes := make(map[string]int, len(res.ChangeSummary))
	for op, n := range res.ChangeSummary {
		changes[string(op)] = n
	}

	summary := Summary{Operation: "preview", Result: "succeeded", Changes: changes}
	d.log(summary)

	return summary, nil
}

// Up applies the declarations and returns the resulting stack outputs.
func (d *Deployer) Up(ctx context.Context) (Summary, map[string]string, error) {
	if !d.initialized {
		return Summary{}, nil, errors.New("deployer not initialized")
	}

	opts := []optup.Option{optup.Message("Deploy " + d.cfg.Environment.Description())}
	if d.opts.progress != nil {
		opts = append(opts, optup.ProgressStreams(d.opts.progress))
	}

	res, err := d.engine.Up(ctx, opts...)
	if err != nil {
		return Summary{}, nil, d.wrap("update", err)
	}

	summary := newSummary("update", res.Summary)
	d.log(summary)

	return summary, outputValues(res.Outputs), nil
}

// Refresh reconciles the stack state with the live resources.
func (d *Deployer) Refresh(ctx context.Context) (Summary, error) {
	if !d.initialized {
		return Summary{}, errors.New("deployer not initialized")
	}

	var opts []optrefresh.Option
	if d.opts.progress != nil {
		opts = append(opts, optrefresh.ProgressStreams(d.opts.progress))
	}

	res, err := d.engine.Refresh(ctx, opts...)
	if err != nil {
		return Summary{}, d.wrap("refresh", err)
	}

	summary := newSummary("refresh", res.Summary)
	d.log(summary)

	return summary, nil
}

// Destroy deletes every resource of the stack that is not retained. Prod is
// refused unless [WithAllowProdDestroy] was given; even then the table and
// bucket are retained.
func (d *Deployer) Destroy(ctx context.Context) (Summary, error) {
	if !d.initialized {
		return Summary{}, errors.New("deployer not initialized")
	}

	if d.cfg.Environment.IsProd() && !d.opts.allowProdDestroy {
		return Summary{}, ErrProdDestroyRefused
	}

	var opts []optdestroy.Option
	if d.opts.progress != nil {
		opts = append(opts, optdestroy.ProgressStreams(d.opts.progress))
	}

	res, err := d.engine.Destroy(ctx, opts...)
	if err != nil {
		return Summary{}, d.wrap("destroy", err)
	}

	summary := newSummary("destroy", res.Summary)
	d.log(summary)

	return summary, nil
}

// Outputs returns the current stack outputs. Secret values are masked.
func (d *Deployer) Outputs(ctx context.Context) (map[string]string, error) {
	if !d.initialized {
		return nil, errors.New("deployer not initialized")
	}

	out, err := d.engine.Outputs(ctx)
	if err != nil {
		return nil, d.wrap("outputs", err)
	}

	return outputValues(out), nil
}

func (d *Deployer) wrap(op string, err error) error {
	if d.isConcurrentUpdate(err) {
		return fmt.Errorf("%s of stack %s: %w", op, d.stackName, errors.Join(ErrConcurrentUpdate, err))
	}

	return fmt.Errorf("%s of stack %s failed: %w", op, d.stackName, err)
}

func (d *Deployer) log(s Summary) {
	fields := map[string]any{"operation": s.Operation, "result": s.Result}
	for op, n := range s.Changes {
		fields["changes_"+op] = n
	}

	d.logger.WithFields(fields).Info("Pulumi operation finished")
}

func newSummary(op string, s auto.UpdateSummary) Summary {
	changes := map[string]int{}
	if s.ResourceChanges != nil {
		maps.Copy(changes, *s.ResourceChanges)
	}

	return Summary{Operation: op, Result: s.Result, Changes: changes}
}

func outputValues(out auto.OutputMap) map[string]string {
	values := make(map[string]string, len(out))

	for k, v := range out {
		if v.Secret {
			values[k] = "[secret]"
			continue
		}
		values[k] = fmt.Sprint(v.Value)
	}

	return values
}

package stack

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/sync/errgroup"

	"github.com/readitlater/infrastructure/database"
	"github.com/readitlater/infrastructure/logging"
	"github.com/readitlater/infrastructure/queue"
	"github.com/readitlater/infrastructure/storage"
)

// IdentityAPI is the subset of the STS API used to resolve the account.
type IdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// ResolveAccount returns the account of the credentials behind api. When
// configured is set it must match.
func ResolveAccount(ctx context.Context, api IdentityAPI, configured string) (string, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve AWS account: %w", err)
	}

	account := aws.ToString(out.Account)
	if configured != "" && configured != account {
		return "", fmt.Errorf("configured account %s does not match deploying account %s", configured, account)
	}

	return account, nil
}

// Verifier checks the deployed units of an environment against their
// declarations.
type Verifier struct {
	Identity IdentityAPI
	Database *database.Client
	Storage  *storage.Client
	Queue    *queue.Client

	// Concurrency caps how many units are checked at once. Zero checks all
	// units in parallel.
	Concurrency int

	logger logging.Logger
}

func (v *Verifier) concurrency() int {
	if v.Concurrency > 0 {
		return v.Concurrency
	}

	return -1
}

// NewVerifier connects a verifier for every unit using awsCfg.
func NewVerifier(ctx context.Context, awsCfg aws.Config, logger logging.Logger) (*Verifier, error) {
	db := database.NewClient(&awsCfg, logger)
	if err := db.Connect(); err != nil {
		return nil, err
	}

	st := storage.NewClient(&awsCfg, logger)
	if err := st.Connect(); err != nil {
		return nil, err
	}

	qc, err := queue.NewClient(&awsCfg, logger).Init(ctx)
	if err != nil {
		return nil, err
	}

	return &Verifier{
		Identity: sts.NewFromConfig(awsCfg),
		Database: db,
		Storage:  st,
		Queue:    qc,
		logger:   logger,
	}, nil
}

// Verify runs the three unit verifiers concurrently and returns every
// difference found, joined.
func (v *Verifier) Verify(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	account, err := ResolveAccount(ctx, v.Identity, cfg.Account)
	if err != nil {
		return err
	}

	dbSpec, err := cfg.DatabaseSpec()
	if err != nil {
		return err
	}

	storageSpec, err := cfg.StorageSpec(account)
	if err != nil {
		return err
	}

	queueSpec, err := cfg.QueueSpec()
	if err != nil {
		return err
	}

	logger := v.logger.WithFields(map[string]any{
		"environment": cfg.Environment,
		"account":     account,
		"region":      cfg.Region,
	})
	logger.Info("Verifying deployed infrastructure")

	checks := []func(context.Context) error{
		func(ctx context.Context) error { return v.Database.Verify(ctx, dbSpec) },
		func(ctx context.Context) error { return v.Storage.Verify(ctx, storageSpec) },
		func(ctx context.Context) error { return v.Queue.Verify(ctx, queueSpec) },
	}

	// A plain Group does not cancel siblings, so every unit reports.
	results := make([]error, len(checks))

	var g errgroup.Group
	g.SetLimit(v.concurrency())

	for i, check := range checks {
		g.Go(func() error {
			results[i] = check(ctx)
			return results[i]
		})
	}

	if err := g.Wait(); err != nil {
		return errors.Join(results...)
	}

	logger.Info("Deployed infrastructure matches declaration")

	return nil
}

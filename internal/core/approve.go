package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

var (
	ErrCollectionNotFound = errors.New("collection version not found after waiting")
	ErrRepositoryNotFound = errors.New("repository not found")
)

// Repository names a collection moves between.
const (
	StagingRepository   = "staging"
	PublishedRepository = "published"
)

// ApprovalAPI is the remote surface used to approve a collection version.
type ApprovalAPI interface {
	// PlatformAPI reports whether the platform-wide API root is exposed.
	PlatformAPI(ctx context.Context) (bool, error)
	MoveToPublished(ctx context.Context, ref api.CollectionRef) (*api.TriggerReply, error)
	// FindCollectionVersion returns the href of the version, "" if not visible yet.
	FindCollectionVersion(ctx context.Context, ref api.CollectionRef) (string, error)
	// FindRepository returns the href of the named repository, "" if absent.
	FindRepository(ctx context.Context, name string) (string, error)
	MoveCollectionVersion(ctx context.Context, fromRepo, version, toRepo string) (*api.TriggerReply, error)
}

// Approver moves an uploaded collection version from staging to published.
type Approver interface {
	Name() string
	Approve(ctx context.Context, ref api.CollectionRef) error
}

type Strategy string

const (
	StrategyAuto       Strategy = "auto"
	StrategyDirect     Strategy = "direct"
	StrategyRepository Strategy = "repository"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAuto, StrategyDirect, StrategyRepository:
		return Strategy(s), nil
	case "":
		return StrategyAuto, nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// ApprovalTiming bounds both strategies' waiting loops.
type ApprovalTiming struct {
	Timeout  time.Duration
	Interval time.Duration
	Clock    clockwork.Clock
}

func (t ApprovalTiming) interval() time.Duration {
	if t.Interval < MinPollInterval {
		return MinPollInterval
	}
	return t.Interval
}

// Attempts is floor(timeout/interval), at least one.
func (t ApprovalTiming) Attempts() int {
	n := int(t.Timeout / t.interval())
	if n < 1 {
		return 1
	}
	return n
}

func (t ApprovalTiming) retryOpts(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(t.Attempts())),
		retry.Delay(t.interval()),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.WithTimer(clockOrReal(t.Clock)),
	}
}

// NewApprover returns the approver for strategy. StrategyAuto probes the
// remote API once; a failed probe selects the direct move.
func NewApprover(ctx context.Context, strategy Strategy, a ApprovalAPI, timing ApprovalTiming) Approver {
	switch strategy {
	case StrategyDirect:
		return &DirectMove{API: a, Timing: timing}
	case StrategyRepository:
		return &RepositoryMove{API: a, Timing: timing}
	}
	platform, err := a.PlatformAPI(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Platform probe failed, assuming standalone hub")
		return &DirectMove{API: a, Timing: timing}
	}
	if !platform {
		log.Info().Msg("Standalone hub detected")
		return &DirectMove{API: a, Timing: timing}
	}
	log.Info().Msg("Platform hub detected")
	return &RepositoryMove{API: a, Timing: timing}
}

// DirectMove calls the staging-to-published move endpoint until it is
// accepted, sleeping the interval between attempts.
type DirectMove struct {
	API    ApprovalAPI
	Timing ApprovalTiming
}

func (d *DirectMove) Name() string { return string(StrategyDirect) }

func (d *DirectMove) Approve(ctx context.Context, ref api.CollectionRef) error {
	logger := log.With().Str("component", "approve").Str("strategy", d.Name()).Str("collection", ref.String()).Logger()
	attempts := 0
	err := retry.Do(func() error {
		attempts++
		reply, err := d.API.MoveToPublished(ctx, ref)
		if err != nil {
			return err
		}
		if reply.StatusCode != http.StatusAccepted {
			return &TriggerRejectedError{StatusCode: reply.StatusCode, Body: string(reply.Body)}
		}
		return nil
	}, append(d.Timing.retryOpts(ctx), retry.OnRetry(func(n uint, err error) {
		logger.Info().Err(err).Int("attempt", int(n)+1).Dur("retry_in", d.Timing.interval()).Msg("Move attempt failed")
	}))...)
	if err != nil {
		return fmt.Errorf("failed to approve collection after %d attempts: %w", attempts, err)
	}
	logger.Info().Int("attempts", attempts).Msg("Collection moved from staging to published")
	return nil
}

// RepositoryMove waits for the version to become visible, resolves the
// staging and published repositories, then issues a single move.
type RepositoryMove struct {
	API    ApprovalAPI
	Timing ApprovalTiming
}

func (r *RepositoryMove) Name() string { return string(StrategyRepository) }

func (r *RepositoryMove) Approve(ctx context.Context, ref api.CollectionRef) error {
	logger := log.With().Str("component", "approve").Str("strategy", r.Name()).Str("collection", ref.String()).Logger()

	version, err := r.waitForVersion(ctx, ref, logger)
	if err != nil {
		return err
	}

	var staging, published string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		staging, err = r.repository(gctx, StagingRepository)
		return err
	})
	g.Go(func() (err error) {
		published, err = r.repository(gctx, PublishedRepository)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	reply, err := r.API.MoveCollectionVersion(ctx, staging, version, published)
	if err != nil {
		return fmt.Errorf("move collection: %w", err)
	}
	if reply.StatusCode != http.StatusAccepted {
		return fmt.Errorf("failed to move collection: %s", reply.Body)
	}
	logger.Info().Msg("Collection moved from staging to published")
	return nil
}

func (r *RepositoryMove) waitForVersion(ctx context.Context, ref api.CollectionRef, logger zerolog.Logger) (string, error) {
	var href string
	err := retry.Do(func() error {
		h, err := r.API.FindCollectionVersion(ctx, ref)
		if err != nil {
			return err
		}
		if h == "" {
			return ErrCollectionNotFound
		}
		href = h
		return nil
	}, append(r.Timing.retryOpts(ctx), retry.OnRetry(func(n uint, err error) {
		logger.Info().Err(err).Int("attempt", int(n)+1).Msg("Waiting for collection version to be available")
	}))...)
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrCollectionNotFound, err)
	}
	return href, nil
}

func (r *RepositoryMove) repository(ctx context.Context, name string) (string, error) {
	href, err := r.API.FindRepository(ctx, name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRepositoryNotFound, name, err)
	}
	if href == "" {
		return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, name)
	}
	return href, nil
}

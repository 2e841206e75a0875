package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

var (
	ErrTargetNotFound = errors.New("target not found")
	ErrNoTargets      = errors.New("no targets found")
)

// ResolveTargets selects the targets to operate on. A blank filter selects
// every target in discovery order; otherwise exactly the target whose name
// matches is returned.
func ResolveTargets(all []api.Target, filter string) ([]api.Target, error) {
	if strings.TrimSpace(filter) == "" {
		out := make([]api.Target, len(all))
		copy(out, all)
		return out, nil
	}
	for _, t := range all {
		if t.Name == filter {
			return []api.Target{t}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, filter)
}

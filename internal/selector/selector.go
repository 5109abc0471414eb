// Package selector streams candidate object paths from explicit paths or storage locations.
//
// Traversal is an alphabetical depth-first pre-order walk driven by an owned stack. A Policy
// decides, for every popped path, whether it is yielded, expanded or skipped.
package selector

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	zerrors "github.com/zzenonn/zpreserve/internal/errors"
	"github.com/zzenonn/zpreserve/internal/index"
	"github.com/zzenonn/zpreserve/internal/location"
)

// Options configures a Selector. Exactly one of Paths or Locations must be set.
type Options struct {
	Paths     []string
	Locations []string
	// Policy defaults to Plain.
	Policy Policy
	// Resolver maps logical to physical paths; defaults to location.IdentityResolver.
	Resolver location.PhysicalPathResolver
}

type pending struct {
	path   string
	target bool
}

// Selector yields object paths one at a time. It is not safe for concurrent use.
type Selector struct {
	registry  *location.Registry
	policy    Policy
	resolver  location.PhysicalPathResolver
	targets   []string
	locations []string
	stack     []pending
	seeded    bool
}

// New validates opts against the registry.
func New(registry *location.Registry, opts Options) (*Selector, error) {
	if len(opts.Paths) > 0 && len(opts.Locations) > 0 {
		return nil, zerrors.ConfigurationError("paths and storage locations are mutually exclusive")
	}
	if len(opts.Paths) == 0 && len(opts.Locations) == 0 {
		return nil, zerrors.ConfigurationError("either paths or storage locations must be provided")
	}

	s := &Selector{
		registry: registry,
		policy:   opts.Policy,
		resolver: opts.Resolver,
	}
	if s.policy == nil {
		s.policy = Plain
	}
	if s.resolver == nil {
		s.resolver = location.IdentityResolver{}
	}

	for _, p := range opts.Paths {
		target, err := location.AbsolutePath(p)
		if err != nil {
			return nil, err
		}
		s.targets = append(s.targets, target)
	}
	for _, name := range opts.Locations {
		loc, err := registry.Get(name)
		if err != nil {
			return nil, zerrors.ConfigurationError("unknown storage location %s", name)
		}
		s.locations = append(s.locations, name)
		s.targets = append(s.targets, loc.Path())
	}

	log.Debugf("Selector with %s policy over %v", s.policy, s.targets)
	return s, nil
}

// TargetPaths returns the paths the traversal starts from.
func (s *Selector) TargetPaths() []string {
	targets := make([]string, len(s.targets))
	copy(targets, s.targets)
	return targets
}

// Policy returns the traversal policy in use.
func (s *Selector) Policy() Policy {
	return s.policy
}

// Filter expresses the selection as an index filter.
func (s *Selector) Filter() index.Filter {
	if len(s.locations) > 0 {
		return index.Filter{Locations: append([]string(nil), s.locations...)}
	}
	return index.Filter{Paths: s.TargetPaths()}
}

func (s *Selector) push(p string, target bool) {
	s.stack = append(s.stack, pending{path: p, target: target})
}

func (s *Selector) pop() pending {
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return top
}

// NextPath returns the next candidate path, or iterator.Done when the traversal is exhausted.
// An error concerns only the path just popped; calling NextPath again resumes with the rest.
func (s *Selector) NextPath(ctx context.Context) (string, error) {
	if !s.seeded {
		for i := len(s.targets) - 1; i >= 0; i-- {
			s.push(s.targets[i], true)
		}
		s.seeded = true
	}

	for len(s.stack) > 0 {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		top := s.pop()
		p := top.path
		if top.target {
			resolved, err := s.policy.resolve(ctx, s, p)
			if err != nil {
				return "", err
			}
			p = resolved
		}

		action, out, err := s.policy.classify(ctx, s, p, top.target)
		if err != nil {
			return "", err
		}
		switch action {
		case yield:
			return out, nil
		case skip:
			continue
		case descend:
			children, err := s.policy.list(ctx, s, out)
			if err != nil {
				return "", err
			}
			sort.Strings(children)
			for i := len(children) - 1; i >= 0; i-- {
				s.push(children[i], false)
			}
		}
	}
	return "", iterator.Done
}

// ForEach calls fn for every remaining path. The first error ends the walk.
func (s *Selector) ForEach(ctx context.Context, fn func(path string) error) error {
	for {
		p, err := s.NextPath(ctx)
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
}

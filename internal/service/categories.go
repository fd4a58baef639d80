package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/jask/ledgersync/internal/database/repository"
)

// maxNameDistance is the largest edit distance, relative to the longer
// name, accepted as a fuzzy category match.
const maxNameDistance = 0.34

var ErrCategoryNotFound = errors.New("category not found")

// CategoryResolver turns user-typed category names into category ids.
type CategoryResolver struct {
	Categories *repository.CategoryRepo
}

// Resolve matches an id or name exactly (ignoring case) and falls back to
// the closest name by edit distance. Ties are reported as ambiguous.
func (r *CategoryResolver) Resolve(ctx context.Context, input string) (repository.Category, error) {
	cats, err := r.Categories.List(ctx)
	if err != nil {
		return repository.Category{}, err
	}
	return resolve(cats, input)
}

// ResolveAll resolves every input, stopping at the first failure.
func (r *CategoryResolver) ResolveAll(ctx context.Context, inputs []string) ([]string, error) {
	cats, err := r.Categories.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in) == "" {
			continue
		}
		c, err := resolve(cats, in)
		if err != nil {
			return nil, err
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func resolve(cats []repository.Category, input string) (repository.Category, error) {
	want := strings.ToLower(strings.TrimSpace(input))
	if want == "" {
		return repository.Category{}, fmt.Errorf("%w: empty name", ErrCategoryNotFound)
	}
	for _, c := range cats {
		if strings.ToLower(c.ID) == want || strings.ToLower(c.Name) == want {
			return c, nil
		}
	}

	best := -1
	bestScore := 2.0
	tie := false
	for i, c := range cats {
		score := distanceRatio(want, strings.ToLower(c.Name))
		switch {
		case score < bestScore:
			best, bestScore, tie = i, score, false
		case score == bestScore:
			tie = true
		}
	}
	if best < 0 || bestScore > maxNameDistance {
		return repository.Category{}, fmt.Errorf("%w: %q", ErrCategoryNotFound, input)
	}
	if tie {
		return repository.Category{}, fmt.Errorf("category %q is ambiguous", input)
	}
	return cats[best], nil
}

func distanceRatio(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(longest)
}

package approvalrule

import (
	"context"
	"log/slog"
)

// Resolver selects the rule that routes an expense.
type Resolver struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewResolver(repo RepositoryAPI, logger *slog.Logger) *Resolver {
	return &Resolver{repo: repo, logger: logger}
}

// Resolve returns the active rule for (companyID, category), or nil when none
// matches. No match is not an error: the caller falls back to the manager
// chain. Category comparison is exact.
func (r *Resolver) Resolve(ctx context.Context, companyID int64, category string) (*Rule, error) {
	rules, err := r.repo.FindActive(ctx, companyID, category)
	if err != nil {
		r.logger.Error("failed to resolve approval rule", "error", err, "company_id", companyID, "category", category)
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	if len(rules) > 1 {
		// Rule CRUD prevents this; rows predating the constraint may still exist.
		r.logger.Warn("multiple active approval rules, using lowest id",
			"company_id", companyID,
			"category", category,
			"rule_id", rules[0].ID,
			"count", len(rules))
	}
	return rules[0], nil
}

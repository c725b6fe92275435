package approvalrule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type RepositoryAPI interface {
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id int64) (*Rule, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*Rule, error)
	// FindActive returns active rules for (companyID, category) ordered by id.
	// Category matching is exact and case-sensitive.
	FindActive(ctx context.Context, companyID int64, category string) ([]*Rule, error)
	Update(ctx context.Context, r *Rule) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

// UserDirectory looks up users referenced by a rule.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

// UsageCounter reports how many pending expenses are routed by a rule.
type UsageCounter interface {
	CountPendingByRule(ctx context.Context, ruleID int64) (int64, error)
}

type Service struct {
	repo   RepositoryAPI
	users  UserDirectory
	usage  UsageCounter
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, users UserDirectory, usage UsageCounter, logger *slog.Logger) *Service {
	return &Service{repo: repo, users: users, usage: usage, logger: logger}
}

// GetByID is the unscoped read the approval engine uses for attached rules.
func (s *Service) GetByID(ctx context.Context, id int64) (*Rule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListRules(ctx context.Context, actor internal.ActorContext) ([]*Rule, error) {
	if !actor.IsAdmin() {
		return nil, internal.ErrForbiddenRole
	}
	rules, err := s.repo.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		s.logger.Error("failed to list approval rules", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}
	return rules, nil
}

func (s *Service) GetRule(ctx context.Context, actor internal.ActorContext, id int64) (*Rule, error) {
	if !actor.IsAdmin() {
		return nil, internal.ErrForbiddenRole
	}
	return s.scoped(ctx, actor, id)
}

func (s *Service) CreateRule(ctx context.Context, actor internal.ActorContext, dto CreateRuleDTO) (*Rule, error) {
	if !actor.IsAdmin() {
		s.logger.Warn("create approval rule denied", "actor_id", actor.UserID, "role", actor.Role)
		return nil, internal.ErrForbiddenRole
	}

	dto.normalize()
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	rule := &Rule{
		CompanyID:                 actor.CompanyID,
		Name:                      dto.Name,
		Category:                  dto.Category,
		IsManagerApprover:         boolOr(dto.IsManagerApprover, false),
		Approvers:                 nonNilApprovers(dto.Approvers),
		MinimumApprovalPercentage: intOr(dto.MinimumApprovalPercentage, DefaultMinimumApprovalPercentage),
		ConditionalApprovers:      nonNilConditionals(dto.ConditionalApprovers),
		IsActive:                  boolOr(dto.IsActive, true),
	}

	if err := s.validateMembers(ctx, rule); err != nil {
		return nil, err
	}
	if rule.IsActive {
		if err := s.ensureNoOtherActive(ctx, rule.CompanyID, rule.Category, 0); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		s.logger.Error("failed to create approval rule", "error", err, "company_id", actor.CompanyID, "category", rule.Category)
		return nil, err
	}

	s.logger.Info("approval rule created",
		"rule_id", rule.ID,
		"company_id", rule.CompanyID,
		"category", rule.Category,
		"approvers", len(rule.Approvers),
		"is_active", rule.IsActive)
	return rule, nil
}

func (s *Service) UpdateRule(ctx context.Context, actor internal.ActorContext, id int64, dto UpdateRuleDTO) (*Rule, error) {
	if !actor.IsAdmin() {
		return nil, internal.ErrForbiddenRole
	}

	dto.normalize()
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	rule, err := s.scoped(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	wasActive, oldCategory := rule.IsActive, rule.Category

	if dto.Name != nil {
		rule.Name = *dto.Name
	}
	if dto.Category != nil {
		rule.Category = *dto.Category
	}
	if dto.IsManagerApprover != nil {
		rule.IsManagerApprover = *dto.IsManagerApprover
	}
	if dto.Approvers != nil {
		rule.Approvers = nonNilApprovers(*dto.Approvers)
	}
	if dto.MinimumApprovalPercentage != nil {
		rule.MinimumApprovalPercentage = *dto.MinimumApprovalPercentage
	}
	if dto.ConditionalApprovers != nil {
		rule.ConditionalApprovers = nonNilConditionals(*dto.ConditionalApprovers)
	}
	if dto.IsActive != nil {
		rule.IsActive = *dto.IsActive
	}

	if err := s.validateMembers(ctx, rule); err != nil {
		return nil, err
	}
	if rule.IsActive && (!wasActive || rule.Category != oldCategory) {
		if err := s.ensureNoOtherActive(ctx, rule.CompanyID, rule.Category, rule.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		s.logger.Error("failed to update approval rule", "error", err, "rule_id", id)
		return nil, err
	}

	s.logger.Info("approval rule updated", "rule_id", rule.ID, "actor_id", actor.UserID)
	return s.repo.GetByID(ctx, rule.ID)
}

// DeleteRule refuses while pending expenses still route through the rule;
// deactivate it instead so in-flight chains keep their ordering.
func (s *Service) DeleteRule(ctx context.Context, actor internal.ActorContext, id int64) error {
	if !actor.IsAdmin() {
		return internal.ErrForbiddenRole
	}
	if _, err := s.scoped(ctx, actor, id); err != nil {
		return err
	}

	if s.usage != nil {
		pending, err := s.usage.CountPendingByRule(ctx, id)
		if err != nil {
			s.logger.Error("failed to count rule usage", "error", err, "rule_id", id)
			return err
		}
		if pending > 0 {
			s.logger.Warn("delete of in-use approval rule refused", "rule_id", id, "pending_expenses", pending)
			return internal.ErrRuleInUse
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error("failed to delete approval rule", "error", err, "rule_id", id)
		return err
	}
	s.logger.Info("approval rule deleted", "rule_id", id, "actor_id", actor.UserID)
	return nil
}

// ToggleRule flips isActive. Activating is subject to the one-active-rule
// constraint.
func (s *Service) ToggleRule(ctx context.Context, actor internal.ActorContext, id int64) (*Rule, error) {
	if !actor.IsAdmin() {
		return nil, internal.ErrForbiddenRole
	}
	rule, err := s.scoped(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	next := !rule.IsActive
	if next {
		if err := s.ensureNoOtherActive(ctx, rule.CompanyID, rule.Category, rule.ID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.SetActive(ctx, id, next); err != nil {
		s.logger.Error("failed to toggle approval rule", "error", err, "rule_id", id)
		return nil, err
	}
	rule.IsActive = next

	s.logger.Info("approval rule toggled", "rule_id", id, "is_active", next)
	return rule, nil
}

func (s *Service) scoped(ctx context.Context, actor internal.ActorContext, id int64) (*Rule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.CompanyID != actor.CompanyID {
		return nil, internal.ErrRuleNotFound
	}
	return rule, nil
}

func (s *Service) ensureNoOtherActive(ctx context.Context, companyID int64, category string, selfID int64) error {
	active, err := s.repo.FindActive(ctx, companyID, category)
	if err != nil {
		return fmt.Errorf("check active rules: %w", err)
	}
	for _, r := range active {
		if r.ID != selfID {
			s.logger.Warn("second active rule refused", "company_id", companyID, "category", category, "existing_rule_id", r.ID)
			return internal.ErrDuplicateActiveRule
		}
	}
	return nil
}

// validateMembers checks every referenced user belongs to the rule's company
// and appears at most once per list.
func (s *Service) validateMembers(ctx context.Context, rule *Rule) error {
	b := validation.NewBuilder()

	seen := make(map[int64]bool, len(rule.Approvers))
	for i, a := range rule.Approvers {
		field := fmt.Sprintf("approvers[%d].user_id", i)
		if seen[a.UserID] {
			b.Add(field, "approver is listed more than once", string(internal.ErrCodeInvalidApprover))
			continue
		}
		seen[a.UserID] = true
		if err := s.checkMember(ctx, rule.CompanyID, a.UserID); err != nil {
			if !isValidation(err) {
				return err
			}
			b.Add(field, err.Error(), string(internal.ErrCodeInvalidApprover))
		}
	}

	seenCond := make(map[int64]bool, len(rule.ConditionalApprovers))
	for i, c := range rule.ConditionalApprovers {
		field := fmt.Sprintf("conditional_approvers[%d].user_id", i)
		if seenCond[c.UserID] {
			b.Add(field, "conditional approver is listed more than once", string(internal.ErrCodeInvalidApprover))
			continue
		}
		seenCond[c.UserID] = true
		if err := s.checkMember(ctx, rule.CompanyID, c.UserID); err != nil {
			if !isValidation(err) {
				return err
			}
			b.Add(field, err.Error(), string(internal.ErrCodeInvalidApprover))
		}
	}

	return b.Err()
}

var errNotMember = internal.NewValidationError("user is not a member of this company", internal.ErrCodeInvalidApprover)

func (s *Service) checkMember(ctx context.Context, companyID, userID int64) error {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, internal.ErrUserNotFound) {
		return errNotMember
	}
	if err != nil {
		return err
	}
	if u.CompanyID != companyID {
		return errNotMember
	}
	return nil
}

func isValidation(err error) bool {
	appErr, ok := internal.IsAppError(err)
	return ok && appErr.Type == internal.ErrorTypeValidation
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func nonNilApprovers(a []Approver) []Approver {
	if a == nil {
		return []Approver{}
	}
	return append([]Approver{}, a...)
}

func nonNilConditionals(c []ConditionalApprover) []ConditionalApprover {
	if c == nil {
		return []ConditionalApprover{}
	}
	return append([]ConditionalApprover{}, c...)
}

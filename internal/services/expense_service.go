package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"expensa/internal/amqp"
	"expensa/internal/auth"
	"expensa/internal/cache"
	"expensa/internal/core"
	"expensa/internal/log"
	"expensa/internal/ports"
)

// ErrLimitExceeded is matched by LimitExceededError. It is a warning, not a
// failure: resubmitting with confirmation creates the expense.
var ErrLimitExceeded = errors.New("category limit exceeded")

// Publisher broadcasts that an owner's cached data changed.
type Publisher interface {
	PublishInvalidation(ctx context.Context, ownerID, reason string) error
}

// LimitWarning describes how far a pending expense would take its category
// over the monthly limit.
type LimitWarning struct {
	Category     core.CategorySnapshot
	CurrentTotal core.Money
	Candidate    core.Money
	Limit        core.Money
	Exceedance   core.Money
}

type LimitExceededError struct {
	Warning LimitWarning
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s: %s over by %s", ErrLimitExceeded, e.Warning.Category.Name, e.Warning.Exceedance)
}

func (e *LimitExceededError) Unwrap() error { return ErrLimitExceeded }

// AddExpenseInput is an expense as submitted by the client.
type AddExpenseInput struct {
	Amount        core.Money
	Description   string
	CategoryID    string
	Metadata      map[string]any
	ConfirmExceed bool
	// RequestID distinguishes deliberate repeats from double submissions.
	RequestID string
}

// storeTimeout bounds a store call that is shared between callers and so no
// longer follows any single request's context.
const storeTimeout = 15 * time.Second

// ExpenseService owns expense reads and writes. Lists are cached per owner and
// range; every mutation drops the owner's entries here and, through the
// publisher, on every other instance.
type ExpenseService struct {
	expenses   ports.ExpenseStore
	categories ports.CategoryStore
	publisher  Publisher
	lists      cache.Cache[[]core.Expense]
	flight     singleflight.Group
	loads      singleflight.Group
	logger     *log.Logger
	events     *log.StructuredLogger
	now        func() time.Time

	// genMu orders cache fills against invalidations. An owner's generation
	// moves on every invalidation; a load started under an older generation
	// is returned to its caller but never cached.
	genMu       sync.Mutex
	generations map[string]uint64
}

func NewExpenseService(expenses ports.ExpenseStore, categories ports.CategoryStore, publisher Publisher, lists cache.Cache[[]core.Expense], logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Nop()
	}
	logger = logger.WithComponent(log.ComponentExpense)
	return &ExpenseService{
		expenses:   expenses,
		categories: categories,
		publisher:  publisher,
		lists:      lists,
		logger:     logger,
		events:     log.NewStructuredLogger(logger),
		now:        time.Now,

		generations: make(map[string]uint64),
	}
}

// List returns the owner's expenses newest first, restricted to r when given.
func (s *ExpenseService) List(ctx context.Context, sess auth.Session, r *core.TimeRange) ([]core.Expense, error) {
	return s.list(ctx, sess.UserID, r)
}

func (s *ExpenseService) list(ctx context.Context, ownerID string, r *core.TimeRange) ([]core.Expense, error) {
	key := listKey(ownerID, r)
	if s.lists != nil {
		if cached, ok := s.lists.Get(key); ok {
			return cloneExpenses(cached), nil
		}
	}

	gen := s.generation(ownerID)
	v, err, _ := s.loads.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		loadCtx, cancel := detached(ctx)
		defer cancel()
		expenses, err := s.expenses.ListExpenses(loadCtx, ownerID, r)
		if err != nil {
			return nil, fmt.Errorf("list expenses: %w", err)
		}
		s.fill(ownerID, gen, key, expenses)
		return expenses, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneExpenses(v.([]core.Expense)), nil
}

func (s *ExpenseService) generation(ownerID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[ownerID]
}

// fill caches expenses unless the owner was invalidated since gen was read.
func (s *ExpenseService) fill(ownerID string, gen uint64, key string, expenses []core.Expense) {
	if s.lists == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[ownerID] != gen {
		return
	}
	s.lists.Set(key, expenses)
}

// detached keeps ctx's values but not its cancellation, so one caller going
// away does not fail the others sharing the call.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

// Add validates the input, checks the category's monthly limit unless the
// caller confirmed, and stores the expense. Identical concurrent submissions
// from one owner share a single store call.
func (s *ExpenseService) Add(ctx context.Context, sess auth.Session, in AddExpenseInput, loc *time.Location) (core.Expense, error) {
	ne := core.NewExpense{
		OwnerID:     sess.UserID,
		Amount:      in.Amount,
		Description: in.Description,
		Metadata:    in.Metadata,
	}
	if id := strings.TrimSpace(in.CategoryID); id != "" {
		ne.CategoryID = &id
	}
	ne = ne.Normalize()
	if err := ne.Validate(); err != nil {
		return core.Expense{}, err
	}
	if ne.CategoryID == nil {
		return core.Expense{}, core.ErrCategoryRequired
	}

	key := submissionKey(ne, in.RequestID, in.ConfirmExceed)
	v, err, shared := s.flight.Do(key, func() (any, error) {
		addCtx, cancel := detached(ctx)
		defer cancel()
		return s.add(addCtx, ne, in.ConfirmExceed, loc)
	})
	if err != nil {
		return core.Expense{}, err
	}
	if shared {
		s.logger.DebugContext(ctx, "Collapsed duplicate submission", log.FieldOwnerID, sess.UserID)
	}
	return v.(core.Expense), nil
}

func (s *ExpenseService) add(ctx context.Context, ne core.NewExpense, confirmed bool, loc *time.Location) (core.Expense, error) {
	if !confirmed {
		warning, err := s.check(ctx, ne.OwnerID, *ne.CategoryID, ne.Amount, loc)
		if err != nil {
			return core.Expense{}, err
		}
		if warning != nil {
			return core.Expense{}, &LimitExceededError{Warning: *warning}
		}
	}

	created, err := s.expenses.CreateExpense(ctx, ne)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	s.events.LogExpenseCreated(ctx, created.OwnerID, created.ID, created.Amount.Cents, created.CategoryID)
	s.invalidate(ctx, created.OwnerID, amqp.ReasonExpenseCreated)
	return created, nil
}

// Preview runs the pre-submit limit check without writing anything. A nil
// warning means the expense stays within the limit.
func (s *ExpenseService) Preview(ctx context.Context, sess auth.Session, amount core.Money, categoryID string, loc *time.Location) (*LimitWarning, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return nil, core.ErrCategoryRequired
	}
	return s.check(ctx, sess.UserID, categoryID, amount, loc)
}

func (s *ExpenseService) check(ctx context.Context, ownerID, categoryID string, amount core.Money, loc *time.Location) (*LimitWarning, error) {
	category, err := s.categories.GetCategory(ctx, ownerID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category.Limit == nil {
		return nil, nil
	}

	r, err := currentMonth(s.now(), loc)
	if err != nil {
		return nil, err
	}
	expenses, err := s.list(ctx, ownerID, &r)
	if err != nil {
		return nil, err
	}

	current := core.TotalsByCategory(expenses)[category.ID]
	exceedance := core.PendingExceedance(current, amount, category.Limit)
	if exceedance.Cents == 0 {
		return nil, nil
	}

	s.events.LogLimitWarning(ctx, ownerID, category.ID, amount.Cents, exceedance.Cents)
	return &LimitWarning{
		Category:     category.Snapshot(),
		CurrentTotal: current,
		Candidate:    amount,
		Limit:        *category.Limit,
		Exceedance:   exceedance,
	}, nil
}

// Delete removes the expense. Deleting a missing expense succeeds.
func (s *ExpenseService) Delete(ctx context.Context, sess auth.Session, id string) error {
	if err := s.expenses.DeleteExpense(ctx, sess.UserID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.invalidate(ctx, sess.UserID, amqp.ReasonExpenseDeleted)
	return nil
}

// Invalidate drops the owner's cached lists on this instance only. Loads
// already in flight for the owner will not be cached.
func (s *ExpenseService) Invalidate(ownerID string) int {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[ownerID]++
	if s.lists == nil {
		return 0
	}
	return s.lists.DeletePrefix(ownerID + "|")
}

func (s *ExpenseService) invalidate(ctx context.Context, ownerID, reason string) {
	n := s.Invalidate(ownerID)
	s.logger.DebugContext(ctx, "Invalidated expense lists",
		log.FieldOperation, log.OpInvalidate,
		log.FieldOwnerID, ownerID,
		log.FieldCount, n)

	if s.publisher == nil {
		return
	}
	// The store write already succeeded; other instances fall back to TTL expiry.
	if err := s.publisher.PublishInvalidation(ctx, ownerID, reason); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish invalidation",
			log.FieldOwnerID, ownerID,
			log.FieldError, err)
	}
}

func listKey(ownerID string, r *core.TimeRange) string {
	if r == nil {
		return ownerID + "|all"
	}
	return ownerID + "|" + strconv.FormatInt(r.Start.UnixMilli(), 10) + "-" + strconv.FormatInt(r.End.UnixMilli(), 10)
}

func submissionKey(ne core.NewExpense, requestID string, confirmed bool) string {
	return strings.Join([]string{
		ne.OwnerID,
		strconv.FormatInt(ne.Amount.Cents, 10),
		ne.Description,
		*ne.CategoryID,
		requestID,
		strconv.FormatBool(confirmed),
	}, "\x00")
}

func currentMonth(now time.Time, loc *time.Location) (core.TimeRange, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	return core.MonthRange(int(now.Month())-1, now.Year(), loc)
}

func cloneExpenses(in []core.Expense) []core.Expense {
	out := make([]core.Expense, len(in))
	copy(out, in)
	return out
}

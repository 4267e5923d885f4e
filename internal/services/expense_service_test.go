package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensa/internal/auth"
	"expensa/internal/cache"
	"expensa/internal/core"
	"expensa/internal/ports"
	"expensa/internal/storage/memory"
)

type fakePublisher struct {
	mu     sync.Mutex
	calls  []string
	failed bool
}

func (p *fakePublisher) PublishInvalidation(_ context.Context, ownerID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, ownerID+":"+reason)
	if p.failed {
		return errors.New("broker down")
	}
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// countingStore counts list calls so tests can observe cache hits.
type countingStore struct {
	ports.Store
	mu    sync.Mutex
	lists int
}

func (s *countingStore) ListExpenses(ctx context.Context, ownerID string, r *core.TimeRange) ([]core.Expense, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	return s.Store.ListExpenses(ctx, ownerID, r)
}

type fixture struct {
	store     *countingStore
	publisher *fakePublisher
	expenses  *ExpenseService
	sess      auth.Session
	food      core.Category
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := &countingStore{Store: memory.New()}

	user, err := store.CreateUser(ctx, "ada@example.com", "hash", nil)
	require.NoError(t, err)
	food, err := store.CreateCategory(ctx, core.NewCategory{
		OwnerID: user.ID, Name: "Food", Color: "#F59E0B",
		Limit: &core.Money{Cents: 50000},
	})
	require.NoError(t, err)

	publisher := &fakePublisher{}
	svc := NewExpenseService(store, store, publisher, cache.NewLRUCache[[]core.Expense](10, time.Minute), nil)
	now := time.Now()
	svc.now = func() time.Time { return now }

	return &fixture{
		store:     store,
		publisher: publisher,
		expenses:  svc,
		sess:      auth.Session{UserID: user.ID, Email: user.Email},
		food:      food,
		now:       now,
	}
}

func (f *fixture) add(t *testing.T, cents int64, desc string) core.Expense {
	t.Helper()
	e, err := f.expenses.Add(context.Background(), f.sess, AddExpenseInput{
		Amount:        core.Money{Cents: cents},
		Description:   desc,
		CategoryID:    f.food.ID,
		ConfirmExceed: true,
	}, time.Local)
	require.NoError(t, err)
	return e
}

func TestAddValidatesBeforeStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   AddExpenseInput
		want error
	}{
		{"zero amount", AddExpenseInput{Description: "x", CategoryID: f.food.ID}, core.ErrInvalidAmount},
		{"blank description", AddExpenseInput{Amount: core.Money{Cents: 100}, Description: "  ", CategoryID: f.food.ID}, core.ErrEmptyDescription},
		{"no category", AddExpenseInput{Amount: core.Money{Cents: 100}, Description: "lunch"}, core.ErrCategoryRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.expenses.Add(ctx, f.sess, tt.in, time.Local)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	all, err := f.store.Store.ListExpenses(ctx, f.sess.UserID, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Zero(t, f.publisher.count())
}

func TestAddWarnsWhenMonthlyLimitExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 45000, "groceries")

	in := AddExpenseInput{Amount: core.Money{Cents: 10000}, Description: "dinner", CategoryID: f.food.ID}
	_, err := f.expenses.Add(ctx, f.sess, in, time.Local)
	require.ErrorIs(t, err, ErrLimitExceeded)

	var limitErr *LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	w := limitErr.Warning
	assert.Equal(t, int64(5000), w.Exceedance.Cents)
	assert.Equal(t, int64(45000), w.CurrentTotal.Cents)
	assert.Equal(t, int64(10000), w.Candidate.Cents)
	assert.Equal(t, int64(50000), w.Limit.Cents)
	assert.Equal(t, "Food", w.Category.Name)

	in.ConfirmExceed = true
	created, err := f.expenses.Add(ctx, f.sess, in, time.Local)
	require.NoError(t, err)
	require.NotNil(t, created.Category)
	assert.Equal(t, f.food.ID, created.Category.ID)
}

func TestAddWithinLimitDoesNotWarn(t *testing.T) {
	f := newFixture(t)
	f.add(t, 40000, "groceries")

	_, err := f.expenses.Add(context.Background(), f.sess, AddExpenseInput{
		Amount: core.Money{Cents: 10000}, Description: "dinner", CategoryID: f.food.ID,
	}, time.Local)
	assert.NoError(t, err)
}

func TestLimitIgnoresPreviousMonths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.food.ID
	_, err := f.store.CreateExpense(ctx, core.NewExpense{
		OwnerID: f.sess.UserID, Amount: core.Money{Cents: 49000}, Description: "last month",
		CategoryID: &cat, CreatedAt: f.now.AddDate(0, -1, -f.now.Day()),
	})
	require.NoError(t, err)

	w, err := f.expenses.Preview(ctx, f.sess, core.Money{Cents: 10000}, f.food.ID, time.Local)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, 45000, "groceries")

	w, err := f.expenses.Preview(ctx, f.sess, core.Money{Cents: 10000}, f.food.ID, time.Local)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, int64(5000), w.Exceedance.Cents)

	_, err = f.expenses.Preview(ctx, f.sess, core.Money{}, f.food.ID, time.Local)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = f.expenses.Preview(ctx, f.sess, core.Money{Cents: 1}, "missing", time.Local)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListIsCachedAndInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.expenses.List(ctx, f.sess, nil)
	require.NoError(t, err)
	_, err = f.expenses.List(ctx, f.sess, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.lists)

	created := f.add(t, 1200, "coffee")
	assert.Equal(t, 1, f.publisher.count())

	list, err := f.expenses.List(ctx, f.sess, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	require.NoError(t, f.expenses.Delete(ctx, f.sess, created.ID))
	list, err = f.expenses.List(ctx, f.sess, nil)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 2, f.publisher.count())

	// remote invalidation only touches the local cache
	before := f.store.lists
	assert.Equal(t, 1, f.expenses.Invalidate(f.sess.UserID))
	_, err = f.expenses.List(ctx, f.sess, nil)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.store.lists)
	assert.Equal(t, 2, f.publisher.count())
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.failed = true

	e := f.add(t, 500, "snack")
	assert.NotEmpty(t, e.ID)
}

func TestDeleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.expenses.Delete(context.Background(), f.sess, "does-not-exist"))
}

// gatedStore blocks CreateExpense until released.
type gatedStore struct {
	ports.Store
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	creates int
}

func (s *gatedStore) CreateExpense(ctx context.Context, ne core.NewExpense) (core.Expense, error) {
	s.mu.Lock()
	s.creates++
	first := s.creates == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
	}
	<-s.release
	if err := ctx.Err(); err != nil {
		return core.Expense{}, err
	}
	return s.Store.CreateExpense(ctx, ne)
}

func TestConcurrentDuplicateSubmissionsCollapse(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	user, err := mem.CreateUser(ctx, "ada@example.com", "hash", nil)
	require.NoError(t, err)
	cat, err := mem.CreateCategory(ctx, core.NewCategory{OwnerID: user.ID, Name: "Food", Color: "#F59E0B"})
	require.NoError(t, err)

	store := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewExpenseService(store, store, nil, nil, nil)
	sess := auth.Session{UserID: user.ID}
	in := AddExpenseInput{Amount: core.Money{Cents: 900}, Description: "taxi", CategoryID: cat.ID, RequestID: "r1"}

	results := make([]core.Expense, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], _ = svc.Add(ctx, sess, in, time.Local)
	}()
	<-store.entered
	go func() {
		defer wg.Done()
		results[1], _ = svc.Add(ctx, sess, in, time.Local)
	}()
	time.Sleep(100 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, 1, store.creates)
	assert.NotEmpty(t, results[0].ID)
	assert.Equal(t, results[0].ID, results[1].ID)

	// a new request id is a deliberate repeat
	in.RequestID = "r2"
	again, err := svc.Add(ctx, sess, in, time.Local)
	require.NoError(t, err)
	assert.NotEqual(t, results[0].ID, again.ID)
}

func TestDuplicateSurvivesFirstCallerCancel(t *testing.T) {
	mem := memory.New()
	user, err := mem.CreateUser(context.Background(), "ada@example.com", "hash", nil)
	require.NoError(t, err)
	cat, err := mem.CreateCategory(context.Background(), core.NewCategory{OwnerID: user.ID, Name: "Food", Color: "#F59E0B"})
	require.NoError(t, err)

	store := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewExpenseService(store, store, nil, nil, nil)
	sess := auth.Session{UserID: user.ID}
	in := AddExpenseInput{Amount: core.Money{Cents: 900}, Description: "taxi", CategoryID: cat.ID, RequestID: "r1"}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.Add(firstCtx, sess, in, time.Local)
	}()
	<-store.entered
	go func() {
		defer wg.Done()
		_, errs[1] = svc.Add(context.Background(), sess, in, time.Local)
	}()
	time.Sleep(50 * time.Millisecond)
	cancelFirst()
	close(store.release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 1, store.creates)
}

// heldListStore answers the first ListExpenses from a snapshot taken on entry
// and holds the reply until released, so a write can land in between.
type heldListStore struct {
	ports.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *heldListStore) ListExpenses(ctx context.Context, ownerID string, r *core.TimeRange) ([]core.Expense, error) {
	first := false
	s.once.Do(func() { first = true })
	snapshot, err := s.Store.ListExpenses(ctx, ownerID, r)
	if first {
		close(s.entered)
		<-s.release
	}
	return snapshot, err
}

func TestInFlightListDoesNotCacheOverWrite(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	user, err := mem.CreateUser(ctx, "ada@example.com", "hash", nil)
	require.NoError(t, err)
	food, err := mem.CreateCategory(ctx, core.NewCategory{
		OwnerID: user.ID, Name: "Food", Color: "#F59E0B",
		Limit: &core.Money{Cents: 50000},
	})
	require.NoError(t, err)

	store := &heldListStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewExpenseService(store, store, nil, cache.NewLRUCache[[]core.Expense](10, time.Minute), nil)
	now := time.Now()
	svc.now = func() time.Time { return now }
	sess := auth.Session{UserID: user.ID}

	month, err := currentMonth(now, time.Local)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		stale, err := svc.List(ctx, sess, &month)
		assert.NoError(t, err)
		assert.Empty(t, stale)
	}()
	<-store.entered

	_, err = svc.Add(ctx, sess, AddExpenseInput{
		Amount: core.Money{Cents: 45000}, Description: "groceries", CategoryID: food.ID, ConfirmExceed: true,
	}, time.Local)
	require.NoError(t, err)

	close(store.release)
	<-done

	_, err = svc.Add(ctx, sess, AddExpenseInput{
		Amount: core.Money{Cents: 10000}, Description: "dinner", CategoryID: food.ID,
	}, time.Local)
	var limitErr *LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, int64(45000), limitErr.Warning.CurrentTotal.Cents)
	assert.Equal(t, int64(5000), limitErr.Warning.Exceedance.Cents)
}

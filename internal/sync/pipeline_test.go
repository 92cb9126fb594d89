package sync

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khmerpos/internal/core/actor"
	"khmerpos/internal/core/apperror"
	"khmerpos/internal/core/id"
	"khmerpos/internal/core/types"
	"khmerpos/internal/domain/cashsession"
	"khmerpos/internal/domain/ledger"
	"khmerpos/internal/domain/ops"
	"khmerpos/internal/domain/policy"
	"khmerpos/internal/domain/ports"
	"khmerpos/internal/domain/sale"
)

// --- in-memory fakes ---

type fakeTxm struct {
	savepoints  []string
	rollbacks   []string
	releases    []string
	commits     int
	abortedErrs []error
}

func (f *fakeTxm) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		f.abortedErrs = append(f.abortedErrs, err)
		return err
	}
	f.commits++
	return nil
}

func (f *fakeTxm) Savepoint(_ context.Context, name string) error {
	f.savepoints = append(f.savepoints, name)
	return nil
}

func (f *fakeTxm) RollbackTo(_ context.Context, name string) error {
	f.rollbacks = append(f.rollbacks, name)
	return nil
}

func (f *fakeTxm) Release(_ context.Context, name string) error {
	f.releases = append(f.releases, name)
	return nil
}

type fakeLedger struct {
	records map[string]*ledger.Record
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*ledger.Record)}
}

func ledgerKey(tenantID id.ID, opID string) string {
	return tenantID.String() + "|" + opID
}

func (f *fakeLedger) FindByKey(_ context.Context, tenantID id.ID, clientOperationID string) (*ledger.Record, error) {
	rec, ok := f.records[ledgerKey(tenantID, clientOperationID)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeLedger) InsertProcessing(_ context.Context, rec *ledger.Record) (*ledger.Record, error) {
	key := ledgerKey(rec.TenantID, rec.ClientOperationID)
	if _, ok := f.records[key]; ok {
		return nil, nil
	}
	cp := *rec
	cp.CreatedAt = time.Now()
	f.records[key] = &cp
	return &cp, nil
}

func (f *fakeLedger) MarkApplied(_ context.Context, tenantID id.ID, clientOperationID string, result json.RawMessage) error {
	rec, ok := f.records[ledgerKey(tenantID, clientOperationID)]
	if !ok || rec.Status != ledger.StatusProcessing {
		return nil
	}
	rec.Status = ledger.StatusApplied
	rec.Result = result
	return nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, tenantID id.ID, clientOperationID, errorCode, errorMessage string) error {
	rec, ok := f.records[ledgerKey(tenantID, clientOperationID)]
	if !ok || rec.Status != ledger.StatusProcessing {
		return nil
	}
	rec.Status = ledger.StatusFailed
	rec.ErrorCode = errorCode
	rec.ErrorMessage = errorMessage
	return nil
}

type fakeSaleRepo struct {
	sales map[string]*sale.Sale // keyed by client uuid
}

func newFakeSaleRepo() *fakeSaleRepo {
	return &fakeSaleRepo{sales: make(map[string]*sale.Sale)}
}

func (f *fakeSaleRepo) Create(_ context.Context, s *sale.Sale) error {
	f.sales[s.ClientUUID] = s
	return nil
}

func (f *fakeSaleRepo) GetByID(_ context.Context, _ id.ID, saleID id.ID) (*sale.Sale, error) {
	for _, s := range f.sales {
		if s.ID == saleID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSaleRepo) FindByClientUUID(_ context.Context, _ id.ID, clientUUID string) (*sale.Sale, error) {
	s, ok := f.sales[clientUUID]
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (f *fakeSaleRepo) Update(_ context.Context, s *sale.Sale) error {
	f.sales[s.ClientUUID] = s
	return nil
}

type fakeDrawer struct {
	usd types.Money
	khr types.Money
}

func (f *fakeDrawer) AddExpectedCash(_ context.Context, _, _ id.ID, usd, khr types.Money) error {
	f.usd = f.usd.Add(usd)
	f.khr = f.khr.Add(khr)
	return nil
}

type fakeSessionRepo struct {
	sessions map[id.ID]*cashsession.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[id.ID]*cashsession.Session)}
}

func (f *fakeSessionRepo) Create(_ context.Context, s *cashsession.Session) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, tenantID, sessionID id.ID) (*cashsession.Session, error) {
	s, ok := f.sessions[sessionID]
	if !ok || s.TenantID != tenantID {
		return nil, nil
	}
	return s, nil
}

func (f *fakeSessionRepo) FindOpen(_ context.Context, tenantID, branchID id.ID, registerID *id.ID) (*cashsession.Session, error) {
	for _, s := range f.sessions {
		if s.TenantID != tenantID || s.BranchID != branchID || s.Status != cashsession.StatusOpen {
			continue
		}
		if registerID == nil {
			if s.RegisterID == nil {
				return s, nil
			}
			continue
		}
		if s.RegisterID != nil && *s.RegisterID == *registerID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) Update(_ context.Context, s *cashsession.Session) error {
	f.sessions[s.ID] = s
	return nil
}

type fakeRegisterRepo struct {
	registers map[id.ID]*cashsession.Register
}

func (f *fakeRegisterRepo) GetByID(_ context.Context, tenantID, branchID, registerID id.ID) (*cashsession.Register, error) {
	r, ok := f.registers[registerID]
	if !ok || r.TenantID != tenantID || r.BranchID != branchID {
		return nil, nil
	}
	return r, nil
}

type fakePolicies struct {
	itemPolicies  []ports.DiscountPolicy
	orderPolicies []ports.DiscountPolicy
}

func (f *fakePolicies) GetCurrentFxRate(_ context.Context, _ id.ID) (ports.FxRate, error) {
	return ports.FxRate{Rate: decimal.NewFromInt(4100), AsOf: time.Now()}, nil
}

func (f *fakePolicies) GetVatPolicy(_ context.Context, _ id.ID) (ports.VatPolicy, error) {
	return ports.VatPolicy{Enabled: true, Rate: types.MustMoney("0.10")}, nil
}

func (f *fakePolicies) GetRoundingPolicy(_ context.Context, _ id.ID) (ports.RoundingPolicy, error) {
	return ports.RoundingPolicy{Enabled: true, GranularityKhr: 100}, nil
}

func (f *fakePolicies) GetItemDiscountPolicies(_ context.Context, _, _, _ id.ID) ([]ports.DiscountPolicy, error) {
	return f.itemPolicies, nil
}

func (f *fakePolicies) GetOrderDiscountPolicies(_ context.Context, _, _ id.ID) ([]ports.DiscountPolicy, error) {
	return f.orderPolicies, nil
}

type fakeMenu struct {
	items map[id.ID]*ports.MenuItem
}

func (f *fakeMenu) GetMenuItem(_ context.Context, ref ports.MenuItemRef) (*ports.MenuItem, error) {
	item, ok := f.items[ref.MenuItemID]
	if !ok {
		return nil, nil
	}
	return item, nil
}

type fakeGuard struct {
	frozen bool
}

func (f *fakeGuard) AssertBranchActive(_ context.Context, _, branchID id.ID) error {
	if f.frozen {
		return apperror.NewBranchFrozen(branchID)
	}
	return nil
}

type fakeAudit struct {
	entries []ports.AuditEntry
}

func (f *fakeAudit) Write(_ context.Context, entry ports.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeEvents struct {
	published []ports.Event
}

func (f *fakeEvents) Publish(_ context.Context, event ports.Event) error {
	f.published = append(f.published, event)
	return nil
}

// --- test harness ---

type harness struct {
	pipeline *Pipeline
	txm      *fakeTxm
	ledger   *fakeLedger
	sales    *fakeSaleRepo
	drawer   *fakeDrawer
	sessions *fakeSessionRepo
	menu     *fakeMenu
	guard    *fakeGuard
	audit    *fakeAudit
	events   *fakeEvents
	act      actor.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	engine, err := policy.NewEngine()
	require.NoError(t, err)

	h := &harness{
		txm:      &fakeTxm{},
		ledger:   newFakeLedger(),
		sales:    newFakeSaleRepo(),
		drawer:   &fakeDrawer{usd: decimal.Zero, khr: decimal.Zero},
		sessions: newFakeSessionRepo(),
		menu:     &fakeMenu{items: make(map[id.ID]*ports.MenuItem)},
		guard:    &fakeGuard{},
		audit:    &fakeAudit{},
		events:   &fakeEvents{},
		act: actor.Context{
			TenantID:   id.New(),
			BranchID:   id.New(),
			EmployeeID: id.New(),
			Role:       "cashier",
		},
	}

	h.pipeline = NewPipeline(Config{
		TxManager:      h.txm,
		Ledger:         h.ledger,
		Sales:          h.sales,
		CashDrawer:     h.drawer,
		Sessions:       h.sessions,
		Registers:      &fakeRegisterRepo{registers: make(map[id.ID]*cashsession.Register)},
		Policies:       &fakePolicies{},
		Menu:           h.menu,
		BranchGuard:    h.guard,
		AuditWriter:    h.audit,
		Events:         h.events,
		DiscountEngine: engine,
	})
	return h
}

func (h *harness) addMenuItem(priceUsd string) id.ID {
	itemID := id.New()
	h.menu.items[itemID] = &ports.MenuItem{ID: itemID, Name: "iced coffee", PriceUsd: types.MustMoney(priceUsd)}
	return itemID
}

func saleOp(opID, clientSaleUUID string, itemID id.ID, qty int) ops.Operation {
	payload := `{"clientSaleUuid":"` + clientSaleUUID + `","saleType":"DINE_IN",` +
		`"lines":[{"menuItemId":"` + itemID.String() + `","quantity":` + strconv.Itoa(qty) + `}],` +
		`"tenderCurrency":"USD","paymentMethod":"CASH","cashReceivedUsd":"20.00"}`
	return ops.Operation{
		ClientOperationID: opID,
		Type:              ops.TypeSaleFinalized,
		OccurredAt:        time.Now().UTC(),
		Payload:           json.RawMessage(payload),
	}
}

func sessionOpenOp(opID string) ops.Operation {
	return ops.Operation{
		ClientOperationID: opID,
		Type:              ops.TypeCashSessionOpened,
		OccurredAt:        time.Now().UTC(),
		Payload:           json.RawMessage(`{"openingFloatUsd":"50.00","openingFloatKhr":"20000"}`),
	}
}

func sessionCloseOp(opID string, sessionID id.ID, countedUsd, countedKhr string) ops.Operation {
	payload := `{"sessionId":"` + sessionID.String() + `",` +
		`"countedCashUsd":"` + countedUsd + `","countedCashKhr":"` + countedKhr + `"}`
	return ops.Operation{
		ClientOperationID: opID,
		Type:              ops.TypeCashSessionClosed,
		OccurredAt:        time.Now().UTC(),
		Payload:           json.RawMessage(payload),
	}
}

// --- tests ---

func TestApplyBatch_SaleFinalized(t *testing.T) {
	h := newHarness(t)
	itemID := h.addMenuItem("1.50")

	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		saleOp("op-1", "sale-1", itemID, 2),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Nil(t, res.StoppedAtIndex)

	out := res.Results[0]
	assert.Equal(t, ledger.StatusApplied, out.Status)
	assert.False(t, out.Deduped)

	var stored SaleFinalizedResult
	require.NoError(t, json.Unmarshal(out.Result, &stored))
	assert.True(t, stored.TotalUsd.Equal(types.MustMoney("3.30")), "total usd = %s", stored.TotalUsd)
	assert.Equal(t, int64(13530), stored.TotalKhr)
	assert.True(t, stored.ChangeUsd.Equal(types.MustMoney("16.70")), "change usd = %s", stored.ChangeUsd)

	// The sale is persisted and the cash drawer credited with the USD total.
	persisted, err := h.sales.FindByClientUUID(context.Background(), h.act.TenantID, "sale-1")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, sale.StateFinalized, persisted.State)
	assert.True(t, h.drawer.usd.Equal(types.MustMoney("3.30")), "drawer usd = %s", h.drawer.usd)
	assert.True(t, h.drawer.khr.IsZero())

	// Ledger terminal, audit SUCCESS, event in the outbox, savepoint released.
	rec, err := h.ledger.FindByKey(context.Background(), h.act.TenantID, "op-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.StatusApplied, rec.Status)

	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, ports.AuditOutcomeSuccess, h.audit.entries[0].Outcome)
	assert.Equal(t, "sale", h.audit.entries[0].ResourceType)

	require.Len(t, h.events.published, 1)
	assert.Equal(t, EventSaleFinalized, h.events.published[0].Type)

	assert.Equal(t, []string{savepointName}, h.txm.savepoints)
	assert.Equal(t, []string{savepointName}, h.txm.releases)
	assert.Empty(t, h.txm.rollbacks)
	assert.Equal(t, 1, h.txm.commits)
}

func TestApplyBatch_ReplayIsDeduped(t *testing.T) {
	h := newHarness(t)
	itemID := h.addMenuItem("1.50")
	op := saleOp("op-1", "sale-1", itemID, 1)

	first, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{op})
	require.NoError(t, err)
	require.Len(t, first.Results, 1)

	second, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{op})
	require.NoError(t, err)
	require.Len(t, second.Results, 1)

	replay := second.Results[0]
	assert.True(t, replay.Deduped)
	assert.Equal(t, ledger.StatusApplied, replay.Status)
	assert.JSONEq(t, string(first.Results[0].Result), string(replay.Result))

	// The replay produced no second sale, event or audit entry.
	assert.Len(t, h.sales.sales, 1)
	assert.Len(t, h.events.published, 1)
	assert.Len(t, h.audit.entries, 1)
	assert.True(t, h.drawer.usd.Equal(types.MustMoney("1.65")), "drawer usd = %s", h.drawer.usd)
}

func TestApplyBatch_FrozenBranchDenied(t *testing.T) {
	h := newHarness(t)
	itemID := h.addMenuItem("1.50")
	h.guard.frozen = true

	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		saleOp("op-1", "sale-1", itemID, 1),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	out := res.Results[0]
	assert.Equal(t, ledger.StatusFailed, out.Status)
	assert.Equal(t, apperror.CodeBranchFrozen, out.ErrorCode)
	require.NotNil(t, res.StoppedAtIndex)
	assert.Equal(t, 0, *res.StoppedAtIndex)

	// The rejection is recorded on the ledger and audited as a denial.
	rec, err := h.ledger.FindByKey(context.Background(), h.act.TenantID, "op-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.StatusFailed, rec.Status)
	assert.Equal(t, apperror.CodeBranchFrozen, rec.ErrorCode)

	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, ports.AuditOutcomeDenied, h.audit.entries[0].Outcome)
	assert.NotEmpty(t, h.audit.entries[0].DenialReason)

	assert.Empty(t, h.sales.sales)
	assert.Empty(t, h.events.published)
	// The guard fires before the savepoint, so no domain rollback happens.
	assert.Empty(t, h.txm.savepoints)
	assert.Equal(t, 1, h.txm.commits)
}

func TestApplyBatch_BranchMismatch(t *testing.T) {
	h := newHarness(t)
	itemID := h.addMenuItem("1.50")

	other := id.New()
	op := saleOp("op-1", "sale-1", itemID, 1)
	op.BranchID = &other

	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{op})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, ledger.StatusFailed, res.Results[0].Status)
	assert.Equal(t, apperror.CodeBranchMismatch, res.Results[0].ErrorCode)
}

func TestApplyBatch_DuplicateSaleRollsBackSavepoint(t *testing.T) {
	h := newHarness(t)
	itemID := h.addMenuItem("1.50")

	first, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		saleOp("op-1", "shared-uuid", itemID, 1),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusApplied, first.Results[0].Status)

	// A different operation reusing the client sale uuid fails after the
	// savepoint was taken, so the domain writes get rolled back.
	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		saleOp("op-2", "shared-uuid", itemID, 1),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, ledger.StatusFailed, res.Results[0].Status)
	assert.Equal(t, apperror.CodeDuplicateSale, res.Results[0].ErrorCode)

	assert.Equal(t, []string{savepointName, savepointName}, h.txm.savepoints)
	assert.Equal(t, []string{savepointName}, h.txm.rollbacks)
	assert.Equal(t, []string{savepointName}, h.txm.releases)
}

func TestApplyBatch_HaltsAfterFailure(t *testing.T) {
	h := newHarness(t)
	itemID := h.addMenuItem("1.50")
	unknown := id.New()

	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		saleOp("op-1", "sale-1", unknown, 1), // unknown menu item fails
		saleOp("op-2", "sale-2", itemID, 1),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, ledger.StatusFailed, res.Results[0].Status)
	assert.Equal(t, apperror.CodeDependencyMissing, res.Results[0].ErrorCode)
	require.NotNil(t, res.StoppedAtIndex)
	assert.Equal(t, 0, *res.StoppedAtIndex)

	// The second operation never reached the ledger.
	rec, err := h.ledger.FindByKey(context.Background(), h.act.TenantID, "op-2")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestApplyBatch_MidBatchFailureKeepsPriorApply(t *testing.T) {
	h := newHarness(t)
	itemID := h.addMenuItem("1.50")
	unknown := id.New()

	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		saleOp("op-1", "sale-1", itemID, 1),
		saleOp("op-2", "sale-2", unknown, 1), // unknown menu item fails
		saleOp("op-3", "sale-3", itemID, 1),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	require.NotNil(t, res.StoppedAtIndex)
	assert.Equal(t, 1, *res.StoppedAtIndex)

	// The first operation's apply survives the later failure untouched.
	assert.Equal(t, ledger.StatusApplied, res.Results[0].Status)
	rec, err := h.ledger.FindByKey(context.Background(), h.act.TenantID, "op-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, ledger.StatusApplied, rec.Status)

	persisted, err := h.sales.FindByClientUUID(context.Background(), h.act.TenantID, "sale-1")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, sale.StateFinalized, persisted.State)

	// The failing operation is terminal FAILED with no aggregate row.
	assert.Equal(t, ledger.StatusFailed, res.Results[1].Status)
	assert.Equal(t, apperror.CodeDependencyMissing, res.Results[1].ErrorCode)
	missing, err := h.sales.FindByClientUUID(context.Background(), h.act.TenantID, "sale-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.Len(t, h.sales.sales, 1)

	// The halt kept the third operation out of the ledger entirely.
	rec, err = h.ledger.FindByKey(context.Background(), h.act.TenantID, "op-3")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestApplyBatch_ReplayedFailureHaltsAgain(t *testing.T) {
	h := newHarness(t)
	itemID := h.addMenuItem("1.50")
	unknown := id.New()
	badOp := saleOp("op-1", "sale-1", unknown, 1)

	_, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{badOp})
	require.NoError(t, err)

	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		badOp,
		saleOp("op-2", "sale-2", itemID, 1),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	replay := res.Results[0]
	assert.True(t, replay.Deduped)
	assert.Equal(t, ledger.StatusFailed, replay.Status)
	assert.Equal(t, apperror.CodeDependencyMissing, replay.ErrorCode)
	require.NotNil(t, res.StoppedAtIndex)
	assert.Equal(t, 0, *res.StoppedAtIndex)

	// No re-execution: one failure audit entry from the original apply only.
	assert.Len(t, h.audit.entries, 1)
}

func TestApplyBatch_SessionOpenThenDuplicate(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		sessionOpenOp("op-1"),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusApplied, res.Results[0].Status)

	var opened CashSessionOpenedResult
	require.NoError(t, json.Unmarshal(res.Results[0].Result, &opened))

	sess, err := h.sessions.GetByID(context.Background(), h.act.TenantID, opened.SessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, cashsession.StatusOpen, sess.Status)
	assert.True(t, sess.ExpectedCashUsd.Equal(types.MustMoney("50.00")))

	require.Len(t, h.events.published, 1)
	assert.Equal(t, EventCashSessionOpened, h.events.published[0].Type)

	// A second open for the same branch is rejected.
	res, err = h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		sessionOpenOp("op-2"),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, res.Results[0].Status)
	assert.Equal(t, apperror.CodeSessionAlreadyOpen, res.Results[0].ErrorCode)
}

func TestApplyBatch_SessionLifecycleWithVariance(t *testing.T) {
	h := newHarness(t)
	itemID := h.addMenuItem("1.50")

	// Open a drawer, take one cash sale, then close with a short count.
	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		sessionOpenOp("op-1"),
		saleOp("op-2", "sale-1", itemID, 2),
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Nil(t, res.StoppedAtIndex)

	var opened CashSessionOpenedResult
	require.NoError(t, json.Unmarshal(res.Results[0].Result, &opened))

	// The fakes keep drawer credits separate from the session row, so fold
	// the recorded taking in before the count, as the repository would.
	sess := h.sessions.sessions[opened.SessionID]
	require.NoError(t, sess.RecordCashIn(h.drawer.usd, h.drawer.khr))
	assert.True(t, sess.ExpectedCashUsd.Equal(types.MustMoney("53.30")), "expected usd = %s", sess.ExpectedCashUsd)

	// Counted 43.30 against 53.30 expected: -10 variance, beyond review threshold.
	res, err = h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		sessionCloseOp("op-3", opened.SessionID, "43.30", "20000"),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.StatusApplied, res.Results[0].Status)

	var closed CashSessionClosedResult
	require.NoError(t, json.Unmarshal(res.Results[0].Result, &closed))
	assert.Equal(t, cashsession.StatusPendingReview, closed.Status)
	assert.True(t, closed.VarianceUsd.Equal(types.MustMoney("-10.00")), "variance usd = %s", closed.VarianceUsd)
	assert.True(t, closed.VarianceKhr.IsZero())

	require.Len(t, h.events.published, 3)
	assert.Equal(t, EventCashSessionClosed, h.events.published[2].Type)
}

func TestApplyBatch_SessionClosedWrongBranch(t *testing.T) {
	h := newHarness(t)

	sess, err := cashsession.Open(h.act.TenantID, id.New(), nil, h.act.EmployeeID,
		types.MustMoney("10.00"), types.MustMoney("0"), "", time.Now())
	require.NoError(t, err)
	require.NoError(t, h.sessions.Create(context.Background(), sess))

	res, err := h.pipeline.ApplyBatch(context.Background(), h.act, []ops.Operation{
		sessionCloseOp("op-1", sess.ID, "10.00", "0"),
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, res.Results[0].Status)
	assert.Equal(t, apperror.CodeValidation, res.Results[0].ErrorCode)
}

package loyalty

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type stubStore struct {
	txMutex     sync.Mutex
	mutex       sync.Mutex
	accounts    map[UserID]Account
	codes       map[CodeValue]CodeRecord
	rewards     map[RewardID]Reward
	redemptions map[RedemptionID]Redemption
	entries     []Entry
	failed      []FailedAttempt
	nextEntryID int
	failedErr   error
	findCodeErr error
	getAccErr   error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accounts:    map[UserID]Account{},
		codes:       map[CodeValue]CodeRecord{},
		rewards:     map[RewardID]Reward{},
		redemptions: map[RedemptionID]Redemption{},
	}
}

type stubSnapshot struct {
	accounts    map[UserID]Account
	codes       map[CodeValue]CodeRecord
	redemptions map[RedemptionID]Redemption
	entries     []Entry
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMutex.Lock()
	defer store.txMutex.Unlock()
	snapshot := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(snapshot)
		return err
	}
	return nil
}

func (store *stubStore) snapshot() stubSnapshot {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	snapshot := stubSnapshot{
		accounts:    make(map[UserID]Account, len(store.accounts)),
		codes:       make(map[CodeValue]CodeRecord, len(store.codes)),
		redemptions: make(map[RedemptionID]Redemption, len(store.redemptions)),
		entries:     append([]Entry(nil), store.entries...),
	}
	for key, value := range store.accounts {
		snapshot.accounts[key] = value
	}
	for key, value := range store.codes {
		snapshot.codes[key] = value
	}
	for key, value := range store.redemptions {
		snapshot.redemptions[key] = value
	}
	return snapshot
}

func (store *stubStore) restore(snapshot stubSnapshot) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.accounts = snapshot.accounts
	store.codes = snapshot.codes
	store.redemptions = snapshot.redemptions
	store.entries = snapshot.entries
}

func (store *stubStore) CreateAccount(_ context.Context, userID UserID, createdUnixUTC int64) (Account, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if account, exists := store.accounts[userID]; exists {
		return account, nil
	}
	account := Account{UserID: userID, CreatedUnixUTC: createdUnixUTC}
	store.accounts[userID] = account
	return account, nil
}

func (store *stubStore) GetAccount(_ context.Context, userID UserID) (Account, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.getAccErr != nil {
		return Account{}, store.getAccErr
	}
	account, exists := store.accounts[userID]
	if !exists {
		return Account{}, ErrUnknownUser
	}
	return account, nil
}

func (store *stubStore) ApplyPointsDelta(_ context.Context, userID UserID, delta PointsDelta) (Points, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	account, exists := store.accounts[userID]
	if !exists {
		return 0, ErrUnknownUser
	}
	updated := account.Points.Int64() + delta.Int64()
	if updated < 0 {
		return 0, ErrInsufficientPoints
	}
	account.Points = Points(updated)
	store.accounts[userID] = account
	return account.Points, nil
}

func (store *stubStore) SetLastCheckIn(_ context.Context, userID UserID, marker CheckInMarker) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	account, exists := store.accounts[userID]
	if !exists {
		return ErrUnknownUser
	}
	account.LastCheckIn = &marker
	store.accounts[userID] = account
	return nil
}

func (store *stubStore) InsertEntry(_ context.Context, entryInput EntryInput) (Entry, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.nextEntryID++
	entryID, err := NewEntryID(fmt.Sprintf("entry-%d", store.nextEntryID))
	if err != nil {
		return Entry{}, err
	}
	entry, err := NewEntry(entryID, entryInput)
	if err != nil {
		return Entry{}, err
	}
	store.entries = append(store.entries, entry)
	return entry, nil
}

func (store *stubStore) ListEntries(_ context.Context, userID UserID, cursor EntryCursor, limit int) ([]Entry, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var matched []Entry
	for _, entry := range store.entries {
		if entry.UserID() == userID && cursor.Admits(entry) {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(left, right int) bool {
		if matched[left].CreatedUnixUTC() != matched[right].CreatedUnixUTC() {
			return matched[left].CreatedUnixUTC() > matched[right].CreatedUnixUTC()
		}
		return matched[left].EntryID().String() > matched[right].EntryID().String()
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (store *stubStore) OldestCreditSince(_ context.Context, userID UserID, sinceUnixUTC int64) (Entry, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, entry := range store.entries {
		if entry.UserID() == userID && entry.PointsDelta() > 0 && entry.CreatedUnixUTC() >= sinceUnixUTC {
			return entry, true, nil
		}
	}
	return Entry{}, false, nil
}

func (store *stubStore) InsertCodes(_ context.Context, codes []CodeRecord) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, record := range codes {
		if _, exists := store.codes[record.Code]; exists {
			return ErrDuplicateCode
		}
	}
	for _, record := range codes {
		store.codes[record.Code] = record
	}
	return nil
}

func (store *stubStore) FindCode(_ context.Context, code CodeValue) (CodeRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.findCodeErr != nil {
		return CodeRecord{}, store.findCodeErr
	}
	record, exists := store.codes[code]
	if !exists {
		return CodeRecord{}, ErrUnknownCode
	}
	return record, nil
}

func (store *stubStore) MarkCodeUsed(_ context.Context, codeID CodeID, userID UserID, usedUnixUTC int64) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for code, record := range store.codes {
		if record.CodeID != codeID {
			continue
		}
		if record.Used {
			return ErrCodeAlreadyUsed
		}
		record.Used = true
		record.UsedBy = userID
		record.UsedUnixUTC = usedUnixUTC
		store.codes[code] = record
		return nil
	}
	return ErrUnknownCode
}

func (store *stubStore) GetReward(_ context.Context, rewardID RewardID) (Reward, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	reward, exists := store.rewards[rewardID]
	if !exists {
		return Reward{}, ErrUnknownReward
	}
	return reward, nil
}

func (store *stubStore) ListRewards(_ context.Context, activeOnly bool) ([]Reward, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	rewards := make([]Reward, 0, len(store.rewards))
	for _, reward := range store.rewards {
		if activeOnly && !reward.Active {
			continue
		}
		rewards = append(rewards, reward)
	}
	sort.Slice(rewards, func(left, right int) bool {
		return rewards[left].RewardID.String() < rewards[right].RewardID.String()
	})
	return rewards, nil
}

func (store *stubStore) CreateRedemption(_ context.Context, redemption Redemption) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.redemptions[redemption.RedemptionID] = redemption
	return nil
}

func (store *stubStore) GetRedemption(_ context.Context, redemptionID RedemptionID) (Redemption, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	redemption, exists := store.redemptions[redemptionID]
	if !exists {
		return Redemption{}, ErrUnknownRedemption
	}
	return redemption, nil
}

func (store *stubStore) MarkRedemptionUsed(_ context.Context, redemptionID RedemptionID, usedUnixUTC int64) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	redemption, exists := store.redemptions[redemptionID]
	if !exists {
		return ErrUnknownRedemption
	}
	if redemption.Used || usedUnixUTC >= redemption.ExpiresAtUnixUTC {
		return ErrRedemptionClosed
	}
	redemption.Used = true
	redemption.UsedUnixUTC = usedUnixUTC
	store.redemptions[redemptionID] = redemption
	return nil
}

func (store *stubStore) ListActiveRedemptions(_ context.Context, userID UserID, nowUnixUTC int64) ([]Redemption, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	var active []Redemption
	for _, redemption := range store.redemptions {
		if redemption.UserID == userID && RedemptionStateAt(redemption, nowUnixUTC) == RedemptionStateActive {
			active = append(active, redemption)
		}
	}
	return active, nil
}

func (store *stubStore) InsertFailedAttempt(_ context.Context, attempt FailedAttempt) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.failedErr != nil {
		return store.failedErr
	}
	store.failed = append(store.failed, attempt)
	return nil
}

func (store *stubStore) mustAccount(test *testing.T, userID UserID) Account {
	test.Helper()
	account, err := store.GetAccount(context.Background(), userID)
	if err != nil {
		test.Fatalf("account %s: %v", userID.String(), err)
	}
	return account
}

func (store *stubStore) seedAccount(test *testing.T, userID UserID, points int64) {
	test.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.accounts[userID] = Account{UserID: userID, Points: Points(points)}
}

func (store *stubStore) seedCode(test *testing.T, record CodeRecord) {
	test.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.codes[record.Code] = record
}

func (store *stubStore) seedReward(test *testing.T, reward Reward) {
	test.Helper()
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.rewards[reward.RewardID] = reward
}

func (store *stubStore) failedAttempts() []FailedAttempt {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return append([]FailedAttempt(nil), store.failed...)
}

type stubCounters struct {
	mutex        sync.Mutex
	counters     map[string]RateCounter
	alerts       []OperatorAlert
	incrementErr error
	failingKeys  map[string]error
}

func newStubCounters() *stubCounters {
	return &stubCounters{counters: map[string]RateCounter{}}
}

func (counters *stubCounters) IncrementCounter(_ context.Context, key RateLimitKey, nowUnixUTC int64, window time.Duration) (RateCounter, error) {
	counters.mutex.Lock()
	defer counters.mutex.Unlock()
	if counters.incrementErr != nil {
		return RateCounter{}, counters.incrementErr
	}
	if err, failing := counters.failingKeys[key.String()]; failing {
		return RateCounter{}, err
	}
	counter, exists := counters.counters[key.String()]
	if !exists || nowUnixUTC >= counter.ResetAtUnixUTC {
		counter = RateCounter{Key: key, Count: 1, ResetAtUnixUTC: nowUnixUTC + int64(window/time.Second)}
	} else {
		counter.Count++
	}
	counters.counters[key.String()] = counter
	return counter, nil
}

func (counters *stubCounters) MarkAlerted(_ context.Context, key RateLimitKey, resetAtUnixUTC int64) (bool, error) {
	counters.mutex.Lock()
	defer counters.mutex.Unlock()
	counter, exists := counters.counters[key.String()]
	if !exists || counter.ResetAtUnixUTC != resetAtUnixUTC || counter.Alerted {
		return false, nil
	}
	counter.Alerted = true
	counters.counters[key.String()] = counter
	return true, nil
}

func (counters *stubCounters) InsertAlert(_ context.Context, alert OperatorAlert) error {
	counters.mutex.Lock()
	defer counters.mutex.Unlock()
	counters.alerts = append(counters.alerts, alert)
	return nil
}

type recorderLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) operations(name string) []OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	var matched []OperationLog
	for _, entry := range logger.entries {
		if entry.Operation == name {
			matched = append(matched, entry)
		}
	}
	return matched
}

type manualClock struct {
	mutex      sync.Mutex
	nowUnixUTC int64
}

func newManualClock(nowUnixUTC int64) *manualClock {
	return &manualClock{nowUnixUTC: nowUnixUTC}
}

func (clock *manualClock) Now() int64 {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.nowUnixUTC
}

func (clock *manualClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.nowUnixUTC += int64(duration / time.Second)
}

func mustNewService(test *testing.T, store Store, counters CounterStore, clock *manualClock, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, counters, clock.Now, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustCodeID(test *testing.T, raw string) CodeID {
	test.Helper()
	codeID, err := NewCodeID(raw)
	if err != nil {
		test.Fatalf("code id: %v", err)
	}
	return codeID
}

func mustCodeValue(test *testing.T, raw string) CodeValue {
	test.Helper()
	code, err := NewCodeValue(raw)
	if err != nil {
		test.Fatalf("code value: %v", err)
	}
	return code
}

func mustRewardID(test *testing.T, raw string) RewardID {
	test.Helper()
	rewardID, err := NewRewardID(raw)
	if err != nil {
		test.Fatalf("reward id: %v", err)
	}
	return rewardID
}

func mustRedemptionID(test *testing.T, raw string) RedemptionID {
	test.Helper()
	redemptionID, err := NewRedemptionID(raw)
	if err != nil {
		test.Fatalf("redemption id: %v", err)
	}
	return redemptionID
}

func mustPositivePoints(test *testing.T, raw int64) PositivePoints {
	test.Helper()
	points, err := NewPositivePoints(raw)
	if err != nil {
		test.Fatalf("positive points: %v", err)
	}
	return points
}

func mustPointsDelta(test *testing.T, raw int64) PointsDelta {
	test.Helper()
	delta, err := NewPointsDelta(raw)
	if err != nil {
		test.Fatalf("points delta: %v", err)
	}
	return delta
}

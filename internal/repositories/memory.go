package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"unveil/internal/models"
)

// MemoryStore — реализация всех репозиториев в памяти процесса (dev, тесты).
// Один mutex на всё хранилище: голос и счётчики дела меняются атомарно, но
// только в пределах одного процесса. Для нескольких инстансов нужен Postgres.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	cases  map[int64]*models.Case
	votes  map[int64]map[models.VoterIdentity]models.Vote
	codes  map[uuid.UUID]*models.VerificationCode
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases: map[int64]*models.Case{},
		votes: map[int64]map[models.VoterIdentity]models.Vote{},
		codes: map[uuid.UUID]*models.VerificationCode{},
	}
}

func (s *MemoryStore) Cases() CaseRepository             { return &memoryCases{s} }
func (s *MemoryStore) Votes() VoteLedger                 { return &memoryVotes{s} }
func (s *MemoryStore) Codes() VerificationCodeRepository { return &memoryCodes{s} }

func copyCase(c *models.Case) *models.Case {
	cp := *c
	if c.LastVotedAt != nil {
		t := *c.LastVotedAt
		cp.LastVotedAt = &t
	}
	return &cp
}

// ---- дела

type memoryCases struct{ s *MemoryStore }

func (r *memoryCases) Create(_ context.Context, c *models.Case) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextID++
	c.ID = r.s.nextID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.s.cases[c.ID] = copyCase(c)
	return nil
}

func (r *memoryCases) GetByID(_ context.Context, id int64) (*models.Case, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cases[id]
	if !ok {
		return nil, nil
	}
	return copyCase(c), nil
}

func (r *memoryCases) Update(_ context.Context, c *models.Case) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.cases[c.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name, cur.Email, cur.Phone, cur.Company = c.Name, c.Email, c.Phone, c.Company
	cur.Actions, cur.Description = c.Actions, c.Description
	return nil
}

func (r *memoryCases) Delete(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.cases[id]; !ok {
		return false, nil
	}
	delete(r.s.cases, id)
	delete(r.s.votes, id)
	return true, nil
}

func (r *memoryCases) ListRecent(_ context.Context, limit, offset int) ([]*models.Case, int, error) {
	return r.list(nil, byNewest, limit, offset)
}

func (r *memoryCases) ListTopVoted(_ context.Context, limit, offset int) ([]*models.Case, int, error) {
	return r.list(func(c *models.Case) bool { return c.TotalVotes > 0 }, func(a, b *models.Case) bool {
		if a.TotalVotes != b.TotalVotes {
			return a.TotalVotes > b.TotalVotes
		}
		return a.ID < b.ID
	}, limit, offset)
}

func (r *memoryCases) ListNeedingVotes(_ context.Context, limit, offset int) ([]*models.Case, int, error) {
	return r.list(func(c *models.Case) bool { return c.TotalVotes < NeedsVotesThreshold }, byNewest, limit, offset)
}

func (r *memoryCases) Search(_ context.Context, filter models.CaseFilter, value string, limit, offset int) ([]*models.Case, int, error) {
	v := strings.ToLower(value)
	has := func(field string) bool { return strings.Contains(strings.ToLower(field), v) }
	var match func(c *models.Case) bool
	switch filter {
	case models.FilterName:
		match = func(c *models.Case) bool { return has(c.Name) }
	case models.FilterEmail:
		match = func(c *models.Case) bool { return has(c.Email) }
	case models.FilterPhone:
		match = func(c *models.Case) bool { return strings.Contains(c.Phone, value) }
	case models.FilterCompany:
		match = func(c *models.Case) bool { return has(c.Company) }
	case models.FilterAction:
		match = func(c *models.Case) bool { return has(c.Actions) }
	default:
		match = func(c *models.Case) bool {
			return has(c.Name) || has(c.Email) || strings.Contains(c.Phone, value) || has(c.Company) || has(c.Actions)
		}
	}
	return r.list(match, byNewest, limit, offset)
}

func (r *memoryCases) FindDuplicate(_ context.Context, email, phone, name, company string) (*models.Case, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.cases {
		if email != "" && strings.EqualFold(c.Email, email) ||
			phone != "" && c.Phone == phone ||
			name != "" && company != "" && strings.EqualFold(c.Name, name) && strings.EqualFold(c.Company, company) {
			return copyCase(c), nil
		}
	}
	return nil, nil
}

func (r *memoryCases) Ping(context.Context) error { return nil }

func byNewest(a, b *models.Case) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (r *memoryCases) list(match func(*models.Case) bool, less func(a, b *models.Case) bool, limit, offset int) ([]*models.Case, int, error) {
	r.s.mu.Lock()
	var all []*models.Case
	for _, c := range r.s.cases {
		if match == nil || match(c) {
			all = append(all, copyCase(c))
		}
	}
	r.s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// ---- голоса

type memoryVotes struct{ s *MemoryStore }

func (r *memoryVotes) RecordVote(_ context.Context, caseID int64, identity models.VoterIdentity, choice models.VoteChoice, at time.Time) (*models.Case, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cases[caseID]
	if !ok {
		return nil, ErrNotFound
	}
	byVoter := r.s.votes[caseID]
	if byVoter == nil {
		byVoter = map[models.VoterIdentity]models.Vote{}
		r.s.votes[caseID] = byVoter
	}
	if _, dup := byVoter[identity]; dup {
		return nil, ErrDuplicate
	}
	byVoter[identity] = models.Vote{VoterIdentity: identity, CaseID: caseID, Choice: choice, CastAt: at}
	c.ApplyVote(choice, at)
	return copyCase(c), nil
}

func (r *memoryVotes) ResetCase(_ context.Context, caseID int64) (*models.Case, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cases[caseID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(r.s.votes, caseID)
	c.ResetVotes()
	return copyCase(c), nil
}

func (r *memoryVotes) HasVoted(_ context.Context, identity models.VoterIdentity, caseID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.votes[caseID][identity]
	return ok, nil
}

// ---- коды подтверждения

type memoryCodes struct{ s *MemoryStore }

func (r *memoryCodes) Save(_ context.Context, v *models.VerificationCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	cp := *v
	r.s.codes[v.ID] = &cp
	return nil
}

func (r *memoryCodes) newest(match func(*models.VerificationCode) bool) *models.VerificationCode {
	var best *models.VerificationCode
	for _, v := range r.s.codes {
		if match(v) && (best == nil || v.CreatedAt.After(best.CreatedAt)) {
			best = v
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (r *memoryCodes) FindActive(_ context.Context, emailHash string, now time.Time) (*models.VerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.newest(func(v *models.VerificationCode) bool {
		return v.EmailHash == emailHash && v.IsActive(now)
	}), nil
}

func (r *memoryCodes) FindLatest(_ context.Context, emailHash string) (*models.VerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.newest(func(v *models.VerificationCode) bool { return v.EmailHash == emailHash }), nil
}

func (r *memoryCodes) deleteWhere(match func(*models.VerificationCode) bool) int64 {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, v := range r.s.codes {
		if match(v) {
			delete(r.s.codes, id)
			n++
		}
	}
	return n
}

func (r *memoryCodes) DeleteExpired(_ context.Context, emailHash string, now time.Time) (int64, error) {
	return r.deleteWhere(func(v *models.VerificationCode) bool {
		return v.EmailHash == emailHash && v.IsExpired(now)
	}), nil
}

func (r *memoryCodes) DeleteByEmailHash(_ context.Context, emailHash string) (int64, error) {
	return r.deleteWhere(func(v *models.VerificationCode) bool { return v.EmailHash == emailHash }), nil
}

func (r *memoryCodes) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.codes, id)
	return nil
}

func (r *memoryCodes) ReserveAttempt(_ context.Context, id uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.codes[id]
	if !ok || v.Verified {
		return 0, ErrNotFound
	}
	if v.Exhausted() {
		return 0, ErrAttemptsExhausted
	}
	v.Attempts++
	return v.Attempts, nil
}

func (r *memoryCodes) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.codes[id]
	if !ok || v.Verified {
		return ErrNotFound
	}
	v.Verified = true
	t := at
	v.VerifiedAt = &t
	return nil
}

func (r *memoryCodes) countWhere(match func(*models.VerificationCode) bool) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, v := range r.s.codes {
		if match(v) {
			n++
		}
	}
	return n
}

func (r *memoryCodes) CountRecentByEmailHash(_ context.Context, emailHash string, since time.Time) (int, error) {
	return r.countWhere(func(v *models.VerificationCode) bool {
		return v.EmailHash == emailHash && v.CreatedAt.After(since)
	}), nil
}

func (r *memoryCodes) CountRecentByIP(_ context.Context, ip string, since time.Time) (int, error) {
	return r.countWhere(func(v *models.VerificationCode) bool {
		return v.SourceIP == ip && v.CreatedAt.After(since)
	}), nil
}

func (r *memoryCodes) DeleteAllExpired(_ context.Context, before time.Time) (int64, error) {
	return r.deleteWhere(func(v *models.VerificationCode) bool { return v.IsExpired(before) }), nil
}

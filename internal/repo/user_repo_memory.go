package repo

import (
	"context"
	"sort"
	"sync"

	"go-gin-auth-session/internal/domain"
)

// MemoryUserRepo 进程内用户表：id 主表 + email / 外部身份两个唯一索引。
// 所有唯一性检查与提交在同一把锁内完成；对外只返回副本。
// 已入表的记录不做原地修改，Update 整体替换指针。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string // email -> id
	byIdent map[string]string // provider\x00subject -> id
}

var _ domain.UserRepository = (*MemoryUserRepo)(nil)

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		byIdent: make(map[string]string),
	}
}

func identKey(provider, subject string) string { return provider + "\x00" + subject }

func (r *MemoryUserRepo) Create(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[u.Email]; ok {
		return domain.ErrEmailConflict
	}
	for _, id := range u.Identities {
		if _, ok := r.byIdent[identKey(id.Provider, id.Subject)]; ok {
			return domain.ErrIdentityConflict
		}
	}
	cp := u.Clone()
	r.byID[cp.ID] = cp
	r.byEmail[cp.Email] = cp.ID
	for _, id := range cp.Identities {
		r.byIdent[identKey(id.Provider, id.Subject)] = cp.ID
	}
	return nil
}

func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryUserRepo) FindByIdentity(_ context.Context, provider, subject string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIdent[identKey(provider, subject)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryUserRepo) Update(_ context.Context, id string, mutate func(u *domain.User) error) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID // 主键不可变
	next.CreatedAt = cur.CreatedAt
	if err := next.Validate(); err != nil {
		return nil, err
	}

	// 提交前复查唯一性
	if next.Email != cur.Email {
		if owner, ok := r.byEmail[next.Email]; ok && owner != id {
			return nil, domain.ErrEmailConflict
		}
	}
	for _, ident := range next.Identities {
		if owner, ok := r.byIdent[identKey(ident.Provider, ident.Subject)]; ok && owner != id {
			return nil, domain.ErrIdentityConflict
		}
	}

	// 重建索引
	delete(r.byEmail, cur.Email)
	for _, ident := range cur.Identities {
		delete(r.byIdent, identKey(ident.Provider, ident.Subject))
	}
	r.byEmail[next.Email] = id
	for _, ident := range next.Identities {
		r.byIdent[identKey(ident.Provider, ident.Subject)] = id
	}
	r.byID[id] = next
	return next.Clone(), nil
}

func (r *MemoryUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byEmail, u.Email)
	for _, ident := range u.Identities {
		delete(r.byIdent, identKey(ident.Provider, ident.Subject))
	}
	return nil
}

// List 按创建时间倒序分页
func (r *MemoryUserRepo) List(_ context.Context, offset, limit int) ([]domain.User, int64, error) {
	r.mu.RLock()
	all := make([]*domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		all = append(all, u)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []domain.User{}, total, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]domain.User, 0, end-offset)
	for _, u := range all[offset:end] {
		out = append(out, *u.Clone())
	}
	return out, total, nil
}

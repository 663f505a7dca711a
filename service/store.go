package service

import (
	"sync"
	"time"

	"wechat_qrlogin/wechat"
)

// LoginTTL 扫码登录结果的有效期
const LoginTTL = 600 * time.Second

// LoginRecord 是某个场景值对应的登录结果，创建后不再修改
type LoginRecord struct {
	UserID    string
	Profile   wechat.Profile
	CreatedAt time.Time
}

// Store 以场景值为 key 保存登录结果，过期记录在下一次读取时删除
type Store struct {
	mu      sync.Mutex
	records map[string]LoginRecord
	ttl     time.Duration
	now     func() time.Time
}

// NewStore 创建内存存储，now 为 nil 时使用 time.Now
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		records: make(map[string]LoginRecord),
		ttl:     LoginTTL,
		now:     now,
	}
}

// Put 写入或覆盖场景值对应的登录结果
func (s *Store) Put(scene, userID string, profile wechat.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[scene] = LoginRecord{
		UserID:    userID,
		Profile:   profile,
		CreatedAt: s.now(),
	}
}

// Get 返回未过期的登录结果；已过期的记录会被删除
func (s *Store) Get(scene string) (LoginRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[scene]
	if !ok {
		return LoginRecord{}, false
	}
	if s.now().Sub(rec.CreatedAt) > s.ttl {
		delete(s.records, scene)
		return LoginRecord{}, false
	}
	return rec, true
}

// Len 返回当前保存的记录数（包含尚未清理的过期记录）
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Package stage はガイド付きワークフローのステージ実行と課金ゲートを提供する。
package stage

import (
	"sync"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
)

// ContextStore はセッションごとのResearchContextをメモリ上で保持する。
// コンテキストはセッションに属し、アカウント間・プロセス間で共有されない。
// セッション終了（ログアウト・期限切れ掃除）とともに破棄される。
type ContextStore struct {
	mu       sync.Mutex
	contexts map[string]*model.ResearchContext // セッションID → コンテキスト
}

// NewContextStore はContextStoreを生成する。
func NewContextStore() *ContextStore {
	return &ContextStore{
		contexts: make(map[string]*model.ResearchContext),
	}
}

// Get は指定セッションのコンテキストのスナップショットを返す。
// 未作成の場合は空のコンテキストを作成してから返す。
func (s *ContextStore) Get(sessionID string) *model.ResearchContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.locked(sessionID).Clone()
}

// Update は指定セッションのコンテキストをロック下でfnにより変更する。
// fnには実体が渡されるため、fn内の変更はそのまま反映される。
func (s *ContextStore) Update(sessionID string, fn func(rc *model.ResearchContext)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc := s.locked(sessionID)
	fn(rc)
	rc.UpdatedAt = time.Now()
}

// Delete は指定セッションのコンテキストを破棄する。
func (s *ContextStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contexts, sessionID)
}

// DeleteIdle は最終更新からttl以上経過したコンテキストを破棄し、件数を返す。
// ログアウトせずに放置されたセッションの分をメモリから回収する。
func (s *ContextStore) DeleteIdle(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	purged := 0
	for sessionID, rc := range s.contexts {
		if rc.UpdatedAt.Before(cutoff) {
			delete(s.contexts, sessionID)
			purged++
		}
	}
	return purged
}

// Count は保持中のコンテキスト数を返す。テストおよびメトリクス用。
func (s *ContextStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.contexts)
}

// locked はロック保持中に呼ぶ前提の取得・初期化ヘルパー。
func (s *ContextStore) locked(sessionID string) *model.ResearchContext {
	rc, ok := s.contexts[sessionID]
	if !ok {
		rc = model.NewResearchContext()
		s.contexts[sessionID] = rc
	}
	return rc
}

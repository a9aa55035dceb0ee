package stage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
)

func TestContextStore_GetCreatesEmptyContext(t *testing.T) {
	s := NewContextStore()

	rc := s.Get("s1")
	if rc == nil {
		t.Fatal("Get: nilを返してはいけない")
	}
	if rc.Topic != "" {
		t.Errorf("Topic = %q, want 空", rc.Topic)
	}
	if rc.Sections == nil {
		t.Error("Sectionsマップは初期化されているべき")
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}
}

func TestContextStore_GetReturnsSnapshot(t *testing.T) {
	s := NewContextStore()
	s.Update("s1", func(rc *model.ResearchContext) {
		rc.Topic = "SNS使用と自尊感情"
		rc.Sections["序論"] = "本文"
	})

	snap := s.Get("s1")
	snap.Topic = "改変"
	snap.Sections["序論"] = "改変"
	snap.References = append(snap.References, model.Reference{Title: "x"})

	kept := s.Get("s1")
	if kept.Topic != "SNS使用と自尊感情" {
		t.Errorf("スナップショットの変更が実体に漏れた: Topic = %q", kept.Topic)
	}
	if kept.Sections["序論"] != "本文" {
		t.Errorf("スナップショットの変更が実体に漏れた: Sections = %q", kept.Sections["序論"])
	}
	if len(kept.References) != 0 {
		t.Errorf("スナップショットの変更が実体に漏れた: References = %d件", len(kept.References))
	}
}

func TestContextStore_SessionIsolation(t *testing.T) {
	s := NewContextStore()
	s.Update("s1", func(rc *model.ResearchContext) { rc.Topic = "主題A" })
	s.Update("s2", func(rc *model.ResearchContext) { rc.Topic = "主題B" })

	if got := s.Get("s1").Topic; got != "主題A" {
		t.Errorf("s1.Topic = %q, want 主題A", got)
	}
	if got := s.Get("s2").Topic; got != "主題B" {
		t.Errorf("s2.Topic = %q, want 主題B", got)
	}
}

func TestContextStore_Delete(t *testing.T) {
	s := NewContextStore()
	s.Update("s1", func(rc *model.ResearchContext) { rc.Topic = "主題" })

	s.Delete("s1")

	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
	if got := s.Get("s1").Topic; got != "" {
		t.Errorf("削除後のGetは空のコンテキストを返すべき: Topic = %q", got)
	}
}

func TestContextStore_DeleteIdle_PurgesOnlyStaleContexts(t *testing.T) {
	s := NewContextStore()
	s.Update("old", func(rc *model.ResearchContext) { rc.Topic = "放置中" })
	s.Update("fresh", func(rc *model.ResearchContext) { rc.Topic = "作業中" })

	// 最終更新を過去に巻き戻して放置状態を作る
	s.mu.Lock()
	s.contexts["old"].UpdatedAt = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	purged := s.DeleteIdle(time.Hour)

	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}
	if got := s.Get("fresh").Topic; got != "作業中" {
		t.Errorf("更新中のコンテキストが消えた: Topic = %q", got)
	}
}

func TestContextStore_DeleteIdle_FreshContextSurvives(t *testing.T) {
	s := NewContextStore()

	// Getで作られた直後のコンテキストはUpdatedAtが生成時刻で
	// 初期化されるため、掃除の対象にならない
	s.Get("s1")

	if purged := s.DeleteIdle(time.Hour); purged != 0 {
		t.Errorf("purged = %d, want 0", purged)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}
}

func TestContextStore_ConcurrentUpdates(t *testing.T) {
	s := NewContextStore()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Update("s1", func(rc *model.ResearchContext) {
				rc.Chat = append(rc.Chat, model.ChatTurn{
					Role:    "user",
					Content: fmt.Sprintf("message-%d", n),
				})
			})
		}(i)
	}
	wg.Wait()

	if got := len(s.Get("s1").Chat); got != workers {
		t.Errorf("Chat件数 = %d, want %d", got, workers)
	}
}

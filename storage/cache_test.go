package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

type stubBackend struct {
	backend

	listBoardsFn       func(ctx context.Context, userID string) ([]domain.Board, error)
	listColumnsFn      func(ctx context.Context, userID, boardID string) ([]domain.Column, error)
	listTasksByBoardFn func(ctx context.Context, userID, boardID string) ([]domain.Task, error)
	insertTaskFn       func(ctx context.Context, task domain.Task) error
	deleteBoardFn      func(ctx context.Context, userID, id string) error
}

func (s *stubBackend) ListBoards(ctx context.Context, userID string) ([]domain.Board, error) {
	if s.listBoardsFn == nil {
		return nil, errors.New("unexpected ListBoards call")
	}
	return s.listBoardsFn(ctx, userID)
}

func (s *stubBackend) ListColumns(ctx context.Context, userID, boardID string) ([]domain.Column, error) {
	if s.listColumnsFn == nil {
		return nil, errors.New("unexpected ListColumns call")
	}
	return s.listColumnsFn(ctx, userID, boardID)
}

func (s *stubBackend) ListTasksByBoard(ctx context.Context, userID, boardID string) ([]domain.Task, error) {
	if s.listTasksByBoardFn == nil {
		return nil, errors.New("unexpected ListTasksByBoard call")
	}
	return s.listTasksByBoardFn(ctx, userID, boardID)
}

func (s *stubBackend) InsertTask(ctx context.Context, task domain.Task) error {
	if s.insertTaskFn == nil {
		return errors.New("unexpected InsertTask call")
	}
	return s.insertTaskFn(ctx, task)
}

func (s *stubBackend) DeleteBoard(ctx context.Context, userID, id string) error {
	if s.deleteBoardFn == nil {
		return errors.New("unexpected DeleteBoard call")
	}
	return s.deleteBoardFn(ctx, userID, id)
}

func newTestCache(t *testing.T, base backend) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(base, client, time.Minute), mr
}

func TestCacheListBoardsMissThenHit(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"
	expected := []domain.Board{{ID: "b1", Title: "Roadmap", OwnerID: userID}}

	var calls int
	cache, mr := newTestCache(t, &stubBackend{
		listBoardsFn: func(ctx context.Context, uid string) ([]domain.Board, error) {
			calls++
			if uid != userID {
				t.Fatalf("unexpected user id: %s", uid)
			}
			return append([]domain.Board(nil), expected...), nil
		},
	})

	boards, err := cache.ListBoards(ctx, userID)
	if err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if !reflect.DeepEqual(boards, expected) {
		t.Fatalf("unexpected boards: %#v", boards)
	}
	if calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}
	if ttl := mr.TTL(boardsCacheKey(userID)); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	boards, err = cache.ListBoards(ctx, userID)
	if err != nil {
		t.Fatalf("list boards (cached): %v", err)
	}
	if !reflect.DeepEqual(boards, expected) {
		t.Fatalf("unexpected cached boards: %#v", boards)
	}
	if calls != 1 {
		t.Fatalf("expected cached read to skip the backend, got %d calls", calls)
	}
}

func TestCacheBackendErrorNotCached(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")

	cache, _ := newTestCache(t, &stubBackend{
		listTasksByBoardFn: func(ctx context.Context, userID, boardID string) ([]domain.Task, error) {
			return nil, boom
		},
	})

	if _, err := cache.ListTasksByBoard(ctx, "u", "b"); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestCacheWriteEvictsUser(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	var listCalls int
	cache, mr := newTestCache(t, &stubBackend{
		listBoardsFn: func(ctx context.Context, uid string) ([]domain.Board, error) {
			listCalls++
			return []domain.Board{{ID: "b1", OwnerID: uid}}, nil
		},
		listTasksByBoardFn: func(ctx context.Context, uid, boardID string) ([]domain.Task, error) {
			return []domain.Task{{ID: "t1", BoardID: boardID, OwnerID: uid}}, nil
		},
		insertTaskFn: func(ctx context.Context, task domain.Task) error { return nil },
	})

	if _, err := cache.ListBoards(ctx, userID); err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if _, err := cache.ListTasksByBoard(ctx, userID, "b1"); err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if !mr.Exists(boardsCacheKey(userID)) || !mr.Exists(boardTasksCacheKey(userID, "b1")) {
		t.Fatal("expected reads to be cached")
	}

	if err := cache.InsertTask(ctx, domain.Task{ID: "t2", OwnerID: userID, BoardID: "b1"}); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	if mr.Exists(boardsCacheKey(userID)) || mr.Exists(boardTasksCacheKey(userID, "b1")) {
		t.Fatal("expected write to evict all cached reads for the user")
	}
	if mr.Exists(trackedKeysKey(userID)) {
		t.Fatal("expected tracked key set to be cleared")
	}

	if _, err := cache.ListBoards(ctx, userID); err != nil {
		t.Fatalf("list boards after evict: %v", err)
	}
	if listCalls != 2 {
		t.Fatalf("expected backend re-read after eviction, got %d calls", listCalls)
	}
}

func TestCacheWriteErrorDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"
	boom := errors.New("rejected")

	cache, mr := newTestCache(t, &stubBackend{
		listBoardsFn: func(ctx context.Context, uid string) ([]domain.Board, error) {
			return []domain.Board{}, nil
		},
		deleteBoardFn: func(ctx context.Context, uid, id string) error { return boom },
	})

	if _, err := cache.ListBoards(ctx, userID); err != nil {
		t.Fatalf("list boards: %v", err)
	}
	if err := cache.DeleteBoard(ctx, userID, "b1"); !errors.Is(err, boom) {
		t.Fatalf("expected delete error, got %v", err)
	}
	if !mr.Exists(boardsCacheKey(userID)) {
		t.Fatal("failed write should leave the cache intact")
	}
}

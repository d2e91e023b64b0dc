package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bulk-sms-dispatch/internal/domain"
)

func TestStore_GetUnknownID(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("Get error = %v, want ErrJobNotFound", err)
	}

	err = s.Update(context.Background(), "nope", func(*domain.DispatchJob) error { return nil })
	if !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("Update error = %v, want ErrJobNotFound", err)
	}
}

func TestStore_ConcurrentUpdatesLoseNothing(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	job := domain.NewDispatchJob("job-1", 1000, 50)
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const writers = 50
	const perWriter = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				err := s.Update(ctx, "job-1", func(j *domain.DispatchJob) error {
					j.Completed++
					return nil
				})
				if err != nil {
					t.Errorf("Update: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Completed != writers*perWriter {
		t.Fatalf("Completed = %d, want %d", got.Completed, writers*perWriter)
	}
}

func TestStore_DeleteMakesJobUnknown(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	if err := s.Create(ctx, domain.NewDispatchJob("job-2", 10, 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Delete(ctx, "job-2")

	if _, err := s.Get(ctx, "job-2"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("Get after delete = %v, want ErrJobNotFound", err)
	}
}

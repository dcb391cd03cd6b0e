package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
)

type fakeCounter struct {
	values map[string]int64
	err    error
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.values[key]++
	return redis.NewIntResult(f.values[key], nil)
}

func TestFormat(t *testing.T) {
	cases := []struct {
		prefix string
		width  int
		n      int64
		want   string
	}{
		{"TCK", 5, 1, "TCK00001"},
		{"TCK", 5, 123456, "TCK123456"},
		{"", 3, 7, "007"},
		{"HD-", 0, 42, "HD-42"},
	}
	for _, tc := range cases {
		if got := Format(tc.prefix, tc.width, tc.n); got != tc.want {
			t.Errorf("Format(%q, %d, %d) = %q, want %q", tc.prefix, tc.width, tc.n, got, tc.want)
		}
	}
}

func TestRedisGeneratorNext(t *testing.T) {
	counter := &fakeCounter{values: map[string]int64{}}
	gen := NewRedisGenerator(counter, "TCK", 5)
	ctx := context.Background()

	first, err := gen.Next(ctx, "helpdesk.ticket")
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	second, _ := gen.Next(ctx, "helpdesk.ticket")
	if first != "TCK00001" || second != "TCK00002" {
		t.Errorf("got %q, %q", first, second)
	}
	if counter.values["sequence:helpdesk.ticket"] != 2 {
		t.Errorf("counter = %v", counter.values)
	}
}

func TestRedisGeneratorError(t *testing.T) {
	boom := errors.New("connection refused")
	gen := NewRedisGenerator(&fakeCounter{err: boom}, "TCK", 5)
	if _, err := gen.Next(context.Background(), "helpdesk.ticket"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
)

type stats struct {
	Headcount int    `json:"headcount"`
	Average   string `json:"average"`
}

func TestGetOrLoadHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	payload, _ := json.Marshal(stats{Headcount: 4, Average: "31000.00"})
	mock.ExpectGet("dashboard").SetVal(string(payload))

	got, err := GetOrLoad(context.Background(), c, "dashboard", time.Minute, func(context.Context) (stats, error) {
		t.Fatal("loader must not run on a cache hit")
		return stats{}, nil
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Headcount != 4 || got.Average != "31000.00" {
		t.Fatalf("unexpected value %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetOrLoadMissStores(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	want := stats{Headcount: 2, Average: "25000.00"}
	payload, _ := json.Marshal(want)
	mock.ExpectGet("dashboard").RedisNil()
	mock.ExpectSet("dashboard", string(payload), time.Minute).SetVal("OK")

	calls := 0
	got, err := GetOrLoad(context.Background(), c, "dashboard", time.Minute, func(context.Context) (stats, error) {
		calls++
		return want, nil
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if calls != 1 || got != want {
		t.Fatalf("expected one load returning %+v, got %d calls and %+v", want, calls, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetOrLoadErrorIsNotCached(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	mock.ExpectGet("dashboard").RedisNil()
	loadErr := errors.New("database down")
	_, err := GetOrLoad(context.Background(), c, "dashboard", time.Minute, func(context.Context) (stats, error) {
		return stats{}, loadErr
	})
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetOrLoadFallsBackOnRedisError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)

	want := stats{Headcount: 1}
	payload, _ := json.Marshal(want)
	mock.ExpectGet("dashboard").SetErr(errors.New("connection refused"))
	mock.ExpectSet("dashboard", string(payload), time.Minute).SetErr(errors.New("connection refused"))

	got, err := GetOrLoad(context.Background(), c, "dashboard", time.Minute, func(context.Context) (stats, error) {
		return want, nil
	})
	if err != nil || got != want {
		t.Fatalf("expected loader value despite redis errors, got %+v %v", got, err)
	}
}

func TestDisabledCacheAlwaysLoads(t *testing.T) {
	c := New(nil)
	calls := 0
	for i := 0; i < 2; i++ {
		if _, err := GetOrLoad(context.Background(), c, "k", time.Minute, func(context.Context) (int, error) {
			calls++
			return calls, nil
		}); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected two loads without redis, got %d", calls)
	}
	c.Invalidate(context.Background(), "k")
}

func TestInvalidateDeletesKeys(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := New(rdb)
	mock.ExpectDel("dashboard").SetVal(1)
	c.Invalidate(context.Background(), "dashboard")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewClientFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
}

func TestGetSetJSON(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}

	if err := c.SetJSON(ctx, "k", payload{Name: "sentinel"}, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got payload
	found, err := c.GetJSON(ctx, "k", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.Name != "sentinel" {
		t.Errorf("expected sentinel, got %q", got.Name)
	}
}

func TestGetJSON_Miss(t *testing.T) {
	c := newTestClient(t)

	var got map[string]string
	found, err := c.GetJSON(context.Background(), "absent", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if found {
		t.Fatal("expected cache miss")
	}
}

func TestDeletePattern(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for _, key := range []string{"perm:u1:app", "perm:u1:portal", "perm:u2:app"} {
		if err := c.SetJSON(ctx, key, "x", time.Minute); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}
	}

	if err := c.DeletePattern(ctx, "perm:u1:*"); err != nil {
		t.Fatalf("DeletePattern failed: %v", err)
	}

	var v string
	if found, _ := c.GetJSON(ctx, "perm:u1:app", &v); found {
		t.Error("expected perm:u1:app to be deleted")
	}
	if found, _ := c.GetJSON(ctx, "perm:u2:app", &v); !found {
		t.Error("expected perm:u2:app to survive")
	}
}

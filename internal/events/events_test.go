package events_test

import (
	"testing"
	"time"

	"github.com/glizzus/chime-off/internal/events"
	"github.com/google/go-cmp/cmp"
	goredis "github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestPrintingPublisher(t *testing.T) {
	p := &events.PrintingPublisher{}
	if err := p.Publish(t.Context(), events.Fire{ID: "1", SoundID: "bell"}); err != nil {
		t.Errorf("Publish returned error: %v", err)
	}
}

func TestRedisPublisherRoundTrip(t *testing.T) {
	ctx := t.Context()
	redisContainer, err := tcredis.Run(ctx, "redis:7")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	defer func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate redis container: %v", err)
		}
	}()

	uri, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}
	client := goredis.NewClient(opts)
	defer client.Close()

	p := events.NewRedisPublisher(client, "")
	fire := events.Fire{
		ID:      "f1",
		SoundID: "chime1",
		Volume:  35,
		At:      time.Date(2024, 5, 14, 10, 15, 0, 0, time.UTC),
		Played:  true,
	}
	if err := p.Publish(ctx, fire); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	got, next, err := p.Read(ctx, "0", time.Second)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if diff := cmp.Diff([]events.Fire{fire}, got); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}

	got, _, err = p.Read(ctx, next, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("second Read returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("second Read returned old fires: %+v", got)
	}
}

package fabric

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, key string
		want         bool
	}{
		{"post.created", "post.created", true},
		{"post.created", "post.deleted", false},
		{"post.*", "post.deleted", true},
		{"post.*", "post", false},
		{"post.*", "post.deleted.late", false},
		{"*.deleted", "media.deleted", true},
		{"#", "post.created", true},
		{"post.#", "post", true},
		{"post.#", "post.a.b.c", true},
		{"#.deleted", "post.deleted", true},
		{"#.deleted", "deleted", true},
		{"a.#.z", "a.z", true},
		{"a.#.z", "a.b.c.z", true},
		{"a.#.z", "a.b.c", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Match(c.pattern, c.key), "%s vs %s", c.pattern, c.key)
	}
	require.True(t, MatchAny([]string{"x.y", "post.*"}, "post.created"))
}

func TestValidRoutingKeyAndPattern(t *testing.T) {
	require.True(t, ValidRoutingKey("post.created"))
	require.False(t, ValidRoutingKey("post..created"))
	require.False(t, ValidRoutingKey("post.*"))
	require.False(t, ValidRoutingKey("Post.Created"))

	require.True(t, ValidPattern("post.*"))
	require.True(t, ValidPattern("#"))
	require.False(t, ValidPattern("post.cre*"))
	require.False(t, ValidPattern(""))
}

func TestPoison(t *testing.T) {
	base := errors.New("bad json")
	p := Poison(base)
	require.True(t, IsPoison(p))
	require.True(t, errors.Is(p, base))
	require.True(t, IsPoison(fmt.Errorf("wrapped: %w", p)))
	require.False(t, IsPoison(base))
	require.Nil(t, Poison(nil))
}

func TestQueueSpecResolve(t *testing.T) {
	a, err := QueueSpec{Private: true}.Resolve("search")
	require.NoError(t, err)
	b, err := QueueSpec{Private: true}.Resolve("search")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(a.Name, "search."))
	require.NotEqual(t, a.Name, b.Name)

	named, err := QueueSpec{Name: "media.events", Durable: true}.Resolve("media")
	require.NoError(t, err)
	require.Equal(t, "media.events", named.Name)

	_, err = QueueSpec{}.Resolve("media")
	require.Error(t, err)
}

func TestBindingValidate(t *testing.T) {
	b, err := Binding{Queue: QueueSpec{Name: "q"}, Patterns: []string{"post.*"}}.Validate()
	require.NoError(t, err)
	require.Equal(t, 1, b.MaxAttempts)
	require.Equal(t, DeadLetter, b.OnFailure)

	_, err = Binding{Queue: QueueSpec{Name: "q"}}.Validate()
	require.Error(t, err)
	_, err = Binding{Queue: QueueSpec{Name: "q"}, Patterns: []string{"bad pattern"}}.Validate()
	require.Error(t, err)
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("requeue")
	require.NoError(t, err)
	require.Equal(t, Requeue, p)
	p, err = ParseFailurePolicy("")
	require.NoError(t, err)
	require.Equal(t, DeadLetter, p)
	_, err = ParseFailurePolicy("ignore")
	require.Error(t, err)
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second}
	for n := 1; n < 10; n++ {
		d := b.Delay(n)
		require.GreaterOrEqual(t, d, 90*time.Millisecond)
		require.LessOrEqual(t, d, 1100*time.Millisecond)
	}
	require.Greater(t, b.Delay(4), b.Delay(1))
}

func TestExchangeName(t *testing.T) {
	require.Equal(t, "postmesh_events.staging", ExchangeName("postmesh_events", "staging"))
	require.Equal(t, "postmesh_events", ExchangeName("postmesh_events", ""))
}

func TestSettle(t *testing.T) {
	dl := Binding{MaxAttempts: 3, OnFailure: DeadLetter}
	rq := Binding{MaxAttempts: 3, OnFailure: Requeue}
	boom := errors.New("store unavailable")

	require.Equal(t, Ack, Settle(dl, 1, nil))
	require.Equal(t, Retry, Settle(dl, 1, boom))
	require.Equal(t, Retry, Settle(dl, 2, boom))
	require.Equal(t, DeadLettered, Settle(dl, 3, boom))
	require.Equal(t, Dropped, Settle(rq, 3, boom))

	require.Equal(t, DeadLettered, Settle(dl, 1, Poison(boom)))
	require.Equal(t, Dropped, Settle(rq, 1, Poison(boom)))
}

package secrets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type creds struct {
	APIKey string
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache[creds](time.Minute)

	c.Put("relayx", creds{APIKey: "key-1"})

	got, ok := c.Get("relayx")
	assert.True(t, ok)
	assert.Equal(t, "key-1", got.APIKey)
}

func TestCache_Miss(t *testing.T) {
	c := NewCache[creds](time.Minute)

	_, ok := c.Get("unknown")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache[creds](20 * time.Millisecond)

	c.Put("relayx", creds{APIKey: "key-1"})
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("relayx")
	assert.False(t, ok, "expired entry must not be returned")
}

func TestCache_Overwrite(t *testing.T) {
	c := NewCache[creds](time.Minute)

	c.Put("relayx", creds{APIKey: "old"})
	c.Put("relayx", creds{APIKey: "new"})

	got, ok := c.Get("relayx")
	assert.True(t, ok)
	assert.Equal(t, "new", got.APIKey)
}

func TestCache_Bust(t *testing.T) {
	c := NewCache[creds](time.Minute)

	c.Put("relayx", creds{APIKey: "key-1"})
	c.Bust("relayx")

	_, ok := c.Get("relayx")
	assert.False(t, ok)
}

func TestCache_Cleaner(t *testing.T) {
	c := NewCache[creds](10 * time.Millisecond)

	c.Put("relayx", creds{APIKey: "key-1"})

	stop := make(chan struct{})
	go c.StartCleaner(10*time.Millisecond, stop)
	defer close(stop)

	time.Sleep(50 * time.Millisecond)

	c.mu.RLock()
	_, present := c.data["relayx"]
	c.mu.RUnlock()
	assert.False(t, present, "cleaner should evict expired entries")
}

package identifier

import (
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

var uuidV4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestGenerateProducesCanonicalV4(t *testing.T) {
	g := NewGenerator()
	for i := 0; i < 100; i++ {
		id := g.Generate()
		assert.Regexp(t, uuidV4Pattern, id)
	}
}

func TestGenerateIsUnique(t *testing.T) {
	g := NewGenerator()
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := g.Generate()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestGenerateConcurrent(t *testing.T) {
	g := NewGenerator()

	const workers = 16
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, len(seen))
}

func TestIsValid(t *testing.T) {
	g := NewGenerator()

	assert.True(t, g.IsValid(g.Generate()))
	assert.True(t, g.IsValid("550e8400-e29b-41d4-a716-446655440000"))
	assert.False(t, g.IsValid(""))
	assert.False(t, g.IsValid("   "))
	assert.False(t, g.IsValid("not-a-uuid"))
	assert.False(t, g.IsValid("550e8400-e29b-41d4-a716"))
}

func TestNormalize(t *testing.T) {
	g := NewGenerator()

	got, err := g.Normalize("550E8400-E29B-41D4-A716-446655440000")
	assert.NoError(t, err)
	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", got)
	assert.Equal(t, strings.ToLower(got), got)

	_, err = g.Normalize("garbage")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

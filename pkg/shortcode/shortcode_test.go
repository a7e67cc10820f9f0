package shortcode

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Generate(t *testing.T) {
	t.Run("default alphabet and length", func(t *testing.T) {
		g := NewGenerator(DefaultLength)

		for i := 0; i < 1000; i++ {
			code, err := g.Generate()

			require.NoError(t, err)
			assert.Len(t, code, DefaultLength)
			for _, c := range code {
				assert.True(t, strings.ContainsRune(Alphabet, c), "unexpected character %q in %q", c, code)
			}
		}
	})

	t.Run("custom alphabet", func(t *testing.T) {
		g := NewGenerator(4, WithAlphabet("ab"))

		code, err := g.Generate()

		require.NoError(t, err)
		assert.Len(t, code, 4)
		assert.Empty(t, strings.Trim(code, "ab"))
	})

	t.Run("invalid length", func(t *testing.T) {
		g := NewGenerator(-1)

		code, err := g.Generate()

		assert.Error(t, err)
		assert.Empty(t, code)
	})

	t.Run("concurrent use", func(t *testing.T) {
		const workers = 16
		const perWorker = 250

		g := NewGenerator(DefaultLength)

		var (
			mu    sync.Mutex
			seen  = make(map[string]struct{}, workers*perWorker)
			wg    sync.WaitGroup
			errCh = make(chan error, workers*perWorker)
		)

		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					code, err := g.Generate()
					if err != nil {
						errCh <- err
						continue
					}
					mu.Lock()
					seen[code] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		close(errCh)

		for err := range errCh {
			t.Fatalf("Failed to generate code: %v", err)
		}
		// 4000 draws from 62^8 codes never collide in practice.
		assert.Len(t, seen, workers*perWorker)
	})
}

func TestValidateCustom(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{name: "alphanumeric", code: "abc123"},
		{name: "underscore", code: "test_code"},
		{name: "hyphen", code: "my-code"},
		{name: "minimum length", code: "abc"},
		{name: "maximum length", code: strings.Repeat("a", MaxCustomLength)},
		{name: "too short", code: "ab", wantErr: true},
		{name: "too long", code: strings.Repeat("a", MaxCustomLength+1), wantErr: true},
		{name: "invalid character", code: "test@code", wantErr: true},
		{name: "slash", code: "../admin", wantErr: true},
		{name: "non-ascii", code: "привет", wantErr: true},
		{name: "empty", code: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCustom(tt.code)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			assert.NoError(t, err)
		})
	}
}

package imaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ghostbot/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewClient(Config{Endpoint: ts.URL, Token: "hf_test", Timeout: 5 * time.Second})
}

func TestGenerateReturnsImageBytes(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a red cat", body["inputs"])

		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	})

	data, err := c.Generate(context.Background(), "a red cat")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{"loading", 503, `{"error":"Model stabilityai/sdxl is currently loading","estimated_time":20}`, ErrModelLoading, "⏳ Model sedang dimuat. Coba lagi."},
		{"api error", 400, `{"error":"bad input"}`, nil, "🖼️❎ Gagal membuat gambar karena gangguan teknis."},
		{"not json", 500, `oops`, ErrInvalidResponse, "🖼️❎ Gagal membuat gambar karena respons tidak valid."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Generate(context.Background(), "x")
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "bad input", apiErr.Message)
			}
			assert.Equal(t, tt.message, UserMessage(err))
		})
	}
}

func TestGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c := NewClient(Config{Endpoint: ts.URL, Token: "t", Timeout: 50 * time.Millisecond})
	_, err := c.Generate(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "Waktu tunggu habis saat mencoba membuat gambar. Silakan coba lagi.", UserMessage(err))
}

func TestGenerateNotConfigured(t *testing.T) {
	c := NewClient(Config{})
	assert.False(t, c.Configured())
	_, err := c.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, "⚙️ Fitur pembuatan gambar belum dikonfigurasi oleh pemilik bot.", UserMessage(err))
	assert.Equal(t, "⚠️ Terjadi kesalahan tak terduga.", UserMessage(errors.New("boom")))
	assert.Empty(t, UserMessage(nil))
}

func TestGenerateImageTool(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	})
	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg, c))

	out := filepath.Join(t.TempDir(), "nested", "cat.png")
	res, err := reg.Execute(context.Background(), "generate_image", map[string]any{"prompt": "cat", "output": out})
	require.NoError(t, err)
	assert.Contains(t, res.Result, "Wrote 3 bytes")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

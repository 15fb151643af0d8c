package driver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

const productPage = `<html><body>
	<span id="productTitle"> ワイヤレスイヤホン 高音質 </span>
	<div id="corePrice_feature_div"><span class="a-offscreen">￥4,980</span></div>
	<div id="availability"><span> 在庫あり。 </span></div>
</body></html>`

const challengePage = `<html><body>
	<p>続行するには、タイプされた文字を入力してください</p>
</body></html>`

func TestCollyDriverFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dp/B000TEST01", r.URL.Path)
		w.Write([]byte(productPage))
	}))
	defer srv.Close()

	d := NewCollyDriver(srv.URL, "", 5*time.Second)
	raw, err := d.Fetch(context.Background(), "B000TEST01")
	require.NoError(t, err)

	assert.Equal(t, models.ASIN("B000TEST01"), raw.ASIN)
	assert.Equal(t, models.BackendColly, raw.Backend)
	assert.Equal(t, "ワイヤレスイヤホン 高音質", raw.Title)
	assert.Equal(t, "￥4,980", raw.RawPrice)
	assert.Equal(t, "在庫あり。", raw.RawStock)
	assert.False(t, raw.FetchedAt.IsZero())
}

func TestCollyDriverNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewCollyDriver(srv.URL, "", 5*time.Second)
	_, err := d.Fetch(context.Background(), "B000DEAD00")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollyDriverBlockedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewCollyDriver(srv.URL, "", 5*time.Second)
	_, err := d.Fetch(context.Background(), "B000TEST01")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestCollyDriverBlockedChallengePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(challengePage))
	}))
	defer srv.Close()

	d := NewCollyDriver(srv.URL, "", 5*time.Second)
	_, err := d.Fetch(context.Background(), "B000TEST01")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestCollyDriverMissingTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>ご指定されたページが見つかりません</p></body></html>`))
	}))
	defer srv.Close()

	d := NewCollyDriver(srv.URL, "", 5*time.Second)
	_, err := d.Fetch(context.Background(), "B000TEST01")
	assert.ErrorIs(t, err, ErrNotFound)
}

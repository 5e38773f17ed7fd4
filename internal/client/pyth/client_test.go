package pyth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLatestPriceScalesByExpo(t *testing.T) {
	var gotIDs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/updates/price/latest" {
			t.Errorf("path=%s", r.URL.Path)
		}
		gotIDs = r.URL.Query().Get("ids[]")
		_, _ = w.Write([]byte(`{"parsed":[{"id":"abc","price":{"price":"14234567890","conf":"1234567","expo":-8,"publish_time":1700000000}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "0xabc")
	p, err := c.LatestPrice(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if gotIDs != "abc" {
		t.Fatalf("ids=%q want=abc", gotIDs)
	}
	if p.Price.String() != "142.3456789" {
		t.Fatalf("price=%s want=142.3456789", p.Price)
	}
	if p.Conf.String() != "0.01234567" {
		t.Fatalf("conf=%s want=0.01234567", p.Conf)
	}
	if p.PublishTime.Unix() != 1700000000 {
		t.Fatalf("publish=%v", p.PublishTime)
	}
}

func TestLatestPriceFailsClosed(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"http error":    {status: http.StatusServiceUnavailable, body: `oops`},
		"missing price": {status: http.StatusOK, body: `{"parsed":[]}`},
		"zero price":    {status: http.StatusOK, body: `{"parsed":[{"price":{"price":"0","expo":-8}}]}`},
		"bad json":      {status: http.StatusOK, body: `{`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			p, err := NewClient(srv.Client(), srv.URL, "").LatestPrice(context.Background())
			if err == nil {
				t.Fatalf("price=%s want error", p.Price)
			}
		})
	}
}

func TestLatestPriceAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	_, err := NewClient(srv.Client(), srv.URL, "").LatestPrice(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("err=%v want APIError 429", err)
	}
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSignVerify(t *testing.T) {
	j := JWT{Secret: []byte("s3cret"), Issuer: "ibrl-agent", TokenTTL: time.Hour}
	tok, exp, err := j.Sign("wallet1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("exp=%v", exp)
	}
	claims, err := j.Verify(tok)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if claims.Owner != "wallet1" || claims.Subject != "wallet1" {
		t.Fatalf("claims=%+v", claims)
	}

	other := JWT{Secret: []byte("other"), Issuer: "ibrl-agent"}
	if _, err := other.Verify(tok); err == nil {
		t.Fatalf("expected signature failure")
	}
	wrongIssuer := JWT{Secret: []byte("s3cret"), Issuer: "someone-else"}
	if _, err := wrongIssuer.Verify(tok); err == nil {
		t.Fatalf("expected issuer failure")
	}
	if _, _, err := j.Sign(" "); err == nil {
		t.Fatalf("expected error for empty owner")
	}
}

func TestVerifyExpired(t *testing.T) {
	j := JWT{Secret: []byte("s3cret"), TokenTTL: time.Nanosecond}
	tok, _, err := j.Sign("wallet1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := j.Verify(tok); err == nil {
		t.Fatalf("expected expiry failure")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	j := JWT{Secret: []byte("s3cret")}
	r := gin.New()
	r.GET("/who", Middleware(j), func(c *gin.Context) {
		owner, _ := OwnerFromContext(c)
		c.String(http.StatusOK, owner)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d want=401", w.Code)
	}

	tok, _, _ := j.Sign("wallet1")
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "wallet1" {
		t.Fatalf("code=%d body=%q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d want=401", w.Code)
	}
}

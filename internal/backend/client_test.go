package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token(ctx context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) Token(ctx context.Context) (string, error) {
	return "", errors.New("keychain locked")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{400, KindBadRequest},
		{404, KindBadRequest},
		{409, KindBadRequest},
		{422, KindBadRequest},
		{401, KindUnauthorized},
		{403, KindUnauthorized},
		{429, KindRateLimited},
		{500, KindServer},
		{503, KindServer},
		{418, KindUnknown},
		{302, KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.status), "status %d", tt.status)
	}
}

func TestRequest_Envelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(requestIDHeader))
		w.Write([]byte(`{"success":true,"data":{"id":"u1","username":"alice"},"message":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithTokenSource(staticToken("tok")))
	resp := c.Request(context.Background(), http.MethodGet, "/users/me", nil)

	require.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Message)
	assert.NoError(t, resp.Err())

	var u User
	require.NoError(t, resp.Decode(&u))
	assert.Equal(t, "alice", u.Username)
}

func TestRequest_BareBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id":"c1","entryFee":200000000,"escrow":"E"}]`))
	}))
	defer srv.Close()

	list, err := NewClient(srv.URL, time.Second, WithTokenSource(staticToken(""))).Contests(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(200_000_000), list[0].EntryFee)
}

func TestRequest_BareObjectSharingEnvelopeKeys(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message key", `{"id":"u1","username":"alice","message":"welcome back"}`, "alice"},
		{"data key", `{"id":"u1","username":"alice","data":{"theme":"dark"}}`, "alice"},
		{"error key", `{"id":"u1","username":"alice","error":""}`, "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			u, err := NewClient(srv.URL, time.Second).Me(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "u1", u.ID)
			assert.Equal(t, tt.want, u.Username)
		})
	}
}

func TestRequest_DataOnlyEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":{"id":"u2","username":"bob"},"message":"ok"}`)
	}))
	defer srv.Close()

	resp := NewClient(srv.URL, time.Second).Request(context.Background(), http.MethodGet, "/users/me", nil)
	require.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Message)
	var u User
	require.NoError(t, resp.Decode(&u))
	assert.Equal(t, "bob", u.Username)
}

func TestRequest_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{"envelope message", 422, `{"success":false,"message":"entry closed"}`, KindBadRequest, "entry closed"},
		{"error field", 401, `{"error":"token expired"}`, KindUnauthorized, "token expired"},
		{"plain text", 429, "slow down\n", KindRateLimited, "slow down"},
		{"empty body", 502, "", KindServer, "Bad Gateway"},
		{"2xx failure flag", 200, `{"success":false,"message":"nope"}`, KindBadRequest, "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			resp := NewClient(srv.URL, time.Second).Request(context.Background(), http.MethodGet, "/x", nil)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.Equal(t, tt.message, resp.Message)

			var be *Error
			require.ErrorAs(t, resp.Err(), &be)
			assert.Equal(t, tt.status, be.Status)
			assert.True(t, IsKind(resp.Err(), tt.kind))
		})
	}
}

func TestRequest_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	resp := NewClient(url, time.Second).Request(context.Background(), http.MethodGet, "/x", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, KindUnknown, resp.Kind)
	assert.Equal(t, 0, resp.Status)
	assert.Error(t, resp.Err())
}

func TestRequest_TokenSourceErrorStillSends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"joined":true}}`))
	}))
	defer srv.Close()

	joined, err := NewClient(srv.URL, time.Second, WithTokenSource(failingToken{})).HasJoined(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, joined)
}

func TestAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"success":true,"data":{"token":"t1","user":{"id":"u1"}}}`))
	})
	mux.HandleFunc("/contests/c1/participation", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"joined":false}}`))
	})
	var recorded string
	mux.HandleFunc("/contests/c1/entries", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		recorded = string(b)
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	login, err := c.Login(ctx, LoginRequest{Address: "a", Message: "m", Signature: "s"})
	require.NoError(t, err)
	assert.Equal(t, "t1", login.Token)

	joined, err := c.HasJoined(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, joined)

	require.NoError(t, c.RecordEntry(ctx, "c1", "sig"))
	assert.JSONEq(t, `{"signature":"sig"}`, recorded)

	_, err = c.Contest(ctx, "missing")
	assert.True(t, IsKind(err, KindBadRequest))
}

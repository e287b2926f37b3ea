package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"CERT-PDF/internal/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckURL(t *testing.T) {
	open := NewTemplateFetcher(nil, time.Second, 1<<20, nil)
	_, err := open.CheckURL("https://storage.example.com/a.pdf")
	assert.NoError(t, err)
	_, err = open.CheckURL("http://storage.example.com/a.pdf")
	assert.ErrorIs(t, err, ErrURLNotAllowed)
	_, err = open.CheckURL("not a url")
	assert.ErrorIs(t, err, ErrURLNotAllowed)

	restricted := NewTemplateFetcher([]string{"firebasestorage.googleapis.com"}, time.Second, 1<<20, nil)
	_, err = restricted.CheckURL("https://firebasestorage.googleapis.com/v0/b/x.pdf")
	assert.NoError(t, err)
	_, err = restricted.CheckURL("https://eu.firebasestorage.googleapis.com/x.pdf")
	assert.NoError(t, err)
	_, err = restricted.CheckURL("https://evil-firebasestorage.googleapis.com.attacker.io/x.pdf")
	assert.ErrorIs(t, err, ErrURLNotAllowed)
	_, err = restricted.CheckURL("file:///etc/passwd")
	assert.ErrorIs(t, err, ErrURLNotAllowed)
}

func TestFetch(t *testing.T) {
	body := []byte("%PDF-1.4 fake")
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/ok.pdf":
			w.Write(body)
		case "/big.pdf":
			w.Write(make([]byte, 2048))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewTemplateFetcher([]string{"127.0.0.1"}, 5*time.Second, 1024, nil)

	data, err := f.Fetch(context.Background(), srv.URL+"/ok.pdf")
	require.NoError(t, err)
	assert.Equal(t, body, data)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.pdf")
	assert.ErrorIs(t, err, processor.ErrTemplateFetchFailed)

	_, err = f.Fetch(context.Background(), srv.URL+"/big.pdf")
	assert.ErrorIs(t, err, processor.ErrTemplateFetchFailed)

	_, err = f.Fetch(context.Background(), "https://other.example.com/x.pdf")
	assert.ErrorIs(t, err, processor.ErrTemplateFetchFailed)
	assert.ErrorIs(t, err, ErrURLNotAllowed)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchRedirectMustStayAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved.pdf":
			http.Redirect(w, r, "/ok.pdf", http.StatusFound)
		case "/away.pdf":
			http.Redirect(w, r, "https://attacker.example.net/x.pdf", http.StatusFound)
		default:
			w.Write([]byte("%PDF-1.4"))
		}
	}))
	defer srv.Close()

	f := NewTemplateFetcher([]string{"127.0.0.1"}, 5*time.Second, 1024, nil)
	data, err := f.Fetch(context.Background(), srv.URL+"/moved.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	_, err = f.Fetch(context.Background(), srv.URL+"/away.pdf")
	assert.ErrorIs(t, err, processor.ErrTemplateFetchFailed)
	assert.ErrorIs(t, err, ErrURLNotAllowed)
}

func TestFetchCallerCancelDoesNotFailSharedDownload(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := NewTemplateFetcher([]string{"127.0.0.1"}, 5*time.Second, 1024, nil)
	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, srv.URL+"/slow.pdf")
		first <- err
	}()
	<-started

	second := make(chan []byte, 1)
	go func() {
		data, err := f.Fetch(context.Background(), srv.URL+"/slow.pdf")
		assert.NoError(t, err)
		second <- data
	}()

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)
	close(release)

	select {
	case data := <-second:
		assert.Equal(t, []byte("%PDF-1.4"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("shared download did not finish")
	}
}

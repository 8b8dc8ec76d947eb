package gcs_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/w1tte/hltv-scraper-sub000/internal/archive/gcs"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    r,
	}
}

// fakeGCS answers bucket lookups and uploads; uploadStatus overrides the
// upload response code.
type fakeGCS struct {
	mu           sync.Mutex
	uploadStatus int
	uploads      []string
}

func (f *fakeGCS) client(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(
		context.Background(),
		option.WithoutAuthentication(),
		option.WithHTTPClient(&http.Client{Transport: roundTripperFunc(f.roundTrip)}),
	)
	require.NoError(t, err)
	return client
}

func (f *fakeGCS) roundTrip(r *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/"):
		f.uploads = append(f.uploads, r.URL.RawQuery)
		if r.Body != nil {
			_, _ = io.Copy(io.Discard, r.Body)
		}
		if f.uploadStatus != 0 {
			return jsonResponse(r, f.uploadStatus, `{"error":{"code":412,"message":"conditionNotMet"}}`), nil
		}
		return jsonResponse(r, http.StatusOK, `{"bucket":"hltv-raw","name":"raw/matches/abc.html"}`), nil
	case strings.HasPrefix(r.URL.Path, "/storage/v1/b/hltv-raw"):
		return jsonResponse(r, http.StatusOK, `{"name":"hltv-raw"}`), nil
	default:
		return jsonResponse(r, http.StatusNotFound, `{"error":{"code":404,"message":"not found"}}`), nil
	}
}

func TestNewChecksBucket(t *testing.T) {
	f := &fakeGCS{}
	client := f.client(t)
	defer client.Close()

	_, err := gcs.New(context.Background(), client, gcs.Config{Bucket: "hltv-raw"})
	require.NoError(t, err)

	_, err = gcs.New(context.Background(), client, gcs.Config{Bucket: "missing"})
	require.Error(t, err)

	_, err = gcs.New(context.Background(), client, gcs.Config{})
	require.Error(t, err)

	_, err = gcs.New(context.Background(), nil, gcs.Config{Bucket: "hltv-raw"})
	require.Error(t, err)
}

func TestPutObject(t *testing.T) {
	f := &fakeGCS{}
	client := f.client(t)
	defer client.Close()

	a, err := gcs.New(context.Background(), client, gcs.Config{Bucket: "hltv-raw", Prefix: "/scrapes/"})
	require.NoError(t, err)

	uri, err := a.PutObject(context.Background(), "raw/matches/abc.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://hltv-raw/scrapes/raw/matches/abc.html", uri)
	require.Len(t, f.uploads, 1)
	assert.Contains(t, f.uploads[0], "ifGenerationMatch=0")

	_, err = a.PutObject(context.Background(), " ", "", nil)
	require.Error(t, err)
}

func TestPutObjectExistingIsNotAnError(t *testing.T) {
	f := &fakeGCS{uploadStatus: http.StatusPreconditionFailed}
	client := f.client(t)
	defer client.Close()

	a, err := gcs.New(context.Background(), client, gcs.Config{Bucket: "hltv-raw"})
	require.NoError(t, err)

	uri, err := a.PutObject(context.Background(), "raw/maps/def.html", "text/html", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "gs://hltv-raw/raw/maps/def.html", uri)
}

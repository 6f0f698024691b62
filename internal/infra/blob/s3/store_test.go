package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"distributor/internal/blob/core"
	"distributor/internal/retry"

	"github.com/stretchr/testify/require"
)

// fakeS3 answers the path-style subset of the S3 API the store issues.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    int
	failPut int
}

type fakeObject struct {
	body        []byte
	contentType string
}

func (f *fakeS3) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return f.list(req.URL.Query().Get("prefix")), nil
	}
	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, `<Error><Code>NoSuchKey</Code></Error>`, nil), nil
		}
		header := http.Header{
			"Content-Length": {fmt.Sprint(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"etag-` + key + `"`},
			"Last-Modified":  {time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat)},
		}
		if req.Method == http.MethodHead {
			return respond(http.StatusOK, "", header), nil
		}
		return respond(http.StatusOK, string(obj.body), header), nil
	case http.MethodPut:
		f.puts++
		if f.failPut > 0 {
			f.failPut--
			return respond(http.StatusServiceUnavailable, `<Error><Code>SlowDown</Code><Message>service unavailable</Message></Error>`, nil), nil
		}
		if _, exists := f.objects[key]; exists && req.Header.Get("If-None-Match") == "*" {
			return respond(http.StatusPreconditionFailed, `<Error><Code>PreconditionFailed</Code></Error>`, nil), nil
		}
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type")}
		return respond(http.StatusOK, "", http.Header{"Etag": {`"etag"`}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func (f *fakeS3) list(prefix string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
	}
}

func newTestStore(t *testing.T, fake *fakeS3) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{
		Bucket:          "airdrop",
		Endpoint:        "http://s3.test",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      fake,
		Retry:           retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	return store
}

func TestS3StoreLifecycle(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string]fakeObject{}}
	s := newTestStore(t, fake)
	require.Equal(t, core.DriverS3, s.Driver())
	require.Equal(t, "airdrop", s.Bucket())

	info, err := s.Put(ctx, "events/000001.json", strings.NewReader(`[1]`), core.PutOptions{ContentType: "application/json"})
	require.NoError(t, err)
	require.EqualValues(t, 3, info.Size)
	require.Equal(t, "etag-events/000001.json", info.ETag)

	_, err = s.Put(ctx, "events/000001.json", strings.NewReader(`[2]`), core.PutOptions{})
	require.ErrorIs(t, err, core.ErrExists)

	_, rc, err := s.Get(ctx, "events/000001.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.Equal(t, `[1]`, string(body))

	_, err = s.Put(ctx, "snapshots/000002.json", strings.NewReader(`{}`), core.PutOptions{})
	require.NoError(t, err)
	list, err := s.List(ctx, "events/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "events/000001.json", list[0].Key)

	ok, err := s.Delete(ctx, "events/000001.json")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Delete(ctx, "events/000001.json")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Head(ctx, "events/000001.json")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestS3StorePutRetriesTransientFailures(t *testing.T) {
	fake := &fakeS3{objects: map[string]fakeObject{}, failPut: 1}
	s := newTestStore(t, fake)
	_, err := s.Put(context.Background(), "k", strings.NewReader("v"), core.PutOptions{})
	require.NoError(t, err)
	require.GreaterOrEqual(t, fake.puts, 2)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "bucket required")
}

package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"

	"regal/pkg/models"
	"regal/pkg/page"
	"regal/pkg/thumbs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newServer serves fixed bodies per path; unknown paths get 404
func newServer(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newObservedFetcher(ts *httptest.Server, opts ...Option) (*Fetcher, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	opts = append([]Option{WithHTTPClient(ts.Client()), WithLogger(zap.New(core))}, opts...)
	return NewFetcher(opts...), logs
}

func wait(t *testing.T, req *Request) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := req.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func newTarget() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "div"}
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func TestFetchJSONSuccess(t *testing.T) {
	ts := newServer(t, map[string]string{"/p": `[{"display":"a.jpg","thumb":"a_t.jpg"}]`})
	f, logs := newObservedFetcher(ts)

	var got []models.Picture
	errorCalled := false
	req := FetchJSON(context.Background(), f, ts.URL+"/p",
		func(p []models.Picture) { got = p },
		func(*Response) { errorCalled = true })

	require.NoError(t, wait(t, req))
	assert.False(t, errorCalled)
	if diff := cmp.Diff([]models.Picture{{Display: "a.jpg", Thumb: "a_t.jpg"}}, got); diff != "" {
		t.Errorf("unexpected pictures (-want +got):\n%s", diff)
	}
	assert.Zero(t, logs.Len())
}

func TestFetchJSONStatusErrorCallback(t *testing.T) {
	ts := newServer(t, nil)
	f, logs := newObservedFetcher(ts)

	var resp *Response
	successCalled := false
	req := FetchJSON(context.Background(), f, ts.URL+"/missing",
		func(any) { successCalled = true },
		func(r *Response) { resp = r })

	err := wait(t, req)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	assert.False(t, successCalled)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ts.URL+"/missing", resp.URL)
	assert.Contains(t, string(resp.Body), "404 page not found")
	assert.Zero(t, logs.Len(), "an error callback replaces the diagnostic")
}

func TestFetchJSONStatusErrorLogged(t *testing.T) {
	ts := newServer(t, nil)
	f, logs := newObservedFetcher(ts)
	url := ts.URL + "/missing"

	req := FetchJSON(context.Background(), f, url, func(any) {
		t.Error("success callback called")
	}, nil)
	wait(t, req)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "Error loading url ["+url+"]: 404", entries[0].Message)
	assert.Equal(t, url, entries[0].ContextMap()["url"])
	assert.EqualValues(t, 404, entries[0].ContextMap()["status"])
}

func TestFetchJSONMalformedBody(t *testing.T) {
	ts := newServer(t, map[string]string{"/bad": `[{"display":`})
	f, _ := newObservedFetcher(ts)

	var resp *Response
	req := FetchJSON(context.Background(), f, ts.URL+"/bad",
		func([]models.Picture) { t.Error("success callback called") },
		func(r *Response) { resp = r })
	wait(t, req)

	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var decodeErr *DecodeError
	assert.ErrorAs(t, resp.Err, &decodeErr)
}

func TestFetchJSONTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL + "/gone"
	client := ts.Client()
	ts.Close()

	core, logs := observer.New(zap.DebugLevel)
	f := NewFetcher(WithHTTPClient(client), WithLogger(zap.New(core)))

	err := wait(t, FetchJSON(context.Background(), f, url, func(any) {}, nil))
	assert.Error(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Error loading url ["+url+"]: 0", entries[0].Message)
}

func TestFetchJSONRunsCallbacksOnScheduler(t *testing.T) {
	ts := newServer(t, map[string]string{"/p": `[]`})
	loop := page.NewLoop()
	defer loop.Close()
	f, _ := newObservedFetcher(ts, WithScheduler(loop))

	// While the loop is held the callback cannot run, so the request cannot finish.
	release := make(chan struct{})
	require.NoError(t, loop.Post(func() { <-release }))

	called := false
	req := FetchJSON(context.Background(), f, ts.URL+"/p", func([]models.Picture) { called = true }, nil)
	select {
	case <-req.Done():
		t.Fatal("request finished while the loop was held")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, wait(t, req))
	assert.True(t, called)
}

func TestFetchJSONClosedScheduler(t *testing.T) {
	ts := newServer(t, map[string]string{"/p": `[]`})
	loop := page.NewLoop()
	loop.Close()
	f, _ := newObservedFetcher(ts, WithScheduler(loop))

	err := wait(t, FetchJSON(context.Background(), f, ts.URL+"/p", func([]models.Picture) {
		t.Error("callback ran on a closed loop")
	}, nil))
	assert.ErrorIs(t, err, page.ErrLoopClosed)
}

func TestGet(t *testing.T) {
	ts := newServer(t, map[string]string{
		"/gallery/1": `{"gallery_id":1,"gallery_name":"Trip","display":"/web/gallery/1","thumb":"none"}`,
		"/bad":       `nope`,
	})
	f, _ := newObservedFetcher(ts)
	ctx := context.Background()

	gallery, err := Get[models.Gallery](ctx, f, ts.URL+"/gallery/1")
	require.NoError(t, err)
	assert.Equal(t, "Trip", gallery.GalleryName)
	assert.False(t, gallery.HasThumb())

	_, err = Get[models.Gallery](ctx, f, ts.URL+"/gallery/2")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 404, statusErr.StatusCode)

	_, err = Get[models.Gallery](ctx, f, ts.URL+"/bad")
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestRenderListSinglePicture(t *testing.T) {
	ts := newServer(t, map[string]string{"/p": `[{"display":"a.jpg","thumb":"a_t.jpg"}]`})
	f, _ := newObservedFetcher(ts)
	target := newTarget()

	require.NoError(t, wait(t, RenderList(context.Background(), f, ts.URL+"/p", target, thumbs.Picture, nil)))

	nodes := childNodes(target)
	require.Len(t, nodes, 1)
	assert.Equal(t, thumbs.BoxClass, attr(nodes[0], "class"))
	link := nodes[0].FirstChild
	assert.Equal(t, "a.jpg", attr(link, "href"))
	assert.Equal(t, "a_t.jpg", attr(link.FirstChild, "src"))
}

func TestRenderListKeepsOrder(t *testing.T) {
	ts := newServer(t, map[string]string{"/g": `[
		{"display":"1","thumb":"none","gallery_name":"one"},
		{"display":"2","thumb":"t2","gallery_name":"two"},
		{"display":"3","thumb":"none","gallery_name":"three"}]`})
	loop := page.NewLoop()
	defer loop.Close()
	f, _ := newObservedFetcher(ts, WithScheduler(loop))
	target := newTarget()

	var fetched []models.Gallery
	appendedBefore := -1
	req := RenderList(context.Background(), f, ts.URL+"/g", target, thumbs.Gallery, func(g []models.Gallery) {
		fetched = g
		appendedBefore = len(childNodes(target))
	})
	require.NoError(t, wait(t, req))

	assert.Len(t, fetched, 3)
	assert.Equal(t, 0, appendedBefore)
	nodes := childNodes(target)
	require.Len(t, nodes, 3)
	for i, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, attr(nodes[i].FirstChild, "href"))
	}
}

func TestRenderListNotFound(t *testing.T) {
	ts := newServer(t, nil)
	f, logs := newObservedFetcher(ts)
	target := newTarget()
	url := ts.URL + "/picture/in_gallery/9"

	onFetchedCalled := false
	err := wait(t, RenderList(context.Background(), f, url, target, thumbs.Picture, func([]models.Picture) {
		onFetchedCalled = true
	}))

	assert.Error(t, err)
	assert.False(t, onFetchedCalled)
	assert.Nil(t, target.FirstChild)
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.True(t, strings.Contains(entries[0].Message, url))
	assert.True(t, strings.Contains(entries[0].Message, "404"))
}

func TestRenderListNilNode(t *testing.T) {
	ts := newServer(t, map[string]string{"/p": `[{"display":"a"},{"display":"b"}]`})
	f, _ := newObservedFetcher(ts)
	target := newTarget()

	err := wait(t, RenderList(context.Background(), f, ts.URL+"/p", target, func(p models.Picture) *html.Node {
		if p.Display == "b" {
			return nil
		}
		return thumbs.Picture(p)
	}, nil))

	assert.ErrorIs(t, err, ErrNilNode)
	assert.Len(t, childNodes(target), 1)
}

package client

import (
	"context"
	"errors"

	"golang.org/x/net/html"
)

// ErrNilNode is returned when a builder produces no node
var ErrNilNode = errors.New("builder returned nil node")

// Builder maps one record to one renderable node
type Builder[T any] func(T) *html.Node

// RenderList fetches a JSON array from url and appends builder(element) to
// target for each element, in array order. onFetched, when set, sees the whole
// array before anything is appended. On a failed fetch nothing is appended and
// the failure is logged by the fetcher.
//
// When the fetcher has a scheduler, appends happen on it, so target may belong
// to a page.Document bound to the same loop.
func RenderList[T any](ctx context.Context, f *Fetcher, url string, target *html.Node, builder Builder[T], onFetched func([]T)) *Request {
	var renderErr error
	fetched := FetchJSON(ctx, f, url, func(data []T) {
		if onFetched != nil {
			onFetched(data)
		}
		for _, element := range data {
			node := builder(element)
			if node == nil {
				renderErr = ErrNilNode
				return
			}
			target.AppendChild(node)
		}
	}, nil)

	req := newRequest()
	go func() {
		<-fetched.Done()
		err := fetched.Err()
		if err == nil {
			err = renderErr
		}
		req.finish(err)
	}()
	return req
}

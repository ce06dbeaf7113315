// Package thumbs builds the thumbnail elements for pictures and galleries.
//
// Every thumbnail is a div.thumb-box wrapping a link; images carry the class
// "thumb". Those two classes are the only contract with stylesheets.
package thumbs

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"regal/pkg/models"
)

const (
	// BoxClass is the class of the div wrapping every thumbnail
	BoxClass = "thumb-box"
	// ImageClass is the class of thumbnail images
	ImageClass = "thumb"
)

// Picture returns div.thumb-box > a[href=display] > img.thumb[src=thumb]
func Picture(picture models.Picture) *html.Node {
	link := element(atom.A, "href", picture.Display)
	link.AppendChild(image(picture.Thumb))
	return box(link)
}

// Gallery returns div.thumb-box > a[href=display]. The link holds the thumbnail
// image followed by the gallery name, or only the name when the gallery has no thumb.
func Gallery(gallery models.Gallery) *html.Node {
	link := element(atom.A, "href", gallery.Display)
	if gallery.HasThumb() {
		name := element(atom.P)
		name.AppendChild(text(gallery.GalleryName))
		link.AppendChild(image(gallery.Thumb))
		link.AppendChild(name)
	} else {
		link.AppendChild(text(gallery.GalleryName))
	}
	return box(link)
}

// RenderHTML serialises nodes one after another
func RenderHTML(nodes ...*html.Node) (string, error) {
	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return "", fmt.Errorf("failed to render thumbnail: %w", err)
		}
	}
	return b.String(), nil
}

func box(child *html.Node) *html.Node {
	div := element(atom.Div, "class", BoxClass)
	div.AppendChild(child)
	return div
}

func image(src string) *html.Node {
	return element(atom.Img, "src", src, "class", ImageClass)
}

// element creates an element with attributes given as key, value pairs
func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

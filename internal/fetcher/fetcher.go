// Package fetcher downloads board catalogs and converts them into posts.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"chanwatch_bot/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

var threadNoPattern = regexp.MustCompile(`(?:thread|res)/(\d+)`)
var trailingDigits = regexp.MustCompile(`(\d+)\D*$`)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses board catalog feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses a catalog feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ChanWatchBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// FetchCatalog downloads a board catalog and returns its threads as OP posts.
func (f *Fetcher) FetchCatalog(ctx context.Context, board model.BoardDescriptor, url string) ([]model.Post, error) {
	feed, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return CatalogPosts(board, feed.Items), nil
}

// CatalogPosts converts catalog feed items into OP posts. Items without a
// recognizable thread number are skipped.
func CatalogPosts(board model.BoardDescriptor, items []*gofeed.Item) []model.Post {
	var posts []model.Post
	for _, item := range items {
		no, ok := ThreadNo(item)
		if !ok {
			continue
		}
		post := model.Post{
			Board:    board,
			No:       no,
			ThreadNo: no,
			IsOP:     true,
			Subject:  strings.TrimSpace(item.Title),
			Comment:  PlainText(item.Description),
			Link:     item.Link,
			Images:   postImages(item),
		}
		if item.Author != nil {
			post.Name = item.Author.Name
		}
		posts = append(posts, post)
	}
	return posts
}

// ThreadNo extracts the thread number from an item's link or GUID.
func ThreadNo(item *gofeed.Item) (int64, bool) {
	for _, s := range []string{item.Link, item.GUID} {
		if m := threadNoPattern.FindStringSubmatch(s); m != nil {
			if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				return n, true
			}
		}
	}
	if m := trailingDigits.FindStringSubmatch(item.GUID); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// PlainText strips HTML markup from a post body.
func PlainText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.TrimSpace(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	return strings.TrimSpace(doc.Text())
}

func postImages(item *gofeed.Item) []model.PostImage {
	var images []model.PostImage
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type != "" && !strings.HasPrefix(enc.Type, "image/") && !strings.HasPrefix(enc.Type, "video/") {
			continue
		}
		base := path.Base(enc.URL)
		ext := strings.TrimPrefix(path.Ext(base), ".")
		img := model.PostImage{
			ServerFilename: strings.TrimSuffix(base, path.Ext(base)),
			ImageURL:       enc.URL,
			Extension:      ext,
		}
		img.Filename = img.ServerFilename
		if size, err := strconv.ParseInt(enc.Length, 10, 64); err == nil {
			img.Size = size
		}
		images = append(images, img)
	}
	// gofeed falls back to the image enclosure for item.Image.
	if item.Image != nil && len(images) > 0 && item.Image.URL != images[0].ImageURL {
		images[0].ThumbnailURL = item.Image.URL
	}
	return images
}

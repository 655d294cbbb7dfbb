package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
)

const pageURL = "https://www.hse.ru/index.html"

func newExtractor(t *testing.T, mutate func(*Config)) *Extractor {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	ex, err := New(cfg)
	require.NoError(t, err)
	return ex
}

func TestExtractTitleAndDescription(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, nil)
	got, err := ex.Extract(pageURL, []byte(`<html><head><title> Fallback </title>`+
		`<meta property="title" content=" Meta title "><meta property="description" content=" About "></head>`+
		`<body><p>x</p></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Meta title", got.Title)
	assert.Equal(t, "About", got.Description)

	got, err = ex.Extract(pageURL, []byte(`<html><head><title> Fallback </title></head><body></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Fallback", got.Title)
	assert.Empty(t, got.Description)
}

func TestExtractMainContentLinks(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, func(c *Config) { c.SaveContent = true })
	got, err := ex.Extract(pageURL, []byte(`<html><body>`+
		`<div class="main"><p>Body text</p>`+
		`<a href="/news?id=1">n</a>`+
		`<a href="https://www.hse.ru/news">dup</a>`+
		`<a href="https://google.com/x">ext</a>`+
		`<a href="https://spb.hse.ru/about/">s</a></div>`+
		`<div class="sidebar"><a href="/side">x</a></div>`+
		`</body></html>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.hse.ru/news", "https://spb.hse.ru/about/"}, got.Links)
	assert.Equal(t, "Body text. n. dup. ext. s", got.Content)
}

func TestExtractRejectsForeignHosts(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, nil)
	got, err := ex.Extract("https://www.hse.ru/", []byte(`<html><body><div class="main">`+
		`<a href="https://evil.com/hse.ru/page">path</a>`+
		`<a href="https://www.hse.ru.attacker.net/p">host</a>`+
		`<a href="https://nothse.ru/x">lookalike</a>`+
		`<a href="https://spb.hse.ru/about">sub</a>`+
		`<a href="/local">local</a>`+
		`</div></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://spb.hse.ru/about", "https://www.hse.ru/local"}, got.Links)
}

func TestExtractLaterMainClassWins(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, func(c *Config) { c.SaveContent = true })
	got, err := ex.Extract(pageURL, []byte(`<html><body>`+
		`<div class="main"><p>first</p><a href="/first">f</a></div>`+
		`<div class="content"><p>second</p><a href="/second">s</a></div>`+
		`</body></html>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.hse.ru/second"}, got.Links)
	assert.Equal(t, "second. s", got.Content)
}

func TestExtractFallsBackToBodyChildren(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, func(c *Config) { c.SaveContent = true })
	got, err := ex.Extract(pageURL, []byte(`<html><body>`+
		`<div><p>Hello</p><a href="/a">A</a></div>`+
		`<footer><a href="/f">F</a></footer>`+
		`<div class="sidebar"><a href="/s">S</a></div>`+
		`<nav class="menu"><a href="/b">B</a></nav>`+
		`</body></html>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.hse.ru/a", "https://www.hse.ru/b"}, got.Links)
	assert.Equal(t, "Hello. A. B", got.Content)
}

func TestExtractMainWithoutLinksUsesBody(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, nil)
	got, err := ex.Extract(pageURL, []byte(`<html><body>`+
		`<div class="content"><p>only text</p></div>`+
		`<div><a href="/elsewhere">E</a></div>`+
		`</body></html>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.hse.ru/elsewhere"}, got.Links)
	assert.Empty(t, got.Content)
}

func TestExtractHeaderSections(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, func(c *Config) { c.SaveHeaderArticlePairs = true })
	got, err := ex.Extract(pageURL, []byte(`<html><body>`+
		`<h1>Title</h1><p>First</p><div>Block <span>x</span></div>`+
		`<h2>Second</h2><ul><li>a</li><li>b</li></ul>`+
		`<section><p>Before</p><h2>Inner</h2><p>After</p></section>`+
		`</body></html>`))
	require.NoError(t, err)
	assert.Equal(t, []crawler.HeaderSection{
		{Level: "1", Content: "Title", Responses: []string{"First", "Block. x"}},
		{Level: "2", Content: "Second", Responses: []string{"a. b", "Before"}},
		{Level: "2", Content: "Inner", Responses: []string{"After"}},
	}, got.Sections)
}

func TestExtractSectionsDisabled(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, nil)
	got, err := ex.Extract(pageURL, []byte(`<html><body><h1>T</h1><p>x</p></body></html>`))
	require.NoError(t, err)
	assert.Nil(t, got.Sections)
}

func TestExtractSkipsScriptText(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, func(c *Config) { c.SaveContent = true })
	got, err := ex.Extract(pageURL, []byte(`<html><body><div><script>var x = 1;</script><p>Visible</p></div></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Visible", got.Content)
}

func TestExtractEmptyDocument(t *testing.T) {
	t.Parallel()

	ex := newExtractor(t, nil)
	_, err := ex.Extract(pageURL, []byte("  \n"))
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{HeaderTags: []string{"h1"}})
	require.ErrorContains(t, err, "domain suffix")

	_, err = New(Config{DomainSuffix: "hse.ru"})
	require.ErrorContains(t, err, "header tag")
}

func TestLinkPattern(t *testing.T) {
	t.Parallel()

	pattern, err := LinkPattern("example.org")
	require.NoError(t, err)

	cases := map[string]string{
		"http://sub.example.org/path/x?q=1": "http://sub.example.org/path/x",
		"https://example.org":               "https://example.org",
		"https://example.com/page":          "",
		"ftp://example.org/file":            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, pattern.FindString(in), in)
	}
}

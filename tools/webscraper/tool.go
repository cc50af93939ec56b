package webscraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/bububa/research-agents/schema"
	"github.com/bububa/research-agents/tools"
)

// ErrEmptyDocument is returned when a page yields no extractable text.
var ErrEmptyDocument = errors.New("webscraper: document has no extractable text")

// BlockedError is returned when the origin refuses the request.
type BlockedError struct {
	StatusCode int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("webscraper: blocked with status %d", e.StatusCode)
}

// UnsupportedContentError is returned for content types the scraper cannot
// extract text from. Remote pages are untrusted and may serve anything.
type UnsupportedContentError struct {
	MIME string
}

func (e *UnsupportedContentError) Error() string {
	return fmt.Sprintf("webscraper: unsupported content type %s", e.MIME)
}

// Input schema for the WebpageScraperTool.
type Input struct {
	schema.Base
	// URL of the webpage to scrape.
	URL string `json:"url,omitempty" jsonschema:"title=url,description=URL of the webpage to scrape." validate:"required,url"`
	// IncludeLinks Whether to preserve hyperlinks in the markdown output.
	IncludeLinks bool `json:"include_links,omitempty" jsonschema:"title=include_links,description=Whether to preserve hyperlinks in the markdown output."`
}

func NewInput(link string, includeLinks bool) *Input {
	return &Input{
		URL:          link,
		IncludeLinks: includeLinks,
	}
}

// Metadata Schema for webpage metadata
type Metadata struct {
	schema.Base
	// Title is the title of the webpage.
	Title string `json:"title,omitempty" jsonschema:"title=title,description=The title of the webpage."`
	// Author is the author of the webpage content.
	Author string `json:"author,omitempty" jsonschema:"title=author,description=The Author of the webpage."`
	// Description is the meta description of the webpage.
	Description string `json:"description,omitempty" jsonschema:"title=description,description=The meta description of the webpage."`
	// SiteName is the name of the website.
	SiteName string `json:"sitename,omitempty" jsonschema:"title=sitename,description=The name of the website."`
	// Domain is the domain name of the website.
	Domain string `json:"domain,omitempty" jsonschema:"title=domain,description=The domain name of the website."`
	// MIME is the detected content type of the fetched document.
	MIME string `json:"mime,omitempty" jsonschema:"title=mime,description=The detected content type of the document."`
}

// Output Schema for the output of the WebpageScraperTool.
type Output struct {
	schema.Base
	// Content The scraped content in markdown format.
	Content string `json:"content,omitempty" jsonschema:"title=content,description=The scraped content in markdown format."`
	// Metadata is metadata about the scraped webpage.
	Metadata *Metadata `json:"metadata,omitempty" jsonschema:"title=metadata,description=Metadata about the webpage."`
}

func NewOutput(content string, metadata *Metadata) *Output {
	return &Output{
		Content:  content,
		Metadata: metadata,
	}
}

type Config struct {
	tools.Config
	// userAgent User agent string to use for requests.
	userAgent string
	// timeout Timeout in seconds for HTTP requests
	timeout int
	// maxContentLength Maximum content length in bytes to read from the remote.
	maxContentLength int64
	httpClient       *http.Client
}

type Webscraper struct {
	Config
}

func New(opts ...Option) *Webscraper {
	ret := new(Webscraper)
	for _, opt := range opts {
		opt(&ret.Config)
	}
	if ret.Title() == "" {
		ret.SetTitle("WebscraperTool")
	}
	if ret.userAgent == "" {
		ret.userAgent = DefaultUserAgent
	}
	if ret.timeout == 0 {
		ret.timeout = 30
	}
	if ret.maxContentLength == 0 {
		ret.maxContentLength = 4_000_000
	}
	if ret.httpClient == nil {
		ret.httpClient = &http.Client{Timeout: time.Second * time.Duration(ret.timeout)}
	}
	return ret
}

// Run fetches the page and extracts its main textual content. HTML is
// reduced to markdown, PDF is converted to plain text, everything else is
// rejected with UnsupportedContentError.
func (t *Webscraper) Run(ctx context.Context, input *Input) (*Output, error) {
	parsedURL, err := url.ParseRequestURI(input.URL)
	if err != nil {
		return nil, err
	}
	body, err := t.fetch(ctx, input.URL)
	if err != nil {
		return nil, err
	}
	meta := new(Metadata)
	meta.Domain = parsedURL.Host
	mime := mimetype.Detect(body)
	meta.MIME = mime.String()
	var content string
	switch {
	case mime.Is("text/html"), mime.Is("application/xhtml+xml"):
		content, err = t.extractHTML(parsedURL, body, meta)
	case mime.Is("application/pdf"):
		content, err = t.extractPDF(body)
	case mime.Is("text/plain"):
		content = string(body)
	default:
		return nil, &UnsupportedContentError{MIME: mime.String()}
	}
	if err != nil {
		return nil, err
	}
	content = t.cleanMarkdownContent(content)
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyDocument
	}
	return NewOutput(content, meta), nil
}

func (t *Webscraper) fetch(ctx context.Context, link string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", t.userAgent)
	httpReq.Header.Set("Accept", DefaultAccept)
	httpReq.Header.Set("Connection", "keep-alive")
	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	switch httpResp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return nil, &BlockedError{StatusCode: httpResp.StatusCode}
	default:
		return nil, fmt.Errorf("webscraper: http %d", httpResp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(httpResp.Body, t.maxContentLength))
}

func (t *Webscraper) extractHTML(parsedURL *url.URL, body []byte, meta *Metadata) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	t.extractMetadata(doc, meta)
	mainContent := t.extractMainContent(doc)
	return htmltomarkdown.ConvertString(
		mainContent,
		converter.WithDomain(fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)),
	)
}

func (t *Webscraper) extractPDF(body []byte) (string, error) {
	reader := bytes.NewReader(body)
	r, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Extracts metadata from the webpage
func (t *Webscraper) extractMetadata(doc *goquery.Document, meta *Metadata) {
	meta.Title = doc.Find("head title").Text()
	meta.Author, _ = doc.Find("meta[name='author']").Attr("content")
	meta.Description, _ = doc.Find("meta[name='description']").Attr("content")
	meta.SiteName, _ = doc.Find("meta[property='og:site_name']").Attr("content")
}

// extractMainContent extracts the main content from the webpage using custom heuristics
func (t *Webscraper) extractMainContent(doc *goquery.Document) string {
	for _, tag := range []string{"script", "style", "nav", "header", "footer", "aside"} {
		doc.Find(tag).Remove()
	}
	contentCandidates := []string{
		"main",
		"#content, #main",
		".content, .main",
		"article",
		"body",
	}
	var mainContent string
	for _, selector := range contentCandidates {
		sel := doc.Find(selector)
		if sel.Length() > 0 {
			if txt, err := sel.Html(); err == nil {
				mainContent = txt
				break
			}
		}
	}
	if mainContent == "" {
		mainContent, _ = doc.Html()
	}
	return mainContent
}

// Cleans up the markdown content by removing excessive whitespace and normalizing formatting
func (t *Webscraper) cleanMarkdownContent(content string) string {
	re := regexp.MustCompile(`\r?\n{2,}`)
	content = re.ReplaceAllString(content, "\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")
	content = strings.TrimSpace(content) + "\n"
	return content
}

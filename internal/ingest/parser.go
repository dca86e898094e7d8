package ingest

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const (
	defaultChunkSize    = 800
	defaultChunkOverlap = 100
)

// Chunk is one retrievable piece of an uploaded document.
type Chunk struct {
	Content  string
	Metadata map[string]string
}

// Parser splits uploaded knowledge documents into chunks. Supported
// formats: pdf, html, and plain text for everything else.
type Parser struct {
	chunkSize    int
	chunkOverlap int
}

func NewParser(chunkSize, chunkOverlap int) *Parser {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = defaultChunkOverlap
	}
	return &Parser{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Parse reads the whole document and chunks it by file extension.
func (p *Parser) Parse(filename string, r io.Reader) ([]Chunk, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	source := filepath.Base(filename)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return p.parsePDF(source, data)
	case ".html", ".htm":
		return p.parseHTML(source, data)
	default:
		return p.parseText(source, data)
	}
}

func (p *Parser) parsePDF(source string, data []byte) ([]Chunk, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	var chunks []Chunk
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// skip problematic pages instead of failing the upload
			continue
		}
		text = normalizeText(text)
		for idx, part := range chunkText(text, p.chunkSize, p.chunkOverlap) {
			chunks = append(chunks, Chunk{
				Content: part,
				Metadata: map[string]string{
					"source": source,
					"page":   strconv.Itoa(i),
					"chunk":  strconv.Itoa(idx),
				},
			})
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text extracted from pdf")
	}
	return chunks, nil
}

func (p *Parser) parseHTML(source string, data []byte) ([]Chunk, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	text := normalizeText(extractText(doc))
	return p.chunksFrom(source, text), nil
}

func (p *Parser) parseText(source string, data []byte) ([]Chunk, error) {
	return p.chunksFrom(source, normalizeText(string(data))), nil
}

func (p *Parser) chunksFrom(source, text string) []Chunk {
	parts := chunkText(text, p.chunkSize, p.chunkOverlap)
	chunks := make([]Chunk, 0, len(parts))
	for idx, part := range parts {
		chunks = append(chunks, Chunk{
			Content: part,
			Metadata: map[string]string{
				"source": source,
				"chunk":  strconv.Itoa(idx),
			},
		})
	}
	return chunks
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			chunks = append(chunks, part)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
			buf.WriteString(" ")
		case html.ElementNode:
			if node.Data == "script" || node.Data == "style" {
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && (node.Data == "p" || node.Data == "br" || node.Data == "div" || node.Data == "li") {
			buf.WriteString(" ")
		}
	}
	walk(n)
	return buf.String()
}

// Package docx fills {{TAG}} placeholders in a Word document.
//
// Word splits text into runs on spell checking and formatting changes, so a placeholder can
// arrive spread over several <w:t> nodes. Open moves every such placeholder back into the node
// where it starts, taking that run's formatting, before Tags or Apply look at the text.
package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

var (
	partPattern = regexp.MustCompile(`^word/(document|header[0-9]*|footer[0-9]*)\.xml$`)
	tagPattern  = regexp.MustCompile(`\{\{[^{}<>]+\}\}`)

	paragraphPattern = regexp.MustCompile(`(?s)<w:p(?:\s[^>]*[^/])?>.*?</w:p>`)
	textNodePattern  = regexp.MustCompile(`(?s)(<w:t(?:\s[^>]*[^/])?>)(.*?)</w:t>`)

	xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
)

const lineBreak = `</w:t><w:br/><w:t xml:space="preserve">`

type part struct {
	header zip.FileHeader
	body   []byte
}

// Template is a parsed .docx package.
type Template struct {
	parts []part
}

// Open parses a .docx package.
func Open(data []byte) (*Template, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	tpl := &Template{parts: make([]part, 0, len(reader.File))}
	hasDocument := false
	for _, f := range reader.File {
		body, err := readFile(f)
		if err != nil {
			return nil, err
		}
		if f.Name == "word/document.xml" {
			hasDocument = true
		}
		if partPattern.MatchString(f.Name) {
			body = paragraphPattern.ReplaceAllFunc(body, joinSplitTags)
		}
		tpl.parts = append(tpl.parts, part{header: f.FileHeader, body: body})
	}
	if !hasDocument {
		return nil, fmt.Errorf("open docx: word/document.xml not found")
	}
	return tpl, nil
}

// joinSplitTags rewrites the text nodes of one paragraph so that no placeholder crosses a node
// boundary. Text outside placeholders keeps its node.
func joinSplitTags(paragraph []byte) []byte {
	nodes := textNodePattern.FindAllSubmatchIndex(paragraph, -1)
	if len(nodes) < 2 {
		return paragraph
	}

	var text []byte
	var owner []int
	for i, node := range nodes {
		text = append(text, paragraph[node[4]:node[5]]...)
		for j := node[4]; j < node[5]; j++ {
			owner = append(owner, i)
		}
	}

	changed := make([]bool, len(nodes))
	moved := false
	for _, span := range tagPattern.FindAllIndex(text, -1) {
		start, end := span[0], span[1]
		if owner[start] == owner[end-1] {
			continue
		}
		first := owner[start]
		for j := start; j < end; j++ {
			changed[owner[j]] = true
			owner[j] = first
		}
		moved = true
	}
	if !moved {
		return paragraph
	}

	texts := make([][]byte, len(nodes))
	for j, b := range text {
		texts[owner[j]] = append(texts[owner[j]], b)
	}

	out := make([]byte, 0, len(paragraph))
	last := 0
	for i, node := range nodes {
		out = append(out, paragraph[last:node[2]]...)
		open := paragraph[node[2]:node[3]]
		if changed[i] && !bytes.Contains(open, []byte("xml:space")) {
			open = append([]byte(`<w:t xml:space="preserve"`), open[len("<w:t"):]...)
		}
		out = append(out, open...)
		out = append(out, texts[i]...)
		last = node[5]
	}
	return append(out, paragraph[last:]...)
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open docx part %s: %w", f.Name, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read docx part %s: %w", f.Name, err)
	}
	return body, nil
}

// Tags lists the distinct placeholders found in the document, header and footer parts, sorted.
func (t *Template) Tags() []string {
	seen := make(map[string]struct{})
	for _, p := range t.parts {
		if !partPattern.MatchString(p.header.Name) {
			continue
		}
		for _, tag := range tagPattern.FindAll(p.body, -1) {
			seen[string(tag)] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Apply replaces every placeholder in one pass and returns the new package. Values are XML
// escaped and "\n" becomes a line break. The template itself is left untouched.
func (t *Template) Apply(values map[string]string) ([]byte, error) {
	pairs := make([]string, 0, len(values)*2)
	for tag, value := range values {
		pairs = append(pairs, tag, encodeValue(value))
	}
	replacer := strings.NewReplacer(pairs...)

	buf := &bytes.Buffer{}
	writer := zip.NewWriter(buf)
	for _, p := range t.parts {
		header := p.header
		w, err := writer.CreateHeader(&header)
		if err != nil {
			return nil, fmt.Errorf("write docx part %s: %w", header.Name, err)
		}
		body := p.body
		if partPattern.MatchString(header.Name) {
			body = []byte(replacer.Replace(string(body)))
		}
		if _, err := w.Write(body); err != nil {
			return nil, fmt.Errorf("write docx part %s: %w", header.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close docx: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeValue(value string) string {
	lines := strings.Split(value, "\n")
	for i, line := range lines {
		lines[i] = xmlEscaper.Replace(line)
	}
	return strings.Join(lines, lineBreak)
}

package processor

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const docxDocumentPart = "word/document.xml"

// DocxTemplate is a Word certificate template held in memory. Authors may mark
// where fields go with {{KEY}} placeholders; they are reported as suggested
// field keys and blanked before the document is converted to PDF.
type DocxTemplate struct {
	entries  []docxEntry
	document string
}

type docxEntry struct {
	header zip.FileHeader
	data   []byte
}

// OpenDocx reads a .docx archive.
func OpenDocx(data []byte) (*DocxTemplate, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a docx archive: %v", ErrMalformedTemplate, err)
	}

	d := &DocxTemplate{}
	found := false
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		if f.Name == docxDocumentPart {
			d.document = string(content)
			found = true
		}
		d.entries = append(d.entries, docxEntry{header: f.FileHeader, data: content})
	}
	if !found {
		return nil, fmt.Errorf("%w: docx has no %s", ErrMalformedTemplate, docxDocumentPart)
	}
	return d, nil
}

// textRun is the document's visible text with, for each byte, its offset in
// the XML.
type textRun struct {
	text    []byte
	offsets []int
}

func (d *DocxTemplate) visibleText() textRun {
	var run textRun
	inTag := false
	for i := 0; i < len(d.document); i++ {
		switch c := d.document[i]; {
		case c == '<':
			inTag = true
		case c == '>':
			inTag = false
		case !inTag:
			run.text = append(run.text, c)
			run.offsets = append(run.offsets, i)
		}
	}
	return run
}

// placeholderSpans returns [start, end) ranges of {{...}} in text.
func placeholderSpans(text []byte) [][2]int {
	var spans [][2]int
	s := string(text)
	from := 0
	for {
		start := strings.Index(s[from:], "{{")
		if start == -1 {
			return spans
		}
		start += from
		end := strings.Index(s[start+2:], "}}")
		if end == -1 {
			return spans
		}
		end += start + 4
		spans = append(spans, [2]int{start, end})
		from = end
	}
}

// Placeholders lists the distinct placeholder names in document order, even
// when Word split one across several runs.
func (d *DocxTemplate) Placeholders() []string {
	run := d.visibleText()
	var out []string
	seen := make(map[string]bool)
	for _, sp := range placeholderSpans(run.text) {
		name := strings.TrimSpace(string(run.text[sp[0]+2 : sp[1]-2]))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// ClearPlaceholders removes every placeholder's text while leaving the
// surrounding markup intact.
func (d *DocxTemplate) ClearPlaceholders() {
	run := d.visibleText()
	drop := make(map[int]bool)
	for _, sp := range placeholderSpans(run.text) {
		for i := sp[0]; i < sp[1]; i++ {
			drop[run.offsets[i]] = true
		}
	}
	if len(drop) == 0 {
		return
	}
	var b strings.Builder
	b.Grow(len(d.document))
	for i := 0; i < len(d.document); i++ {
		if !drop[i] {
			b.WriteByte(d.document[i])
		}
	}
	d.document = b.String()
}

// Landscape reports the orientation of the first section: an explicit
// w:orient wins, otherwise width against height.
func (d *DocxTemplate) Landscape() bool {
	start := strings.Index(d.document, "<w:pgSz")
	if start == -1 {
		return false
	}
	end := strings.Index(d.document[start:], ">")
	if end == -1 {
		return false
	}
	tag := d.document[start : start+end]
	if orient, ok := xmlAttr(tag, "w:orient"); ok {
		return orient == "landscape"
	}
	w, _ := xmlAttr(tag, "w:w")
	h, _ := xmlAttr(tag, "w:h")
	wv, errW := strconv.ParseFloat(w, 64)
	hv, errH := strconv.ParseFloat(h, 64)
	return errW == nil && errH == nil && wv > hv
}

func xmlAttr(tag, name string) (string, bool) {
	i := strings.Index(tag, name+`="`)
	if i == -1 {
		return "", false
	}
	i += len(name) + 2
	j := strings.Index(tag[i:], `"`)
	if j == -1 {
		return "", false
	}
	return tag[i : i+j], true
}

// Bytes re-packs the archive with the current document part.
func (d *DocxTemplate) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range d.entries {
		data := e.data
		if e.header.Name == docxDocumentPart {
			data = []byte(d.document)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.header.Name, Method: e.header.Method, Modified: e.header.Modified})
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", e.header.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", e.header.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish docx: %w", err)
	}
	return buf.Bytes(), nil
}

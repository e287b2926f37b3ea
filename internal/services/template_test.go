package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"CERT-PDF/internal/models"
	"CERT-PDF/internal/processor"
	"CERT-PDF/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter struct {
	pdf       []byte
	err       error
	got       []byte
	landscape bool
}

func (f *fakeConverter) ConvertDocxToPDF(_ context.Context, docx []byte, _ string, landscape bool) ([]byte, error) {
	f.got = docx
	f.landscape = landscape
	return f.pdf, f.err
}

func docxBytes(t *testing.T, document string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(document))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestUploadPDFTemplate(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewMemoryStore("https://cdn.test")
	svc := NewTemplateService(db, store, nil, nil)

	tpl, err := svc.UploadTemplate(context.Background(), bytes.NewReader(templatePDF(t, 2)), "Plantilla.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdf", tpl.SourceType)
	assert.Equal(t, 2, tpl.PageCount)
	require.Len(t, tpl.PageSizes, 2)
	assert.InDelta(t, 792, tpl.PageSizes[0].Width, 0.5)
	assert.InDelta(t, 612, tpl.PageSizes[0].Height, 0.5)
	assert.True(t, store.Has(tpl.StoragePath))

	got, err := svc.GetTemplate(tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, tpl.StoragePath, got.StoragePath)

	data, err := svc.ReadTemplate(context.Background(), got)
	require.NoError(t, err)
	_, err = processor.Load(data)
	assert.NoError(t, err)
}

func TestUploadRejectsBadTemplates(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewMemoryStore("")
	svc := NewTemplateService(db, store, nil, nil)

	_, err := svc.UploadTemplate(context.Background(), bytes.NewReader([]byte("not a pdf")), "x.pdf")
	assert.ErrorIs(t, err, processor.ErrMalformedTemplate)

	_, err = svc.UploadTemplate(context.Background(), bytes.NewReader([]byte("x")), "x.png")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = svc.UploadTemplate(context.Background(), bytes.NewReader([]byte("x")), "x.docx")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	var count int64
	require.NoError(t, db.Model(&models.PDFTemplate{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUploadDocxTemplate(t *testing.T) {
	db := newTestDB(t)
	conv := &fakeConverter{pdf: templatePDF(t, 1)}
	svc := NewTemplateService(db, storage.NewMemoryStore(""), conv, nil)

	doc := `<w:document><w:body><w:p><w:r><w:t>Otorgada a {{NOMBRE}} por {{CURSO}}</w:t></w:r></w:p>` +
		`<w:sectPr><w:pgSz w:w="16838" w:h="11906"/></w:sectPr></w:body></w:document>`
	tpl, err := svc.UploadTemplate(context.Background(), bytes.NewReader(docxBytes(t, doc)), "Diploma.docx")
	require.NoError(t, err)
	assert.Equal(t, "docx", tpl.SourceType)
	assert.Equal(t, "Diploma.pdf", tpl.Filename)
	assert.Equal(t, []string{"NOMBRE", "CURSO"}, []string(tpl.Placeholders))
	assert.True(t, conv.landscape)
	sent, err := processor.OpenDocx(conv.got)
	require.NoError(t, err)
	assert.Empty(t, sent.Placeholders())

	conv.err = errors.New("gotenberg down")
	_, err = svc.UploadTemplate(context.Background(), bytes.NewReader(docxBytes(t, doc)), "Diploma.docx")
	assert.Error(t, err)
}

func TestDeleteTemplateInUse(t *testing.T) {
	db := newTestDB(t)
	store := storage.NewMemoryStore("")
	svc := NewTemplateService(db, store, nil, nil)
	certs := NewCertificateService(db, svc, NewTemplateFetcher(nil, 0, 1<<20, nil), processor.Appearance{}, nil)

	tpl, err := svc.UploadTemplate(context.Background(), bytes.NewReader(templatePDF(t, 1)), "t.pdf")
	require.NoError(t, err)
	_, err = certs.SaveConfig(context.Background(), "curso-1", SaveConfigInput{TemplateID: tpl.ID, Fields: []processor.Field{nameField()}})
	require.NoError(t, err)

	err = svc.DeleteTemplate(context.Background(), tpl.ID)
	assert.ErrorIs(t, err, ErrTemplateInUse)
	assert.True(t, store.Has(tpl.StoragePath))

	require.NoError(t, db.Where("course_id = ?", "curso-1").Delete(&models.CertificateConfig{}).Error)
	require.NoError(t, svc.DeleteTemplate(context.Background(), tpl.ID))
	assert.False(t, store.Has(tpl.StoragePath))

	_, err = svc.GetTemplate(tpl.ID)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

package processor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCenteredName(t *testing.T) {
	doc, err := Load(templatePDF(t, 1, 595, 842))
	require.NoError(t, err)

	fields := []Field{{Key: "NOMBRE", Page: 0, XPct: 0.1, YPct: 0.4, WPct: 0.8, HPct: 0.1, FontSize: 24, Align: AlignCenter, Bold: true}}
	out, err := NewRenderer(nil, nil).Render(doc, fields, &Recipient{Name: "Ana Pérez"}, nil)
	require.NoError(t, err)
	require.Len(t, out.Placements, 1)

	p := out.Placements[0]
	assert.Equal(t, "Ana Pérez", p.Text)
	assert.LessOrEqual(t, p.Size, 24.0)
	assert.InDelta(t, 595.0/2, p.X+p.Width/2, 2)
	assert.InDelta(t, 842-0.4*842-p.Size*0.9, p.Baseline, 1e-9)

	// cp1252: é is 0xE9.
	content := pageContent(t, out.Bytes, 1)
	assert.Contains(t, string(content), "(Ana P\xe9rez) Tj")
	assert.True(t, bytes.Contains(out.Bytes, []byte("/Helvetica-Bold")))
}

func TestRenderClampsPage(t *testing.T) {
	doc, err := Load(templatePDF(t, 1, 595, 842))
	require.NoError(t, err)

	fields := []Field{{Key: "NOMBRE", Page: 3, XPct: 0.1, YPct: 0.1, WPct: 0.5, HPct: 0.05, FontSize: 18}}
	out, err := NewRenderer(nil, nil).Render(doc, fields, &Recipient{Name: "Luis"}, nil)
	require.NoError(t, err)
	require.Len(t, out.Placements, 1)
	assert.Equal(t, 0, out.Placements[0].Page)
	assert.True(t, out.Placements[0].Clamped)
	assert.Contains(t, string(pageContent(t, out.Bytes, 1)), "(Luis) Tj")
}

func TestRenderSkipsEmptyValues(t *testing.T) {
	doc, err := Load(templatePDF(t, 1, 595, 842))
	require.NoError(t, err)

	fields := []Field{
		{Key: "NOMBRE", XPct: 0.1, YPct: 0.1, WPct: 0.8, HPct: 0.1},
		{Key: "EQUIPO", XPct: 0.1, YPct: 0.3, WPct: 0.8, HPct: 0.1},
		{Key: "MENSAJE", XPct: 0.1, YPct: 0.5, WPct: 0.8, HPct: 0.1},
	}
	ctx := &Context{Course: &Course{Name: "Taller", Message: "Gracias"}}
	out, err := NewRenderer(nil, nil).Render(doc, fields, &Recipient{Name: "Eva"}, ctx)
	require.NoError(t, err)

	require.Len(t, out.Placements, 2)
	assert.Equal(t, "NOMBRE", out.Placements[0].Key)
	assert.Equal(t, "MENSAJE", out.Placements[1].Key)
	assert.Equal(t, DefaultFontSize, out.Placements[0].Size)
}

func TestRenderRejectsInvalidRecipient(t *testing.T) {
	doc, err := Load(templatePDF(t, 1, 595, 842))
	require.NoError(t, err)

	_, err = NewRenderer(nil, nil).Render(doc, nil, &Recipient{Name: " "}, nil)
	require.ErrorIs(t, err, ErrInvalidRecipient)

	var re *RenderError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "validate", re.Op)

	_, err = NewRenderer(nil, nil).Render(doc, nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidRecipient)
}

func TestRenderOverflowStillDraws(t *testing.T) {
	doc, err := Load(templatePDF(t, 1, 595, 842))
	require.NoError(t, err)

	fields := []Field{{Key: "NOMBRE", XPct: 0.1, YPct: 0.1, WPct: 0.02, HPct: 0.05, FontSize: 30, Align: AlignRight}}
	out, err := NewRenderer(nil, nil).Render(doc, fields, &Recipient{Name: "Maximiliano Bartolomé"}, nil)
	require.NoError(t, err)

	p := out.Placements[0]
	assert.True(t, p.Overflow)
	assert.Equal(t, MinFontSize, p.Size)
	assert.Equal(t, p.Rect.Left, p.X)
}

package processor

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Ana Pérez", "Ana_Perez"},
		{"  José   Ñúñez  ", "Jose_Nunez"},
		{"O'Connor, Mary-Jane", "O_Connor_Mary_Jane"},
		{"../../etc/passwd", "etc_passwd"},
		{"Zoë 2026", "Zoe_2026"},
		{"", "sin_nombre"},
		{"***", "sin_nombre"},
		{"François\tMüller", "Francois_Muller"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SanitizeName(c.in), c.in)
	}
	assert.Equal(t, "Constancia_Ana_Perez.pdf", CertificateFilename("Ana Pérez"))
}

func TestZipAllNaming(t *testing.T) {
	certs := []GeneratedCertificate{
		{Recipient: Recipient{Name: "Ana Pérez"}, Bytes: []byte("%PDF-a")},
		{Recipient: Recipient{Name: "Ana Perez"}, Bytes: []byte("%PDF-b")},
		{Recipient: Recipient{Name: "Luis"}, Bytes: []byte("%PDF-c")},
		{Recipient: Recipient{Name: "ana pérez"}, Bytes: []byte("%PDF-d")},
		{Recipient: Recipient{Name: "Sin bytes"}},
	}
	data, err := ZipAll(certs)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"Constancia_Ana_Perez.pdf",
		"Constancia_Ana_Perez_2.pdf",
		"Constancia_Luis.pdf",
		"Constancia_ana_perez_3.pdf",
	}, names)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-b", buf.String())
}

func TestZipAllEmpty(t *testing.T) {
	data, err := ZipAll(nil)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Empty(t, zr.File)
}

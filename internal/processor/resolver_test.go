package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIsTotal(t *testing.T) {
	keys := append(KnownFieldKeys(), "", "  ", "unknown", "Extra", "name", "ñandú", "\xff")
	recipients := []*Recipient{nil, {}, {Name: "Ana"}, {Extra: map[string]string{"puesto": "Jueza"}}}
	contexts := []*Context{nil, {}, {Course: &Course{}}, {Team: &Team{Name: "Rojo"}}}

	for _, k := range keys {
		for _, r := range recipients {
			for _, c := range contexts {
				assert.NotPanics(t, func() { _ = Resolve(k, r, c) })
			}
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	course := &Course{Name: "Robótica", Category: "Curso", Date: "15 de octubre de 2026", Message: "Gracias por asistir"}
	team := &Team{Name: "Halcones", Category: "Juvenil", Message: "Por su trabajo en equipo"}
	ctx := &Context{Course: course, Team: team}

	r := &Recipient{Name: "Ana Pérez"}
	assert.Equal(t, "Juvenil", Resolve("CATEGORIA", r, ctx))
	assert.Equal(t, "Por su trabajo en equipo", Resolve("MENSAJE", r, ctx))
	assert.Equal(t, "Halcones", Resolve("EQUIPO", r, ctx))
	assert.Equal(t, "Robótica", Resolve("CURSO", r, ctx))
	assert.Equal(t, "15 de octubre de 2026", Resolve("FECHA", r, ctx))

	r.Category = "Mentora"
	r.Message = "Mención honorífica"
	assert.Equal(t, "Mentora", Resolve("CATEGORIA", r, ctx))
	assert.Equal(t, "Mención honorífica", Resolve("MENSAJE", r, ctx))

	onlyCourse := &Context{Course: course}
	assert.Equal(t, "Curso", Resolve("CATEGORIA", &Recipient{}, onlyCourse))
	assert.Equal(t, "Gracias por asistir", Resolve("MENSAJE", &Recipient{}, onlyCourse))
	assert.Equal(t, "", Resolve("EQUIPO", &Recipient{}, onlyCourse))
}

func TestResolveUnknownKey(t *testing.T) {
	r := &Recipient{Name: "Luis", Role: "Ponente", Extra: map[string]string{"Institucion": "UNAM"}}
	assert.Equal(t, "Ponente", Resolve("role", r, nil))
	assert.Equal(t, "Luis", Resolve("Name", r, nil))
	assert.Equal(t, "UNAM", Resolve("institucion", r, nil))
	assert.Equal(t, "", Resolve("cargo", r, nil))
}

func TestLookupMiss(t *testing.T) {
	_, err := Lookup("CORREO", &Recipient{Name: "Luis"}, nil)
	require.ErrorIs(t, err, ErrFieldResolutionMiss)

	v, err := Lookup("nombre", &Recipient{Name: "Luis"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Luis", v)
}

func TestRecipientValidate(t *testing.T) {
	require.NoError(t, Recipient{Name: "Ana"}.Validate())
	require.ErrorIs(t, Recipient{Name: "   "}.Validate(), ErrInvalidRecipient)
	require.ErrorIs(t, Recipient{Name: "Ana", Team: "\xff\xfe"}.Validate(), ErrInvalidRecipient)
	require.ErrorIs(t, Recipient{Name: "Ana", Extra: map[string]string{"x": "\xc3"}}.Validate(), ErrInvalidRecipient)
}

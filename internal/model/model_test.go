package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot_NormalisesValues(t *testing.T) {
	src := map[string]interface{}{
		"i":    3,
		"i64":  int64(4),
		"f32":  float32(1.5),
		"b":    true,
		"text": "ignored",
	}
	s := NewSnapshot(time.Unix(0, 0), src)
	src["i"] = 99

	assert.Equal(t, 4, s.Len())
	assert.Equal(t, 3.0, s.Float("i"), "snapshot is a copy")
	assert.Equal(t, 4.0, s.Float("i64"))
	assert.Equal(t, 1.5, s.Float("f32"))
	assert.False(t, s.Has("text"))

	n, ok := s.Number("b")
	assert.True(t, ok)
	assert.Equal(t, 1.0, n)
	assert.True(t, s.Bool("i"))
	assert.False(t, s.Bool("missing"))

	_, ok = s.Number("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"b", "f32", "i", "i64"}, s.Names())

	values := s.Values()
	values["i"] = 0.0
	assert.Equal(t, 3.0, s.Float("i"))
}

func TestAlert_Clone(t *testing.T) {
	at := time.Now()
	a := &Alert{ID: "a", Data: map[string]interface{}{"k": 1.0}, Actions: []string{"x"}, ResolvedAt: &at}
	c := a.Clone()
	c.Data["k"] = 2.0
	c.Actions[0] = "y"
	*c.ResolvedAt = at.Add(time.Hour)

	assert.Equal(t, 1.0, a.Data["k"])
	assert.Equal(t, "x", a.Actions[0])
	assert.True(t, a.ResolvedAt.Equal(at))
	assert.Nil(t, (*Alert)(nil).Clone())
}

func TestActionsFor_EveryCategory(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid())
		assert.Len(t, ActionsFor(c), 3, c)
	}
	assert.Equal(t, []string{"Revisar o alerta manualmente"}, ActionsFor("kitchen"))
	assert.False(t, Severity("fatal").Valid())
}

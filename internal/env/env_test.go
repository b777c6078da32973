package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	e := New().Set("USER", "blog").Set("PASS", "s3cret")
	cases := [][2]string{
		{"postgres://${USER}:${PASS}@db/braindump", "postgres://blog:s3cret@db/braindump"},
		{"${MISSING}/x", "${MISSING}/x"},
		{"plain", "plain"},
		{"${USER", "${USER"},
		{"${}", "${}"},
		{"$USER", "$USER"},
	}
	for _, c := range cases {
		assert.Equal(t, c[1], e.Expand(c[0]), c[0])
	}
}

func TestOverridesBeatOS(t *testing.T) {
	t.Setenv("BRAINDUMP_ENV_TEST", "from-os")
	e := New().FromOS()
	assert.Equal(t, "from-os", e.Expand("${BRAINDUMP_ENV_TEST}"))
	e.Set("BRAINDUMP_ENV_TEST", "override")
	assert.Equal(t, "override", e.Expand("${BRAINDUMP_ENV_TEST}"))
}

func TestExpandAll(t *testing.T) {
	e := New().Set("HOST", "db")
	a, b := "${HOST}:5432", "x"
	e.ExpandAll(&a, &b, nil)
	assert.Equal(t, "db:5432", a)
	assert.Equal(t, "x", b)
}

package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

func TestRollbarLogger_prepare(t *testing.T) {
	logger := NewRollbarLogger(log.New(new(bytes.Buffer), "", 0), core.NewTestConfig())
	err := errors.New("boom")
	extra := map[string]interface{}{"partnership": 4}

	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{name: "no args", want: []interface{}{"msg"}},
		{name: "user is dropped", args: []interface{}{err, user.User{ID: 1}}, want: []interface{}{"msg", err}},
		{name: "user pointer is dropped", args: []interface{}{&user.User{ID: 1}, extra}, want: []interface{}{"msg", extra}},
		{name: "two users", args: []interface{}{user.User{ID: 1}, user.User{ID: 2}, err}, want: []interface{}{"msg", err}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.prepare("msg", tt.args))
		})
	}
}

func TestRollbarLogger_print(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := NewRollbarLogger(log.New(buf, "", 0), core.NewTestConfig())

	logger.Warn("agreement without media", map[string]interface{}{"agreement": 3}, user.User{ID: 1})

	assert.Equal(t, "[WARN] agreement without media\nmap[agreement:3]\n", buf.String())
}

package lockkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderRequest struct {
	UserID    int64  `json:"userId"`
	ProgramID int64  `json:"programId"`
	Channel   string `json:"channel"`
	Buyer     *buyer
}

type buyer struct {
	Name string
}

func TestResolve(t *testing.T) {
	req := &orderRequest{UserID: 7, ProgramID: 1001, Buyer: &buyer{Name: "ana"}}

	tests := map[string]struct {
		templates []string
		args      Args
		want      []string
	}{
		"dotted fields": {
			templates: []string{"#req.UserID", "#req.ProgramID"},
			args:      Args{"req": req},
			want:      []string{"7", "1001"},
		},
		"case insensitive and json tag": {
			templates: []string{"#req.userid", "#req.programId"},
			args:      Args{"req": req},
			want:      []string{"7", "1001"},
		},
		"whole argument and literal": {
			templates: []string{"fixed", "#programId"},
			args:      Args{"programId": int64(5)},
			want:      []string{"fixed", "5"},
		},
		"nested pointer": {
			templates: []string{"#req.Buyer.Name"},
			args:      Args{"req": req},
			want:      []string{"ana"},
		},
		"map argument": {
			templates: []string{"#meta.region"},
			args:      Args{"meta": map[string]string{"region": "eu"}},
			want:      []string{"eu"},
		},
		"unresolvable references are dropped": {
			templates: []string{"#req.Missing", "#other", "#req.Channel", "#req.UserID"},
			args:      Args{"req": req},
			want:      []string{"7"},
		},
		"nil pointer is dropped": {
			templates: []string{"#req.Buyer.Name"},
			args:      Args{"req": &orderRequest{}},
			want:      []string{},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r, err := Compile(tc.templates...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, r.Resolve(tc.args))
		})
	}
}

func TestCompileRejectsMalformedTemplates(t *testing.T) {
	for _, tpl := range []string{"#", "#req..UserID", "#req.", "#1abc", "#req.user-id"} {
		_, err := Compile(tpl)
		assert.Error(t, err, tpl)
	}
	assert.Panics(t, func() { MustCompile("#") })
}

func TestNamer(t *testing.T) {
	n := Namer{Prefix: "prod"}
	r := MustCompile("#req.UserID", "#req.ProgramID")

	got := n.Resolve(TagRepeatExecuteLimit, "create_program_order", r, Args{"req": orderRequest{UserID: 3, ProgramID: 9}})
	assert.Equal(t, "prod-REPEAT_EXECUTE_LIMIT:create_program_order:3:9", got)

	// identical logical request yields an identical name
	again := n.Resolve(TagRepeatExecuteLimit, "create_program_order", r, Args{"req": &orderRequest{UserID: 3, ProgramID: 9}})
	assert.Equal(t, got, again)

	assert.Equal(t, "prod-SERVICE_LOCK:op", n.Name(TagServiceLock, "op", "", ""))
}

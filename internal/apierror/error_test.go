package apierror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToProblemStatusCodes(t *testing.T) {
	cases := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, 400},
		{KindUnauthenticated, 401},
		{KindForbidden, 403},
		{KindNotFound, 404},
		{KindConflict, 409},
		{KindRateLimited, 429},
		{KindDatabase, 500},
		{KindInternal, 500},
		{KindServiceUnavailable, 503},
	}

	for _, tc := range cases {
		err := New(tc.kind, "SOME_CODE", "detail")
		p := err.ToProblem()
		assert.Equal(t, tc.status, p.Status, "kind %s", tc.kind)
		assert.Equal(t, "SOME_CODE", p.Code)
		assert.Contains(t, p.Type, string(tc.kind))
	}
}

func TestEnrichMergesWithoutOverwrite(t *testing.T) {
	err := New(KindForbidden, "FORBIDDEN", "insufficient role")
	err.WithDetail("path", "/already/set")

	enriched := Enrich(err, Context{
		Path:        "/workspaces/1/documents",
		Method:      "GET",
		PrincipalID: "p1",
		Timestamp:   time.Unix(0, 0),
	})

	ae, ok := As(enriched)
	require.True(t, ok)
	assert.Equal(t, "/already/set", ae.Details["path"], "enrich must not overwrite an existing detail")
	assert.Equal(t, "GET", ae.Details["method"])
	assert.Equal(t, "p1", ae.Details["principalId"])
}

func TestEnrichIgnoresUnknownErrors(t *testing.T) {
	plain := assertErr{"boom"}
	got := Enrich(plain, Context{Path: "/x"})
	assert.Equal(t, plain, got)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestToProblemAnyUnknownErrorSuppressesMessageInProd(t *testing.T) {
	p := ToProblemAny(assertErr{"leaky internal detail"}, false)
	assert.Equal(t, 500, p.Status)
	assert.NotContains(t, p.Detail, "leaky")
}

func TestToProblemAnyUnknownErrorShowsMessageInDev(t *testing.T) {
	p := ToProblemAny(assertErr{"leaky internal detail"}, true)
	assert.Contains(t, p.Detail, "leaky")
}

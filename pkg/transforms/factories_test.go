package transforms_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/appfunctions-sdk/internal/appfunction"
	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
	"github.com/couchcryptid/appfunctions-sdk/pkg/transforms"
)

func TestNewFunction_BuiltinsResolveCaseInsensitively(t *testing.T) {
	fn, err := transforms.NewFunction("tojson", nil)
	require.NoError(t, err)
	require.NotNil(t, fn)

	fn, err = transforms.NewFunction("SETRESPONSEDATA", nil)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestNewFunction_UnknownNameErrors(t *testing.T) {
	_, err := transforms.NewFunction("no-such-function", nil)
	require.Error(t, err)
}

func TestNewFunction_ValueFilterRequiresParameters(t *testing.T) {
	_, err := transforms.NewFunction("ValueFilter", nil)
	require.Error(t, err)

	_, err = transforms.NewFunction("ValueFilter", map[string]string{"valuekey": "profilename"})
	require.Error(t, err)
}

func TestNewFunction_ValueFilterBuildsWorkingFilter(t *testing.T) {
	fn, err := transforms.NewFunction("ValueFilter", map[string]string{
		"valuekey":       "profilename",
		"acceptedvalues": "default-profile, other-profile",
	})
	require.NoError(t, err)

	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)
	ctx.SetValue("profilename", "other-profile")

	cont, data := fn(ctx, "payload")
	assert.True(t, cont)
	assert.Equal(t, "payload", data)
}

func TestRegisterFactory_CustomFunctionResolvable(t *testing.T) {
	transforms.RegisterFactory("Echo", func(_ map[string]string) (interfaces.AppFunction, error) {
		return func(_ interfaces.AppFunctionContext, data any) (bool, any) { return true, data }, nil
	})

	fn, err := transforms.NewFunction("echo", nil)
	require.NoError(t, err)

	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)
	cont, data := fn(ctx, "x")
	assert.True(t, cont)
	assert.Equal(t, "x", data)
}

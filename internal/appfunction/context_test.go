package appfunction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/appfunctions-sdk/internal/appfunction"
)

func TestContext_ValuesAreCaseInsensitive(t *testing.T) {
	ctx := appfunction.NewContext("corr-1", "application/json", nil)

	ctx.SetValue("DeviceName", "sensor-1")

	v, ok := ctx.GetValue("devicename")
	require.True(t, ok)
	assert.Equal(t, "sensor-1", v)

	ctx.RemoveValue("DEVICENAME")
	_, ok = ctx.GetValue("devicename")
	assert.False(t, ok)
}

func TestContext_ApplyValues(t *testing.T) {
	ctx := appfunction.NewContext("corr-1", "application/json", nil)
	ctx.SetValue("room", "kitchen")
	ctx.SetValue("sensor", "temp-1")

	out, err := ctx.ApplyValues("sensors/{room}/{sensor}/reply")
	require.NoError(t, err)
	assert.Equal(t, "sensors/kitchen/temp-1/reply", out)
}

func TestContext_ApplyValues_UnmatchedTokenErrors(t *testing.T) {
	ctx := appfunction.NewContext("corr-1", "application/json", nil)

	_, err := ctx.ApplyValues("sensors/{missing}/reply")
	assert.Error(t, err)
}

func TestContext_Clone_DeepCopiesValues(t *testing.T) {
	ctx := appfunction.NewContext("corr-1", "application/json", nil)
	ctx.SetValue("a", "1")

	clone := appfunction.CloneContext(ctx)
	clone.SetValue("a", "2")
	clone.SetValue("b", "3")

	v, _ := ctx.GetValue("a")
	assert.Equal(t, "1", v, "mutating the clone must not affect the original")

	_, ok := ctx.GetValue("b")
	assert.False(t, ok)

	assert.Equal(t, ctx.CorrelationID(), clone.CorrelationID())
}

func TestContext_RetryDataClearing(t *testing.T) {
	ctx := appfunction.NewContext("corr-1", "application/json", nil)
	ctx.SetRetryData([]byte("abc"))
	assert.Equal(t, []byte("abc"), ctx.RetryData())

	appfunction.ClearRetryData(ctx)
	assert.Nil(t, ctx.RetryData())
}

func TestContext_RetryTriggeredIsOneShot(t *testing.T) {
	ctx := appfunction.NewContext("corr-1", "application/json", nil)
	assert.False(t, ctx.RetryTriggered())

	ctx.TriggerRetry()
	assert.True(t, ctx.RetryTriggered())
	assert.False(t, ctx.RetryTriggered(), "RetryTriggered should reset the flag once read")
}

func TestFromContextData_RebuildsValues(t *testing.T) {
	data := map[string]string{"DeviceName": "sensor-9"}
	ctx := appfunction.FromContextData("corr-2", data, nil)

	v, ok := ctx.GetValue("devicename")
	require.True(t, ok)
	assert.Equal(t, "sensor-9", v)
}

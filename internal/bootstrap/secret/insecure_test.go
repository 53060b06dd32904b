package secret_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/secret"
)

func TestStoreAndGetSecret(t *testing.T) {
	p := secret.NewInsecureProvider()
	p.StoreSecret("mqtt", "username", "bob")
	p.StoreSecret("mqtt", "password", "hunter2")

	got, err := p.GetSecret("mqtt", "username")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"username": "bob"}, got)
}

func TestGetSecret_NoKeysReturnsEntireSecret(t *testing.T) {
	p := secret.NewInsecureProvider()
	p.StoreSecret("mqtt", "username", "bob")
	p.StoreSecret("mqtt", "password", "hunter2")

	got, err := p.GetSecret("mqtt")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"username": "bob", "password": "hunter2"}, got)
}

func TestGetSecret_UnknownSecretNameErrors(t *testing.T) {
	p := secret.NewInsecureProvider()
	_, err := p.GetSecret("missing")
	require.Error(t, err)
}

func TestGetSecret_MissingKeyErrors(t *testing.T) {
	p := secret.NewInsecureProvider()
	p.StoreSecret("mqtt", "username", "bob")

	_, err := p.GetSecret("mqtt", "password")
	require.Error(t, err)
}

func TestLoadFromEnviron_SeedsSecretsFromPrefixedVars(t *testing.T) {
	t.Setenv(secret.EnvPrefix+"MQTT_USERNAME", "bob")
	t.Setenv(secret.EnvPrefix+"MQTT_PASSWORD", "hunter2")

	p := secret.NewInsecureProvider()
	p.LoadFromEnviron()

	got, err := p.GetSecret("mqtt", "username", "password")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"username": "bob", "password": "hunter2"}, got)
}

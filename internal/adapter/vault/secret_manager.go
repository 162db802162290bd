package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"
)

// SecretManager resolves per-device transport credentials and infrastructure
// secrets from Vault. Device MQTT passwords live under
// secret/data/devices/{serial}.
type SecretManager struct {
	client *api.Client
}

func NewSecretManager(address, token string) (*SecretManager, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

// DeviceSecret returns the broker password for one device serial.
func (sm *SecretManager) DeviceSecret(ctx context.Context, serial string) (string, error) {
	secret, err := sm.client.Logical().ReadWithContext(ctx, "secret/data/devices/"+serial)
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no secret for device %s", serial)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("malformed secret for device %s", serial)
	}
	password, ok := data["password"].(string)
	if !ok {
		return "", fmt.Errorf("secret for device %s has no password", serial)
	}
	return password, nil
}

// DatabaseURL returns the store connection string.
func (sm *SecretManager) DatabaseURL(ctx context.Context) (string, error) {
	secret, err := sm.client.Logical().ReadWithContext(ctx, "secret/data/database")
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("no database secret")
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("malformed database secret")
	}
	url, ok := data["connection_string"].(string)
	if !ok {
		return "", fmt.Errorf("database secret has no connection_string")
	}
	return url, nil
}

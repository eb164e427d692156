package vault

import (
	"path"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/sanLimbu/todo-sync/internal"
)

// Provider ...
type Provider struct {
	path   string
	client *api.Logical
}

// New instantiates the Vault client.
func New(token, addr, path string) (*Provider, error) {
	config := &api.Config{
		Address: addr,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, internal.WrapErrorf(err, internal.ErrorCodeUnknown, "api.NewClient")
	}

	client.SetToken(token)

	return &Provider{
		path:   path,
		client: client.Logical(),
	}, nil
}

// Get retrieves the value of a secret, v is expected to be formatted as `<secret path>:<key>`.
func (p *Provider) Get(v string) (string, error) {
	split := strings.Split(v, ":")
	if len(split) == 1 {
		return "", internal.NewErrorf(internal.ErrorCodeInvalidArgument, "missing key value: %s", v)
	}

	res, err := p.client.Read(path.Join(p.path, split[0]))
	if res == nil {
		if err != nil {
			return "", internal.WrapErrorf(err, internal.ErrorCodeUnknown, "client.Read")
		}

		return "", internal.NewErrorf(internal.ErrorCodeNotFound, "secret not found: %s", split[0])
	}

	data := res.Data

	// KV version 2 nests the values under "data".
	if nested, ok := data["data"].(map[string]interface{}); ok {
		data = nested
	}

	val, ok := data[split[1]].(string)
	if !ok {
		return "", internal.NewErrorf(internal.ErrorCodeNotFound, "key not found: %s", split[1])
	}

	return val, nil
}

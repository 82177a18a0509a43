// Package secrets resolves upstream tokens that are configured indirectly:
// "ssm:<parameter>" reads an SSM parameter, "enc:<sealed>" opens an
// AES-GCM sealed value. Anything else is used as-is.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"rotationsync/internal/syncerr"
)

const (
	ssmPrefix = "ssm:"
	encPrefix = "enc:"
)

type ParameterStore interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Resolver struct {
	store  ParameterStore
	cipher *Cipher
}

// NewResolver accepts nil for either dependency; values that need a missing
// one fail to resolve.
func NewResolver(store ParameterStore, c *Cipher) *Resolver {
	return &Resolver{store: store, cipher: c}
}

func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	value = strings.TrimSpace(value)

	switch {
	case strings.HasPrefix(value, ssmPrefix):
		name := strings.TrimPrefix(value, ssmPrefix)
		if r == nil || r.store == nil {
			return "", syncerr.New(syncerr.ConfigurationError, "token references SSM parameter %s but no SSM client is configured", name)
		}
		out, err := r.store.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return "", syncerr.Wrap(syncerr.ConfigurationError, err, "ssm GetParameter %s", name)
		}
		if out.Parameter == nil {
			return "", syncerr.New(syncerr.ConfigurationError, "ssm parameter %s has no value", name)
		}
		return strings.TrimSpace(aws.ToString(out.Parameter.Value)), nil

	case strings.HasPrefix(value, encPrefix):
		if r == nil || r.cipher == nil {
			return "", syncerr.New(syncerr.ConfigurationError, "missing env TOKEN_ENC_KEY_B64")
		}
		pt, err := r.cipher.Open(strings.TrimPrefix(value, encPrefix))
		if err != nil {
			return "", syncerr.Wrap(syncerr.ConfigurationError, err, "sealed token")
		}
		return pt, nil

	default:
		return value, nil
	}
}

// SealToken returns the "enc:" form of token, ready for an env var.
func SealToken(c *Cipher, token string) (string, error) {
	sealed, err := c.Seal(token)
	if err != nil {
		return "", err
	}
	return encPrefix + sealed, nil
}

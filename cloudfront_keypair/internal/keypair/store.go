package keypair

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// PrivateKeyStore reads PEM encoded private keys by name.
type PrivateKeyStore interface {
	PrivateKey(ctx context.Context, name string) ([]byte, error)
}

// PublicKeyWriter publishes a derived public key under a name.
type PublicKeyWriter interface {
	PutPublicKey(ctx context.Context, name string, publicKeyPEM string) error
}

type ssmClient interface {
	GetParameter(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(context.Context, *ssm.PutParameterInput, ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

type secretsManagerClient interface {
	GetSecretValue(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ParameterStore is backed by SSM Parameter Store. Private keys are expected
// to be SecureString parameters and are always read decrypted.
type ParameterStore struct {
	client ssmClient
}

func NewParameterStore(client ssmClient) *ParameterStore {
	return &ParameterStore{client: client}
}

func (ps *ParameterStore) PrivateKey(ctx context.Context, name string) ([]byte, error) {
	output, err := ps.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter '%s': %w", name, err)
	}

	if output.Parameter == nil || output.Parameter.Value == nil {
		return nil, fmt.Errorf("parameter '%s' has no value", name)
	}

	return []byte(*output.Parameter.Value), nil
}

func (ps *ParameterStore) PutPublicKey(ctx context.Context, name string, publicKeyPEM string) error {
	_, err := ps.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(publicKeyPEM),
		Type:      types.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to put parameter '%s': %w", name, err)
	}

	return nil
}

// SecretStore is backed by Secrets Manager and reads the AWSCURRENT version.
type SecretStore struct {
	client secretsManagerClient
}

func NewSecretStore(client secretsManagerClient) *SecretStore {
	return &SecretStore{client: client}
}

func (ss *SecretStore) PrivateKey(ctx context.Context, name string) ([]byte, error) {
	output, err := ss.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(name),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret value '%s': %w", name, err)
	}

	switch {
	case output.SecretString != nil:
		return []byte(*output.SecretString), nil
	case len(output.SecretBinary) > 0:
		return output.SecretBinary, nil
	default:
		return nil, errors.New("secret has neither a string nor a binary value")
	}
}

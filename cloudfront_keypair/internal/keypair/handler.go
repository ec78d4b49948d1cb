package keypair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jlefonde/crc_infra/cloudfront_keypair/internal/config"
	"github.com/rs/zerolog"
)

const (
	// PhysicalResourceID identifies the custom resource across updates.
	PhysicalResourceID = "PublicKeyEncoded"

	// DataPublicKeyEncoded is the response attribute holding the public key.
	DataPublicKeyEncoded = "PublicKeyEncoded"
)

var errOperationPanicked = errors.New("operation panicked, see log stream for details")

type operation func(ctx context.Context, event cfn.Event) (map[string]string, error)

type Handler struct {
	privateKeys         PrivateKeyStore
	privateKeyParameter string

	publicKeys         PublicKeyWriter
	publicKeyParameter string

	reporter          Reporter
	reportUnsupported bool

	logger     zerolog.Logger
	operations map[cfn.RequestType]operation
}

func NewHandler(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Handler, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	privateKeys, publicKeys := selectStores(cfg, ssm.NewFromConfig(awsConfig), secretsmanager.NewFromConfig(awsConfig))

	return newHandler(cfg, privateKeys, publicKeys, NewHTTPReporter(nil), logger), nil
}

// selectStores picks where the private key is read from and whether the
// derived public key gets published. The returned writer is nil when
// publishing is disabled.
func selectStores(cfg *config.Config, ssmClient ssmClient, secretsManager secretsManagerClient) (PrivateKeyStore, PublicKeyWriter) {
	parameterStore := NewParameterStore(ssmClient)

	var privateKeys PrivateKeyStore = parameterStore
	if cfg.PrivateKeySource == config.SourceSecretsManager {
		privateKeys = NewSecretStore(secretsManager)
	}

	var publicKeys PublicKeyWriter
	if cfg.PublicKeyParameter != "" {
		publicKeys = parameterStore
	}

	return privateKeys, publicKeys
}

func newHandler(cfg *config.Config, privateKeys PrivateKeyStore, publicKeys PublicKeyWriter, reporter Reporter, logger zerolog.Logger) *Handler {
	h := &Handler{
		privateKeys:         privateKeys,
		privateKeyParameter: cfg.PrivateKeyParameter,
		publicKeys:          publicKeys,
		publicKeyParameter:  cfg.PublicKeyParameter,
		reporter:            reporter,
		reportUnsupported:   cfg.ReportUnsupportedRequestTypes,
		logger:              logger,
	}

	h.operations = map[cfn.RequestType]operation{
		cfn.RequestCreate: h.create,
		cfn.RequestUpdate: h.update,
		cfn.RequestDelete: h.delete,
	}

	return h
}

func (h *Handler) create(ctx context.Context, event cfn.Event) (map[string]string, error) {
	return h.publicKeyData(ctx)
}

func (h *Handler) update(ctx context.Context, event cfn.Event) (map[string]string, error) {
	return h.publicKeyData(ctx)
}

// delete leaves the private key alone, it belongs to whoever created it.
func (h *Handler) delete(ctx context.Context, event cfn.Event) (map[string]string, error) {
	return map[string]string{}, nil
}

func (h *Handler) publicKeyData(ctx context.Context) (map[string]string, error) {
	logger := zerolog.Ctx(ctx)

	logger.Info().Str("parameter", h.privateKeyParameter).Msg("Retrieving private key")
	privateKeyPEM, err := h.privateKeys.PrivateKey(ctx, h.privateKeyParameter)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve private key: %w", err)
	}

	logger.Info().Msg("Deriving public key")
	publicKeyPEM, err := DerivePublicKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	if h.publicKeys != nil {
		logger.Info().Str("parameter", h.publicKeyParameter).Msg("Publishing public key")
		if err := h.publicKeys.PutPublicKey(ctx, h.publicKeyParameter, publicKeyPEM); err != nil {
			return nil, fmt.Errorf("failed to publish public key: %w", err)
		}
	}

	return map[string]string{DataPublicKeyEncoded: publicKeyPEM}, nil
}

// HandleEvent runs the operation for the event's request type and reports the
// outcome to the event's response url. Operation failures are reported as
// FAILED and do not fail the invocation. An unsupported request type is only
// reported when the handler is configured to do so.
func (h *Handler) HandleEvent(ctx context.Context, event cfn.Event) error {
	logger := h.eventLogger(ctx, event)
	ctx = logger.WithContext(ctx)

	logger.Info().Msg("Handling custom resource request")

	op, found := h.operations[event.RequestType]
	if !found {
		err := fmt.Errorf("invalid request type: %s", event.RequestType)
		if !h.reportUnsupported {
			logger.Error().Err(err).Msg("Unsupported request type, no response sent")
			return err
		}

		resp := newResponse(event)
		resp.Status = cfn.StatusFailed
		resp.Reason = err.Error()

		if reportErr := h.report(ctx, event, resp); reportErr != nil {
			return errors.Join(err, reportErr)
		}

		return err
	}

	resp := newResponse(event)

	data, err := h.run(ctx, op, event)
	if err != nil {
		logger.Error().Err(err).Msg("Request failed")
		resp.Status = cfn.StatusFailed
		resp.Reason = err.Error()
	} else {
		resp.Status = cfn.StatusSuccess
		resp.Data = responseData(data)
	}

	return h.report(ctx, event, resp)
}

// HandleProviderEvent serves requests coming from the CDK Provider framework,
// which sends the response to CloudFormation itself. The outcome is returned
// instead of reported and failures surface as invocation errors.
func (h *Handler) HandleProviderEvent(ctx context.Context, event cfn.Event) (map[string]interface{}, error) {
	logger := h.eventLogger(ctx, event)
	ctx = logger.WithContext(ctx)

	logger.Info().Msg("Handling provider request")

	op, found := h.operations[event.RequestType]
	if !found {
		err := fmt.Errorf("invalid request type: %s", event.RequestType)
		logger.Error().Err(err).Msg("Unsupported request type")
		return nil, err
	}

	data, err := h.run(ctx, op, event)
	if err != nil {
		logger.Error().Err(err).Msg("Request failed")
		return nil, err
	}

	logger.Info().Msg("Returning provider response")
	return map[string]interface{}{
		"PhysicalResourceId": PhysicalResourceID,
		"Data":               responseData(data),
	}, nil
}

// HandleSNSEvent unwraps a custom resource request delivered through an SNS
// topic and handles it like a direct invocation.
func (h *Handler) HandleSNSEvent(ctx context.Context, snsEvent events.SNSEvent) error {
	if len(snsEvent.Records) != 1 {
		return fmt.Errorf("expected exactly 1 SNS record, got %d", len(snsEvent.Records))
	}

	var event cfn.Event
	if err := json.Unmarshal([]byte(snsEvent.Records[0].SNS.Message), &event); err != nil {
		return fmt.Errorf("failed to unmarshal custom resource request: %w", err)
	}

	return h.HandleEvent(ctx, event)
}

func (h *Handler) run(ctx context.Context, op operation, event cfn.Event) (data map[string]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().Interface("panic", r).Msg("Operation panicked")
			data, err = nil, errOperationPanicked
		}
	}()

	return op(ctx, event)
}

func (h *Handler) report(ctx context.Context, event cfn.Event, resp *cfn.Response) error {
	logger := zerolog.Ctx(ctx)

	logger.Info().Str("status", string(resp.Status)).Msg("Sending response")
	if err := h.reporter.Report(ctx, event.ResponseURL, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to send response")
		return fmt.Errorf("failed to report %s status: %w", resp.Status, err)
	}

	return nil
}

func (h *Handler) eventLogger(ctx context.Context, event cfn.Event) zerolog.Logger {
	logCtx := h.logger.With().
		Str("request_type", string(event.RequestType)).
		Str("request_id", event.RequestID).
		Str("stack_id", event.StackID).
		Str("logical_resource_id", event.LogicalResourceID)

	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logCtx = logCtx.Str("aws_request_id", lc.AwsRequestID)
	}

	return logCtx.Logger()
}

func newResponse(event cfn.Event) *cfn.Response {
	resp := cfn.NewResponse(&event)
	resp.PhysicalResourceID = PhysicalResourceID

	return resp
}

func responseData(data map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		out[key] = value
	}

	return out
}

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/systmms/vaultlease/pkg/transport"
)

const (
	defaultSTSEndpoint   = "https://sts.amazonaws.com/"
	defaultSTSRegion     = "us-east-1"
	getCallerIdentity    = "Action=GetCallerIdentity&Version=2011-06-15"
	iamServerIDHeaderKey = "X-Vault-AWS-IAM-Server-ID"
)

type awsIAMOptions struct {
	Role           string `mapstructure:"role"`
	Region         string `mapstructure:"region"`
	ServerIDHeader string `mapstructure:"server_id_header"`
	STSEndpoint    string `mapstructure:"sts_endpoint"`
	Mount          string `mapstructure:"mount"`
}

// AWSIAM logs in by presenting a signed sts:GetCallerIdentity request that
// the server replays to AWS.
type AWSIAM struct {
	credentials aws.CredentialsProvider
	now         func() time.Time
}

// NewAWSIAM creates the "aws-iam" backend. A nil provider loads credentials
// from the default AWS chain (environment, shared config, instance role) at
// login time.
func NewAWSIAM(credentials aws.CredentialsProvider) *AWSIAM {
	return &AWSIAM{credentials: credentials, now: time.Now}
}

// Name implements Backend.
func (a *AWSIAM) Name() string {
	return "aws-iam"
}

// Login implements Backend.
func (a *AWSIAM) Login(ctx context.Context, t transport.Transport, options map[string]interface{}) (map[string]interface{}, error) {
	var opts awsIAMOptions
	if err := decodeOptions(a.Name(), options, &opts); err != nil {
		return nil, err
	}
	if opts.Region == "" {
		opts.Region = defaultSTSRegion
	}
	if opts.STSEndpoint == "" {
		opts.STSEndpoint = defaultSTSEndpoint
	}

	creds, err := a.retrieve(ctx, opts.Region)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.STSEndpoint, strings.NewReader(getCallerIdentity))
	if err != nil {
		return nil, fmt.Errorf("failed to build sts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")
	if opts.ServerIDHeader != "" {
		req.Header.Set(iamServerIDHeaderKey, opts.ServerIDHeader)
	}

	sum := sha256.Sum256([]byte(getCallerIdentity))
	if err := v4.NewSigner().SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "sts", opts.Region, a.now()); err != nil {
		return nil, fmt.Errorf("failed to sign sts request: %w", err)
	}

	headers, err := json.Marshal(req.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sts headers: %w", err)
	}

	body := map[string]interface{}{
		"iam_http_request_method": http.MethodPost,
		"iam_request_url":         base64.StdEncoding.EncodeToString([]byte(opts.STSEndpoint)),
		"iam_request_body":        base64.StdEncoding.EncodeToString([]byte(getCallerIdentity)),
		"iam_request_headers":     base64.StdEncoding.EncodeToString(headers),
	}
	if opts.Role != "" {
		body["role"] = opts.Role
	}
	return login(ctx, t, "auth/"+mountOr(opts.Mount, "aws")+"/login", body)
}

func (a *AWSIAM) retrieve(ctx context.Context, region string) (aws.Credentials, error) {
	provider := a.credentials
	if provider == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return aws.Credentials{}, fmt.Errorf("failed to load AWS config: %w", err)
		}
		provider = cfg.Credentials
	}

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}
	return creds, nil
}

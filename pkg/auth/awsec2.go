package auth

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/systmms/vaultlease/pkg/transport"
)

// IdentityDocument fetches the PKCS7 signature of the EC2 instance identity
// document.
type IdentityDocument interface {
	PKCS7(ctx context.Context) (string, error)
}

// IMDSIdentity reads the identity document from the instance metadata service.
type IMDSIdentity struct {
	client *imds.Client
}

// NewIMDSIdentity creates an IdentityDocument backed by the EC2 metadata
// service. Endpoint overrides the default metadata address when non-empty.
func NewIMDSIdentity(endpoint string) *IMDSIdentity {
	return &IMDSIdentity{client: imds.New(imds.Options{Endpoint: endpoint})}
}

// PKCS7 implements IdentityDocument.
func (i *IMDSIdentity) PKCS7(ctx context.Context) (string, error) {
	out, err := i.client.GetDynamicData(ctx, &imds.GetDynamicDataInput{Path: "instance-identity/pkcs7"})
	if err != nil {
		return "", fmt.Errorf("unable to fetch identity document pkcs7 signature from instance metadata: %w", err)
	}
	defer out.Content.Close()

	raw, err := io.ReadAll(out.Content)
	if err != nil {
		return "", fmt.Errorf("failed to read pkcs7 signature: %w", err)
	}
	return string(raw), nil
}

type awsEC2Options struct {
	Role  string `mapstructure:"role"`
	Nonce string `mapstructure:"nonce"`
	Mount string `mapstructure:"mount"`
}

// AWSEC2 logs in with the signed identity document of the EC2 instance it
// runs on.
type AWSEC2 struct {
	identity IdentityDocument
}

// NewAWSEC2 creates the "aws-ec2" backend. A nil identity source uses the
// instance metadata service.
func NewAWSEC2(identity IdentityDocument) *AWSEC2 {
	if identity == nil {
		identity = NewIMDSIdentity("")
	}
	return &AWSEC2{identity: identity}
}

// Name implements Backend.
func (a *AWSEC2) Name() string {
	return "aws-ec2"
}

// Login implements Backend.
func (a *AWSEC2) Login(ctx context.Context, t transport.Transport, options map[string]interface{}) (map[string]interface{}, error) {
	var opts awsEC2Options
	if err := decodeOptions(a.Name(), options, &opts); err != nil {
		return nil, err
	}

	pkcs7, err := a.identity.PKCS7(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{"pkcs7": strings.ReplaceAll(pkcs7, "\n", "")}
	if opts.Role != "" {
		body["role"] = opts.Role
	}
	if opts.Nonce != "" {
		body["nonce"] = opts.Nonce
	}
	return login(ctx, t, "auth/"+mountOr(opts.Mount, "aws-ec2")+"/login", body)
}

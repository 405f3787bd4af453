package greeter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iTypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/sirupsen/logrus"
)

type Action interface {
	Do(ctx context.Context, c LambdaClient) error
}

type CreateAction struct {
	Function Function
	Role     string
	Code     Code
}

func (a CreateAction) Do(ctx context.Context, c LambdaClient) error {
	cmd, err := a.Function.CreateFunctionCommand(a.Role, a.Code)
	if err != nil {
		return err
	}
	_, err = c.CreateFunction(ctx, &cmd)
	return err
}

// UpdateAction brings an existing function in line with the package and
// settings, touching only what differs.
type UpdateAction struct {
	Function         Function
	Code             Code
	CodeChanged      bool
	LogFormatChanged bool
}

func (a UpdateAction) Do(ctx context.Context, c LambdaClient) error {
	if a.CodeChanged {
		cmd, err := a.Function.UpdateFunctionCodeCommand(a.Code)
		if err != nil {
			return err
		}
		if _, err := c.UpdateFunctionCode(ctx, &cmd); err != nil {
			return err
		}
	}
	if a.LogFormatChanged {
		cmd := a.Function.UpdateFunctionConfigurationCommand()
		if _, err := c.UpdateFunctionConfiguration(ctx, &cmd); err != nil {
			return err
		}
	}
	return nil
}

// NoopAction is chosen when the deployed function already matches both the
// package and the settings.
type NoopAction struct {
	Name       string
	CodeSha256 string
}

func (a NoopAction) Do(ctx context.Context, c LambdaClient) error {
	return nil
}

func PrepareAction(ctx context.Context, c LambdaClient, f Function, roleARN string, code Code, codeSha256 string) (Action, error) {
	remote, exists, err := remoteFunction(ctx, c, f.Name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return CreateAction{Function: f, Role: roleARN, Code: code}, nil
	}
	codeChanged := remote.CodeSha256 == "" || remote.CodeSha256 != codeSha256
	logFormatChanged := remote.LogFormat != ParseLogFormat(string(f.LogFormat))
	if !codeChanged && !logFormatChanged {
		return NoopAction{Name: f.Name, CodeSha256: codeSha256}, nil
	}
	return UpdateAction{
		Function:         f,
		Code:             code,
		CodeChanged:      codeChanged,
		LogFormatChanged: logFormatChanged,
	}, nil
}

// PrepareExecutionRole makes sure the role exists and carries the basic
// execution policy plus any managed and inline policies, returning its ARN.
func PrepareExecutionRole(ctx context.Context, c IAMClient, role ExecutionRole) (string, error) {
	var roleARN string
	createCmd := role.CreateRoleCommand()
	resp, err := c.CreateRole(ctx, &createCmd)
	if err != nil {
		var exists *iTypes.EntityAlreadyExistsException
		if !errors.As(err, &exists) {
			return "", fmt.Errorf("failed to create role %s: %w", role.RoleName, err)
		}
		existing, err := c.GetRole(ctx, &iam.GetRoleInput{
			RoleName: aws.String(role.RoleName),
		})
		if err != nil {
			return "", fmt.Errorf("failed to get role %s: %w", role.RoleName, err)
		}
		if existing.Role != nil {
			roleARN = aws.ToString(existing.Role.Arn)
		}
	} else if resp.Role != nil {
		roleARN = aws.ToString(resp.Role.Arn)
	}

	policies := append([]string{AWSLambdaBasicExecutionRole}, role.ManagedPolicies...)
	for _, policyARN := range policies {
		cmd := role.AttachManagedPolicyCommand(policyARN)
		_, err := c.AttachRolePolicy(ctx, &cmd)
		if err != nil {
			return "", fmt.Errorf("failed to attach %s to role %s: %w", policyARN, role.RoleName, err)
		}
	}
	if role.InLinePolicy != "" {
		cmd := role.AttachInLinePolicyCommand("greeter_inline_policy_" + UUID())
		_, err := c.PutRolePolicy(ctx, &cmd)
		if err != nil {
			return "", fmt.Errorf("failed to put inline policy on role %s: %w", role.RoleName, err)
		}
	}
	return roleARN, nil
}

// Deployer drives a function through validate, package, upload, create or
// update, publish and permission grants.
type Deployer struct {
	Lambda LambdaClient
	IAM    IAMClient
	STS    STSClient
	// Artifacts is optional; without it packages are sent inline.
	Artifacts ArtifactStore
	Packager  func(path, arch string) ([]byte, error)
	Log       logrus.FieldLogger
}

// NewDeployer builds a Deployer from the default AWS configuration chain.
func NewDeployer(ctx context.Context, artifactEndpoint, artifactBucket string, log logrus.FieldLogger) (*Deployer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRetryer(customRetryer))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}
	d := &Deployer{
		Lambda:   lambda.NewFromConfig(cfg),
		IAM:      iam.NewFromConfig(cfg),
		STS:      sts.NewFromConfig(cfg),
		Packager: Package,
		Log:      log,
	}
	if artifactBucket != "" {
		store, err := NewS3ArtifactStore(ctx, cfg, artifactEndpoint, artifactBucket)
		if err != nil {
			return nil, err
		}
		d.Artifacts = store
	}
	return d, nil
}

func (d *Deployer) logger() logrus.FieldLogger {
	if d.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		return l
	}
	return d.Log
}

// Deploy ships f and returns the published version.
func (d *Deployer) Deploy(ctx context.Context, f Function) (string, error) {
	log := d.logger().WithField("function", f.Name)
	if err := Validate(f.HandlerPath); err != nil {
		return "", err
	}
	code, codeSha256, err := d.prepareCode(ctx, f, log)
	if err != nil {
		return "", err
	}

	roleARN, err := PrepareExecutionRole(ctx, d.IAM, f.ExecutionRole)
	if err != nil {
		return "", err
	}
	action, err := PrepareAction(ctx, d.Lambda, f, roleARN, code, codeSha256)
	if err != nil {
		return "", err
	}
	log.WithField("action", fmt.Sprintf("%T", action)).Debug("prepared action")
	if err := action.Do(ctx, d.Lambda); err != nil {
		return "", err
	}

	version, err := WaitForConsistency(ctx, d.Lambda, f.Name)
	if err != nil {
		return "", err
	}
	log.WithField("version", version).Info("published version")

	if _, isNoop := action.(NoopAction); isNoop {
		return version, nil
	}
	if err := d.grantInvokePermissions(ctx, f); err != nil {
		return version, err
	}
	return version, nil
}

// prepareCode builds the package for f. With an artifact store the package
// is keyed by the content hash of the handler's module, and an existing
// artifact is reused without building or uploading.
func (d *Deployer) prepareCode(ctx context.Context, f Function, log logrus.FieldLogger) (Code, string, error) {
	var key string
	if d.Artifacts != nil {
		root, err := ModuleRoot(f.HandlerPath)
		if err != nil {
			return Code{}, "", err
		}
		contentHash, err := ContentHash(root)
		if err != nil {
			return Code{}, "", err
		}
		key = ArtifactKey(f.Name, f.Architecture, contentHash)
		artifact, found, err := d.Artifacts.Stat(ctx, key)
		if err != nil {
			return Code{}, "", err
		}
		if found && artifact.CodeSha256 != "" {
			log.WithField("key", key).Info("reusing uploaded package")
			return Code{S3Bucket: d.Artifacts.Bucket(), S3Key: key}, artifact.CodeSha256, nil
		}
	}

	packager := d.Packager
	if packager == nil {
		packager = Package
	}
	pkg, err := packager(f.HandlerPath, f.Architecture)
	if err != nil {
		return Code{}, "", err
	}
	codeSha256 := SourceCodeHash(pkg)
	log.WithField("codeSha256", codeSha256).Info("packaged handler")
	if d.Artifacts == nil {
		return Code{ZipFile: pkg}, codeSha256, nil
	}
	if err := d.Artifacts.Put(ctx, key, pkg); err != nil {
		return Code{}, "", err
	}
	log.WithField("key", key).Info("uploaded package")
	return Code{S3Bucket: d.Artifacts.Bucket(), S3Key: key}, codeSha256, nil
}

func (d *Deployer) grantInvokePermissions(ctx context.Context, f Function) error {
	policy := f.ResourcePolicy
	if len(policy.Principals) == 0 {
		return nil
	}
	// Service principals without a source account are open to any account
	// that owns a resource of that service.
	if policy.SourceAccountCondition == nil && d.STS != nil && hasServicePrincipal(policy) {
		accountID, err := GetAWSAccountID(ctx, d.STS)
		if err != nil {
			return err
		}
		policy.SourceAccountCondition = aws.String(accountID)
	}
	for _, cmd := range policy.AddPermissionCommands(f.Name) {
		_, err := d.Lambda.AddPermission(ctx, &cmd)
		if err != nil {
			return fmt.Errorf("failed to grant invoke permission to %s: %w", aws.ToString(cmd.Principal), err)
		}
	}
	return nil
}

func hasServicePrincipal(p ResourcePolicy) bool {
	for _, principal := range p.Principals {
		if strings.HasSuffix(principal, ".amazonaws.com") {
			return true
		}
	}
	return false
}

func handlerDir(path string) string {
	if strings.HasSuffix(path, ".go") {
		return filepath.Dir(path)
	}
	return path
}

func (d *Deployer) Delete(ctx context.Context, name string) error {
	_, err := d.Lambda.DeleteFunction(ctx, &lambda.DeleteFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete function %s: %w", name, err)
	}
	d.logger().WithField("function", name).Info("deleted function")
	return nil
}

type InvokeResult struct {
	StatusCode      int32
	Payload         []byte
	Logs            string
	ExecutedVersion string
}

// Invoke calls the deployed function synchronously and returns the tail of
// its log alongside the payload. A function error is reported as
// ErrFunctionError together with the result.
func (d *Deployer) Invoke(ctx context.Context, name string, payload []byte) (InvokeResult, error) {
	resp, err := d.Lambda.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(name),
		Payload:      payload,
		LogType:      types.LogTypeTail,
	})
	if err != nil {
		return InvokeResult{}, fmt.Errorf("failed to invoke function %s: %w", name, err)
	}
	result := InvokeResult{
		StatusCode:      resp.StatusCode,
		Payload:         resp.Payload,
		ExecutedVersion: aws.ToString(resp.ExecutedVersion),
	}
	if resp.LogResult != nil {
		logs, err := base64.StdEncoding.DecodeString(*resp.LogResult)
		if err != nil {
			return result, fmt.Errorf("failed to decode log result: %w", err)
		}
		result.Logs = string(logs)
	}
	if resp.FunctionError != nil {
		return result, fmt.Errorf("%w: %s: %s", ErrFunctionError, *resp.FunctionError, resp.Payload)
	}
	return result, nil
}

package greeter

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

const (
	DefaultRoleName     = "greeter_execution_role"
	DefaultArchitecture = "arm64"
)

// Function describes a handler and everything needed to run it on Lambda.
type Function struct {
	Name           string
	HandlerPath    string
	Architecture   string
	LogFormat      LogFormat
	ExecutionRole  ExecutionRole
	ResourcePolicy ResourcePolicy
}

type ExecutionRole struct {
	RoleName                 string
	AssumeRolePolicyDocument string
	ManagedPolicies          []string
	InLinePolicy             string
}

type FunctionOption func(f *Function) error

func NewFunction(name, handlerPath string, opts ...FunctionOption) (Function, error) {
	f := Function{
		Name:         name,
		HandlerPath:  handlerPath,
		Architecture: DefaultArchitecture,
		LogFormat:    LogFormatText,
		ExecutionRole: ExecutionRole{
			RoleName:                 DefaultRoleName,
			AssumeRolePolicyDocument: DefaultAssumeRolePolicy,
		},
	}
	for _, opt := range opts {
		if err := opt(&f); err != nil {
			return f, err
		}
	}
	return f, nil
}

func WithExecutionRoleName(name string) FunctionOption {
	return func(f *Function) error {
		if name != "" {
			f.ExecutionRole.RoleName = name
		}
		return nil
	}
}

func WithManagedPolicies(policies string) FunctionOption {
	return func(f *Function) error {
		f.ExecutionRole.ManagedPolicies = ParseManagedPolicies(policies)
		return nil
	}
}

func WithInlinePolicy(policy string) FunctionOption {
	return func(f *Function) error {
		if policy == "" {
			return nil
		}
		p, err := ParseInlinePolicy(policy)
		if err != nil {
			return err
		}
		f.ExecutionRole.InLinePolicy = p
		return nil
	}
}

func WithResourcePolicy(policy string) FunctionOption {
	return func(f *Function) error {
		if policy == "" {
			return nil
		}
		p, err := ParseResourcePolicy(policy)
		if err != nil {
			return err
		}
		f.ResourcePolicy = p
		return nil
	}
}

func WithArchitecture(arch string) FunctionOption {
	return func(f *Function) error {
		if arch == "" {
			return nil
		}
		if _, err := lambdaArchitecture(arch); err != nil {
			return err
		}
		f.Architecture = arch
		return nil
	}
}

func WithLogFormat(format string) FunctionOption {
	return func(f *Function) error {
		if format != "" {
			f.LogFormat = ParseLogFormat(format)
		}
		return nil
	}
}

func lambdaArchitecture(arch string) (types.Architecture, error) {
	switch arch {
	case "arm64":
		return types.ArchitectureArm64, nil
	case "amd64":
		return types.ArchitectureX8664, nil
	}
	return "", fmt.Errorf("unsupported architecture %q, expected arm64 or amd64", arch)
}

func (e ExecutionRole) CreateRoleCommand() iam.CreateRoleInput {
	assumePolicy := e.AssumeRolePolicyDocument
	if assumePolicy == "" {
		assumePolicy = DefaultAssumeRolePolicy
	}
	return iam.CreateRoleInput{
		RoleName:                 aws.String(e.RoleName),
		AssumeRolePolicyDocument: aws.String(assumePolicy),
	}
}

func (e ExecutionRole) AttachManagedPolicyCommand(policyARN string) iam.AttachRolePolicyInput {
	return iam.AttachRolePolicyInput{
		PolicyArn: aws.String(policyARN),
		RoleName:  aws.String(e.RoleName),
	}
}

func (e ExecutionRole) AttachInLinePolicyCommand(policyName string) iam.PutRolePolicyInput {
	return iam.PutRolePolicyInput{
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(e.InLinePolicy),
		RoleName:       aws.String(e.RoleName),
	}
}

// AddPermissionCommands returns one lambda:InvokeFunction grant per
// principal in the policy.
func (r ResourcePolicy) AddPermissionCommands(functionName string) []lambda.AddPermissionInput {
	var inputs []lambda.AddPermissionInput
	for _, principal := range r.Principals {
		inputs = append(inputs, lambda.AddPermissionInput{
			Action:         aws.String("lambda:InvokeFunction"),
			FunctionName:   aws.String(functionName),
			StatementId:    aws.String("greeter_invoke_permission_" + UUID()),
			Principal:      aws.String(principal),
			SourceArn:      r.SourceArnCondition,
			SourceAccount:  r.SourceAccountCondition,
			PrincipalOrgID: r.PrincipalOrgIdCondition,
		})
	}
	return inputs
}

// Code is where Lambda should fetch a deployment package from: inline, or
// an object previously uploaded to an ArtifactStore.
type Code struct {
	ZipFile  []byte
	S3Bucket string
	S3Key    string
}

func (c Code) functionCode() *types.FunctionCode {
	if c.S3Key != "" {
		return &types.FunctionCode{
			S3Bucket: aws.String(c.S3Bucket),
			S3Key:    aws.String(c.S3Key),
		}
	}
	return &types.FunctionCode{ZipFile: c.ZipFile}
}

func (f Function) CreateFunctionCommand(roleARN string, code Code) (lambda.CreateFunctionInput, error) {
	arch, err := lambdaArchitecture(f.Architecture)
	if err != nil {
		return lambda.CreateFunctionInput{}, err
	}
	return lambda.CreateFunctionInput{
		FunctionName:  aws.String(f.Name),
		Role:          aws.String(roleARN),
		Handler:       aws.String("bootstrap"),
		Runtime:       types.RuntimeProvidedal2023,
		Architectures: []types.Architecture{arch},
		Code:          code.functionCode(),
		LoggingConfig: &types.LoggingConfig{
			LogFormat: types.LogFormat(f.LogFormat),
		},
	}, nil
}

func (f Function) UpdateFunctionCodeCommand(code Code) (lambda.UpdateFunctionCodeInput, error) {
	arch, err := lambdaArchitecture(f.Architecture)
	if err != nil {
		return lambda.UpdateFunctionCodeInput{}, err
	}
	input := lambda.UpdateFunctionCodeInput{
		FunctionName:  aws.String(f.Name),
		Architectures: []types.Architecture{arch},
	}
	if code.S3Key != "" {
		input.S3Bucket = aws.String(code.S3Bucket)
		input.S3Key = aws.String(code.S3Key)
	} else {
		input.ZipFile = code.ZipFile
	}
	return input, nil
}

// UpdateFunctionConfigurationCommand carries the settings Lambda keeps
// outside the code package.
func (f Function) UpdateFunctionConfigurationCommand() lambda.UpdateFunctionConfigurationInput {
	return lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(f.Name),
		LoggingConfig: &types.LoggingConfig{
			LogFormat: types.LogFormat(f.LogFormat),
		},
	}
}

package greeter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

type LambdaClient interface {
	CreateFunction(ctx context.Context, params *lambda.CreateFunctionInput, optFns ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error)
	UpdateFunctionCode(ctx context.Context, params *lambda.UpdateFunctionCodeInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error)
	UpdateFunctionConfiguration(ctx context.Context, params *lambda.UpdateFunctionConfigurationInput, optFns ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error)
	GetFunction(ctx context.Context, params *lambda.GetFunctionInput, optFns ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error)
	PublishVersion(ctx context.Context, params *lambda.PublishVersionInput, optFns ...func(*lambda.Options)) (*lambda.PublishVersionOutput, error)
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
	AddPermission(ctx context.Context, params *lambda.AddPermissionInput, optFns ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error)
	DeleteFunction(ctx context.Context, params *lambda.DeleteFunctionInput, optFns ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error)
}

type IAMClient interface {
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	PutRolePolicy(ctx context.Context, params *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
}

type STSClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

var (
	DefaultAssumeRolePolicy     = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":"lambda.amazonaws.com"},"Action":"sts:AssumeRole"}]}`
	AWSLambdaBasicExecutionRole = `arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole`
)

var UUID = GenerateUUID

// GenerateUUID returns a short random suffix for statement and policy ids.
func GenerateUUID() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return id[0:8]
}

func GetAWSAccountID(ctx context.Context, client STSClient) (string, error) {
	resp, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	return aws.ToString(resp.Account), nil
}

// DefaultRetryWaitingPeriod pauses between publish attempts. It returns
// early with the context's error when ctx is done.
var DefaultRetryWaitingPeriod = func(ctx context.Context) error {
	timer := time.NewTimer(3 * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const consistencyRetryLimit = 10

// WaitForConsistency publishes a new version of the function, retrying
// while Lambda is still applying the previous update.
func WaitForConsistency(ctx context.Context, c LambdaClient, name string) (string, error) {
	var lastErr error
	for i := 0; i <= consistencyRetryLimit; i++ {
		if i > 0 {
			if err := DefaultRetryWaitingPeriod(ctx); err != nil {
				return "", err
			}
		}
		resp, err := c.PublishVersion(ctx, &lambda.PublishVersionInput{
			FunctionName: aws.String(name),
		})
		if err == nil {
			if resp.Version == nil {
				return "", fmt.Errorf("version is nil")
			}
			return *resp.Version, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("%w after %d retries: %w", ErrNotConsistent, consistencyRetryLimit, lastErr)
}

// deployedFunction is what Deploy compares a new package against.
type deployedFunction struct {
	CodeSha256 string
	LogFormat  LogFormat
}

// remoteFunction looks up the deployed function, returning exists=false if
// there is no such function. A function without a logging config reports
// Text, Lambda's default.
func remoteFunction(ctx context.Context, c LambdaClient, name string) (fn deployedFunction, exists bool, err error) {
	resp, err := c.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
	})
	if err != nil {
		var resourceNotFound *types.ResourceNotFoundException
		if errors.As(err, &resourceNotFound) {
			return fn, false, nil
		}
		return fn, false, err
	}
	fn.LogFormat = LogFormatText
	if cfg := resp.Configuration; cfg != nil {
		fn.CodeSha256 = aws.ToString(cfg.CodeSha256)
		if cfg.LoggingConfig != nil && cfg.LoggingConfig.LogFormat != "" {
			fn.LogFormat = ParseLogFormat(string(cfg.LoggingConfig.LogFormat))
		}
	}
	return fn, true, nil
}

func customRetryer() aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = 20
		o.Retryables = append(o.Retryables, RetryableErrors{})
	})
}

// RetryableErrors marks InvalidParameterValueException as retryable: a
// freshly created execution role is rejected until IAM has propagated it.
// ResourceConflictException is retried too, since a configuration update
// is refused while a code update is still in progress.
type RetryableErrors struct{}

func (r RetryableErrors) IsErrorRetryable(err error) aws.Ternary {
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		var lambdaErr *types.InvalidParameterValueException
		if errors.As(err, &lambdaErr) {
			return aws.TrueTernary
		}
		var conflictErr *types.ResourceConflictException
		if errors.As(err, &conflictErr) {
			return aws.TrueTernary
		}
	}
	return aws.UnknownTernary
}

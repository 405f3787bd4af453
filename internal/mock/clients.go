// Package mock holds in-memory stand-ins for the AWS clients the deployer
// talks to.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iTypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/serverlesstf/greeter"
)

// Calls records the operations made against a dummy client, in order.
type Calls struct {
	mu    sync.Mutex
	names []string
	input []any
}

func (c *Calls) record(name string, input any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.input = append(c.input, input)
}

func (c *Calls) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.names...)
}

// Inputs returns the recorded inputs of every call to the named operation.
func (c *Calls) Inputs(name string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var inputs []any
	for i, n := range c.names {
		if n == name {
			inputs = append(inputs, c.input[i])
		}
	}
	return inputs
}

type DummyLambdaClient struct {
	Calls                   *Calls
	ConsistentAfterXRetries *int
	FuncExists              bool
	CodeSha256              string
	LogFormat               string
	Err                     error
	InvokeOutput            *lambda.InvokeOutput
}

func (d DummyLambdaClient) record(name string, input any) {
	if d.Calls != nil {
		d.Calls.record(name, input)
	}
}

func (d DummyLambdaClient) GetFunction(ctx context.Context, input *lambda.GetFunctionInput, opts ...func(*lambda.Options)) (*lambda.GetFunctionOutput, error) {
	d.record("GetFunction", input)
	if d.Err != nil {
		return &lambda.GetFunctionOutput{}, d.Err
	}
	if !d.FuncExists {
		return &lambda.GetFunctionOutput{}, new(types.ResourceNotFoundException)
	}
	cfg := &types.FunctionConfiguration{
		FunctionName: input.FunctionName,
		CodeSha256:   aws.String(d.CodeSha256),
	}
	if d.LogFormat != "" {
		cfg.LoggingConfig = &types.LoggingConfig{LogFormat: types.LogFormat(d.LogFormat)}
	}
	return &lambda.GetFunctionOutput{Configuration: cfg}, nil
}

func (d DummyLambdaClient) CreateFunction(ctx context.Context, input *lambda.CreateFunctionInput, opts ...func(*lambda.Options)) (*lambda.CreateFunctionOutput, error) {
	d.record("CreateFunction", input)
	return &lambda.CreateFunctionOutput{}, nil
}

func (d DummyLambdaClient) UpdateFunctionCode(ctx context.Context, input *lambda.UpdateFunctionCodeInput, opts ...func(*lambda.Options)) (*lambda.UpdateFunctionCodeOutput, error) {
	d.record("UpdateFunctionCode", input)
	return &lambda.UpdateFunctionCodeOutput{}, d.Err
}

func (d DummyLambdaClient) UpdateFunctionConfiguration(ctx context.Context, input *lambda.UpdateFunctionConfigurationInput, opts ...func(*lambda.Options)) (*lambda.UpdateFunctionConfigurationOutput, error) {
	d.record("UpdateFunctionConfiguration", input)
	return &lambda.UpdateFunctionConfigurationOutput{}, d.Err
}

func (d DummyLambdaClient) Invoke(ctx context.Context, input *lambda.InvokeInput, opts ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	d.record("Invoke", input)
	if d.Err != nil {
		return nil, d.Err
	}
	if d.InvokeOutput != nil {
		return d.InvokeOutput, nil
	}
	return &lambda.InvokeOutput{
		StatusCode: 200,
		Payload:    []byte(`"all good"`),
	}, nil
}

func (d DummyLambdaClient) PublishVersion(ctx context.Context, input *lambda.PublishVersionInput, opts ...func(*lambda.Options)) (*lambda.PublishVersionOutput, error) {
	d.record("PublishVersion", input)
	if d.ConsistentAfterXRetries == nil {
		return &lambda.PublishVersionOutput{}, fmt.Errorf("this lambda never becomes consistent")
	}
	if *d.ConsistentAfterXRetries > 0 {
		*d.ConsistentAfterXRetries--
		return &lambda.PublishVersionOutput{}, fmt.Errorf("not yet consistent")
	}
	return &lambda.PublishVersionOutput{
		Version: aws.String("1"),
	}, nil
}

func (d DummyLambdaClient) AddPermission(ctx context.Context, input *lambda.AddPermissionInput, opts ...func(*lambda.Options)) (*lambda.AddPermissionOutput, error) {
	d.record("AddPermission", input)
	return &lambda.AddPermissionOutput{}, nil
}

func (d DummyLambdaClient) DeleteFunction(ctx context.Context, input *lambda.DeleteFunctionInput, opts ...func(*lambda.Options)) (*lambda.DeleteFunctionOutput, error) {
	d.record("DeleteFunction", input)
	return &lambda.DeleteFunctionOutput{}, d.Err
}

type DummyIAMClient struct {
	Calls      *Calls
	RoleExists bool
	RoleARN    string
}

func (d DummyIAMClient) record(name string, input any) {
	if d.Calls != nil {
		d.Calls.record(name, input)
	}
}

func (d DummyIAMClient) CreateRole(ctx context.Context, input *iam.CreateRoleInput, opts ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	d.record("CreateRole", input)
	if d.RoleExists {
		return &iam.CreateRoleOutput{}, new(iTypes.EntityAlreadyExistsException)
	}
	return &iam.CreateRoleOutput{
		Role: &iTypes.Role{
			RoleName: input.RoleName,
			Arn:      aws.String(d.RoleARN),
		},
	}, nil
}

func (d DummyIAMClient) AttachRolePolicy(ctx context.Context, input *iam.AttachRolePolicyInput, opts ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	d.record("AttachRolePolicy", input)
	return &iam.AttachRolePolicyOutput{}, nil
}

func (d DummyIAMClient) PutRolePolicy(ctx context.Context, input *iam.PutRolePolicyInput, opts ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	d.record("PutRolePolicy", input)
	return &iam.PutRolePolicyOutput{}, nil
}

func (d DummyIAMClient) GetRole(ctx context.Context, input *iam.GetRoleInput, opts ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	d.record("GetRole", input)
	if d.RoleExists {
		return &iam.GetRoleOutput{
			Role: &iTypes.Role{
				RoleName: input.RoleName,
				Arn:      aws.String(d.RoleARN),
			},
		}, nil
	}
	return &iam.GetRoleOutput{}, new(iTypes.NoSuchEntityException)
}

type DummySTSClient struct {
	AccountID string
	Err       error
}

func (d DummySTSClient) GetCallerIdentity(ctx context.Context, input *sts.GetCallerIdentityInput, opts ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(d.AccountID),
	}, nil
}

// DummyArtifactStore keeps uploaded packages in memory.
type DummyArtifactStore struct {
	mu      sync.Mutex
	Name    string
	Objects map[string][]byte
	Calls   *Calls
}

func (d *DummyArtifactStore) Stat(ctx context.Context, key string) (greeter.Artifact, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Calls != nil {
		d.Calls.record("Stat", key)
	}
	body, ok := d.Objects[key]
	if !ok {
		return greeter.Artifact{}, false, nil
	}
	return greeter.Artifact{Key: key, CodeSha256: greeter.SourceCodeHash(body)}, true, nil
}

func (d *DummyArtifactStore) Put(ctx context.Context, key string, body []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Calls != nil {
		d.Calls.record("Put", key)
	}
	if d.Objects == nil {
		d.Objects = map[string][]byte{}
	}
	d.Objects[key] = body
	return nil
}

func (d *DummyArtifactStore) Bucket() string {
	return d.Name
}
